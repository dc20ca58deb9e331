package pack

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned when the enrichment queue has no free slot.
	ErrQueueFull = errors.New("pack: enrichment queue full")
	// ErrClosed is returned when work is submitted after Close.
	ErrClosed = errors.New("pack: cache closed")
)

// task is one unit of background work. ctx is the pool's context, not the
// submitter's, so a task outlives the request that scheduled it.
type task func(ctx context.Context)

// pool is a fixed set of goroutines draining a bounded queue.
type pool struct {
	// tasks is the bounded queue.
	tasks chan task
	// ctx is passed to every task; cancelled only when a drain times out.
	ctx    context.Context
	cancel context.CancelFunc
	// mu guards closed against concurrent submit and close.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// newPool starts workers goroutines reading from a queue of size queue.
func newPool(ctx context.Context, workers, queue int) *pool {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &pool{tasks: make(chan task, queue), ctx: ctx, cancel: cancel}
	for range workers {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *pool) run() {
	defer p.wg.Done()
	for t := range p.tasks {
		t(p.ctx)
	}
}

// submit enqueues t without blocking.
func (p *pool) submit(t task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// close stops accepting work and waits for queued and running tasks to
// finish. If ctx ends first, running tasks see their context cancelled and
// ctx's error is returned.
func (p *pool) close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
