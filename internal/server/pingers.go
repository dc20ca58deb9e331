package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantPinger probes Qdrant with its HealthCheck RPC.
type QdrantPinger struct {
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name implements Pinger.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping implements Pinger.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// PingFunc adapts a probe function to Pinger.
type PingFunc struct {
	// Label is returned by Name.
	Label string
	// Fn is called by Ping.
	Fn func(ctx context.Context) error
}

// Name implements Pinger.
func (p PingFunc) Name() string { return p.Label }

// Ping implements Pinger.
func (p PingFunc) Ping(ctx context.Context) error { return p.Fn(ctx) }
