package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// openTestJournal opens an in-memory SQLiteJournal for use in tests.
func openTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func Test_Journal_RecordAndRuns(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)
	ctx := context.Background()
	start := time.UnixMilli(1_700_000_000_000)

	if err := j.Record(ctx, Run{
		PackKey: "k", Phase: "sync", Documents: 2,
		URLs: []string{"https://a", "https://b"}, StartedAt: start, Duration: 1500 * time.Millisecond,
	}); err != nil {
		t.Fatalf("record sync: %v", err)
	}
	if err := j.Record(ctx, Run{
		PackKey: "k", Phase: "enrich", Error: "boom", StartedAt: start.Add(time.Second),
	}); err != nil {
		t.Fatalf("record enrich: %v", err)
	}

	runs, err := j.Runs(ctx, "k", 10)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("want 2 runs, got %d", len(runs))
	}
	if runs[0].Phase != "enrich" || runs[0].Error != "boom" || len(runs[0].URLs) != 0 {
		t.Errorf("runs[0] = %+v", runs[0])
	}
	if runs[1].Documents != 2 || len(runs[1].URLs) != 2 || runs[1].Duration != 1500*time.Millisecond {
		t.Errorf("runs[1] = %+v", runs[1])
	}
	if !runs[1].StartedAt.Equal(start) {
		t.Errorf("started_at = %v, want %v", runs[1].StartedAt, start)
	}
}

func Test_Journal_LimitAndIsolation(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)
	ctx := context.Background()

	for i := range 5 {
		if err := j.Record(ctx, Run{PackKey: "a", Phase: "sync", StartedAt: time.UnixMilli(int64(i))}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := j.Record(ctx, Run{PackKey: "b", Phase: "sync", StartedAt: time.Now()}); err != nil {
		t.Fatalf("record: %v", err)
	}

	runs, err := j.Runs(ctx, "a", 3)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("want 3 runs, got %d", len(runs))
	}
	for _, r := range runs {
		if r.PackKey != "a" {
			t.Errorf("run for %q leaked into a", r.PackKey)
		}
	}

	none, err := j.Runs(ctx, "missing", 3)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", none)
	}
}

func Test_Journal_RejectsUnknownPhase(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)
	if err := j.Record(context.Background(), Run{PackKey: "k", Phase: "bogus"}); err == nil {
		t.Error("want error for unknown phase")
	}
}

func Test_Journal_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := j.Record(ctx, Run{PackKey: "k", Phase: "sync", Documents: 1}); err != nil {
		t.Fatalf("record: %v", err)
	}
	_ = j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	runs, err := j.Runs(ctx, "k", 10)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Documents != 1 {
		t.Errorf("runs after reopen = %+v", runs)
	}
}
