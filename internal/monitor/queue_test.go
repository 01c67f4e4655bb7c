package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/types"
)

func event(path string) types.ChangeEvent {
	return types.ChangeEvent{Path: path, Kind: types.ChangeModified, Timestamp: time.Now()}
}

func TestQueuePushAndDrain(t *testing.T) {
	q := newChangeQueue(4, config.OverflowDropOldest, 0)
	ctx := context.Background()

	for _, p := range []string{"a.go", "b.go", "c.go"} {
		if err := q.Push(ctx, event(p)); err != nil {
			t.Fatalf("push failed: %v", err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("len = %d, want 3", q.Len())
	}

	batch := q.DrainUpTo(2)
	if len(batch) != 2 {
		t.Fatalf("batch size = %d, want 2", len(batch))
	}
	if batch[0].Path != "a.go" || batch[1].Path != "b.go" {
		t.Errorf("batch order = %s, %s", batch[0].Path, batch[1].Path)
	}
	if q.Len() != 1 {
		t.Errorf("remaining = %d, want 1", q.Len())
	}
}

func TestQueueCoalescesSamePath(t *testing.T) {
	q := newChangeQueue(4, config.OverflowDropOldest, 0)
	ctx := context.Background()

	q.Push(ctx, event("a.go"))
	later := types.ChangeEvent{Path: "a.go", Kind: types.ChangeDeleted, Timestamp: time.Now()}
	q.Push(ctx, later)

	if q.Len() != 1 {
		t.Fatalf("len = %d, want 1 (same path coalesces)", q.Len())
	}
	batch := q.DrainUpTo(10)
	if batch[0].Kind != types.ChangeDeleted {
		t.Errorf("kind = %s, want latest event kind", batch[0].Kind)
	}
}

func TestQueueDropOldestOverflow(t *testing.T) {
	q := newChangeQueue(2, config.OverflowDropOldest, 0)
	ctx := context.Background()

	q.Push(ctx, event("a.go"))
	q.Push(ctx, event("b.go"))
	q.Push(ctx, event("c.go"))

	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}
	if q.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", q.Dropped())
	}
	batch := q.DrainUpTo(10)
	if batch[0].Path != "b.go" || batch[1].Path != "c.go" {
		t.Errorf("oldest was not evicted: %s, %s", batch[0].Path, batch[1].Path)
	}
}

func TestQueueBlockOverflow(t *testing.T) {
	q := newChangeQueue(1, config.OverflowBlock, 0)
	ctx := context.Background()

	q.Push(ctx, event("a.go"))

	unblocked := make(chan error, 1)
	go func() {
		unblocked <- q.Push(ctx, event("b.go"))
	}()

	select {
	case <-unblocked:
		t.Fatal("push should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	q.DrainUpTo(1)

	select {
	case err := <-unblocked:
		if err != nil {
			t.Fatalf("blocked push failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after drain")
	}
	if q.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0 under block policy", q.Dropped())
	}
}

func TestQueueBlockRespectsContext(t *testing.T) {
	q := newChangeQueue(1, config.OverflowBlock, 0)
	q.Push(context.Background(), event("a.go"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := q.Push(ctx, event("b.go"))
	if err == nil {
		t.Fatal("expected context error from blocked push")
	}
}

func TestQueuePressureSignal(t *testing.T) {
	q := newChangeQueue(8, config.OverflowDropOldest, 2)
	ctx := context.Background()

	q.Push(ctx, event("a.go"))
	select {
	case <-q.Pressure():
		t.Fatal("pressure fired below threshold")
	default:
	}

	q.Push(ctx, event("b.go"))
	select {
	case <-q.Pressure():
	case <-time.After(time.Second):
		t.Fatal("pressure did not fire at threshold")
	}

	// The signal is level-style: repeated pushes above threshold must not
	// pile up more than one pending signal.
	q.Push(ctx, event("c.go"))
	q.Push(ctx, event("d.go"))
	<-q.Pressure()
	select {
	case <-q.Pressure():
		t.Fatal("more than one pending pressure signal")
	default:
	}
}

func TestQueueCloseUnblocksProducer(t *testing.T) {
	q := newChangeQueue(1, config.OverflowBlock, 0)
	q.Push(context.Background(), event("a.go"))

	unblocked := make(chan error, 1)
	go func() {
		unblocked <- q.Push(context.Background(), event("b.go"))
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-unblocked:
		if err != nil {
			t.Fatalf("push after close returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("close did not unblock producer")
	}
}
