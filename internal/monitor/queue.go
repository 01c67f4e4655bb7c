package monitor

import (
	"context"
	"sync"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/types"
)

// changeQueue is the bounded buffer between the watcher and the
// scheduler. Events for the same path coalesce: a second change to a
// queued path updates the queued event instead of occupying a new slot,
// so a hot file cannot flood the queue.
type changeQueue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	events   []types.ChangeEvent
	index    map[string]int // path -> position in events
	capacity int
	policy   config.OverflowPolicy
	dropped  uint64
	closed   bool

	// pressure receives one signal when the queue reaches pressureAt
	// events, letting the scheduler drain ahead of its next tick.
	// pressureAt == 0 disables the signal.
	pressureAt int
	pressure   chan struct{}
}

func newChangeQueue(capacity int, policy config.OverflowPolicy, pressureAt int) *changeQueue {
	q := &changeQueue{
		index:      make(map[string]int),
		capacity:   capacity,
		policy:     policy,
		pressureAt: pressureAt,
		pressure:   make(chan struct{}, 1),
	}
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Pressure returns the channel signaled when the queue reaches its
// pressure threshold
func (q *changeQueue) Pressure() <-chan struct{} {
	return q.pressure
}

// Push enqueues one event. Under drop_oldest a full queue evicts its
// oldest entry; under block the call waits for room or ctx cancellation.
func (q *changeQueue) Push(ctx context.Context, ev types.ChangeEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	// Coalesce with an already-queued event for the same path.
	if pos, ok := q.index[ev.Path]; ok {
		q.events[pos] = ev
		return nil
	}

	for len(q.events) >= q.capacity {
		if q.policy == config.OverflowDropOldest {
			oldest := q.events[0]
			q.events = q.events[1:]
			delete(q.index, oldest.Path)
			q.reindex()
			q.dropped++
			break
		}

		// block policy: wait for the scheduler to drain, bailing out if
		// the context dies first
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.notFull.Broadcast()
				q.mu.Unlock()
			case <-done:
			}
		}()
		q.notFull.Wait()
		close(done)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if q.closed {
			return nil
		}
	}

	q.events = append(q.events, ev)
	q.index[ev.Path] = len(q.events) - 1

	if q.pressureAt > 0 && len(q.events) >= q.pressureAt {
		select {
		case q.pressure <- struct{}{}:
		default:
		}
	}
	return nil
}

// DrainUpTo removes and returns at most n events in arrival order
func (q *changeQueue) DrainUpTo(n int) []types.ChangeEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.events) {
		n = len(q.events)
	}
	if n == 0 {
		return nil
	}

	batch := make([]types.ChangeEvent, n)
	copy(batch, q.events[:n])
	q.events = q.events[n:]
	for _, ev := range batch {
		delete(q.index, ev.Path)
	}
	q.reindex()
	q.notFull.Broadcast()
	return batch
}

// Len returns the number of queued events
func (q *changeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Dropped returns how many events overflow has discarded
func (q *changeQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close unblocks any waiting producers; further pushes are ignored
func (q *changeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notFull.Broadcast()
}

// reindex rebuilds the path index after a removal from the front
// (must be called with the lock held)
func (q *changeQueue) reindex() {
	for i, ev := range q.events {
		q.index[ev.Path] = i
	}
}
