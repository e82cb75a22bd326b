package resilience

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

// ErrBulkheadClosed is returned for calls made after Close.
var ErrBulkheadClosed = errors.New("bulkhead is closed")

// Bulkhead admits calls up to a concurrency ceiling, queueing excess callers
// FIFO and draining them as slots free. It compartmentalizes one overloaded
// dependency so it cannot exhaust the whole worker's resources.
type Bulkhead struct {
	mu       sync.Mutex
	inFlight int
	max      int
	waiters  *list.List // of chan bool; true grants a slot, false rejects
	closed   bool
}

// NewBulkhead creates a bulkhead with the given concurrency ceiling.
// Ceilings below 1 are raised to 1.
func NewBulkhead(maxConcurrent int) *Bulkhead {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Bulkhead{
		max:     maxConcurrent,
		waiters: list.New(),
	}
}

// Execute runs fn once a slot is available, waiting in FIFO order behind
// earlier callers. Waiting is bounded by the caller's context.
func (b *Bulkhead) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()

	return fn(ctx)
}

// InFlight returns the number of currently admitted calls.
func (b *Bulkhead) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

// Waiting returns the number of queued callers.
func (b *Bulkhead) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiters.Len()
}

// Close rejects all queued and future callers. In-flight calls finish.
func (b *Bulkhead) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for e := b.waiters.Front(); e != nil; e = e.Next() {
		e.Value.(chan bool) <- false
	}
	b.waiters.Init()
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBulkheadClosed
	}
	if b.inFlight < b.max {
		b.inFlight++
		b.mu.Unlock()
		return nil
	}

	// Buffered so granters and Close never block on a departed waiter.
	ready := make(chan bool, 1)
	elem := b.waiters.PushBack(ready)
	b.mu.Unlock()

	select {
	case granted := <-ready:
		if !granted {
			return ErrBulkheadClosed
		}
		// The releaser already counted this call in-flight before granting.
		return nil
	case <-ctx.Done():
		b.mu.Lock()
		defer b.mu.Unlock()
		select {
		case granted := <-ready:
			if granted {
				// Raced with a release that already granted the slot; hand
				// it on so the next waiter can run.
				b.releaseLocked()
			}
		default:
			b.waiters.Remove(elem)
		}
		return ctx.Err()
	}
}

func (b *Bulkhead) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseLocked()
}

func (b *Bulkhead) releaseLocked() {
	b.inFlight--
	if b.closed {
		return
	}
	if e := b.waiters.Front(); e != nil {
		b.waiters.Remove(e)
		// Transfer the slot to the oldest waiter before waking it.
		b.inFlight++
		e.Value.(chan bool) <- true
	}
}
