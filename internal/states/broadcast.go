package states

import (
	"context"
	"fmt"
	"sync/atomic"
)

// generation is one immutable published state of a Broadcast property.
// A new generation is installed on every Update/Destroy; the previous
// generation's next channel is closed to wake anyone waiting on it.
type generation[T any] struct {
	value     *T
	version   uint64
	destroyed bool
	next      chan struct{}
}

// Broadcast is a lock-free, latest-value-wins observable container.
//
// Updates never block and never fail. Subscribers observe only the newest
// value at the time they check, never a queue of intermediate updates. Use it
// for high-frequency state (progress counters, liveness flags) where only
// "what is true now" matters; use Gated when a waiter must not skip the
// update that satisfies its predicate.
type Broadcast[T any] struct {
	gen atomic.Pointer[generation[T]]
}

// NewBroadcast creates a broadcast property holding an initial value.
func NewBroadcast[T any](initial T) *Broadcast[T] {
	b := &Broadcast[T]{}
	b.gen.Store(&generation[T]{
		value:   &initial,
		version: 1,
		next:    make(chan struct{}),
	})
	return b
}

// NewEmptyBroadcast creates a broadcast property with no value yet.
// Current reports no value until the first Update.
func NewEmptyBroadcast[T any]() *Broadcast[T] {
	b := &Broadcast[T]{}
	b.gen.Store(&generation[T]{
		next: make(chan struct{}),
	})
	return b
}

// Update publishes a new value to all existing and future subscribers.
// O(1), never blocks, never fails. After Destroy it is a no-op.
func (b *Broadcast[T]) Update(v T) {
	for {
		old := b.gen.Load()
		if old.destroyed {
			return
		}
		gen := &generation[T]{
			value:   &v,
			version: old.version + 1,
			next:    make(chan struct{}),
		}
		if b.gen.CompareAndSwap(old, gen) {
			close(old.next)
			return
		}
	}
}

// UpdateWith publishes fn(current). It is a no-op when the property is empty
// or destroyed. Under contention with other writers fn may be re-applied to a
// newer value, so it must be pure.
func (b *Broadcast[T]) UpdateWith(fn func(T) T) {
	for {
		old := b.gen.Load()
		if old.destroyed || old.value == nil {
			return
		}
		v := fn(*old.value)
		gen := &generation[T]{
			value:   &v,
			version: old.version + 1,
			next:    make(chan struct{}),
		}
		if b.gen.CompareAndSwap(old, gen) {
			close(old.next)
			return
		}
	}
}

// Current returns a copy of the current value. ok is false iff the property
// was destroyed or never initialized.
func (b *Broadcast[T]) Current() (T, bool) {
	gen := b.gen.Load()
	if gen.destroyed || gen.value == nil {
		var zero T
		return zero, false
	}
	return *gen.value, true
}

// Borrow runs fn with a read-only view of the current value, without copying
// it. fn receives nil when the property is empty or destroyed. The pointer
// must not be retained or written through after fn returns.
func (b *Broadcast[T]) Borrow(fn func(*T)) {
	gen := b.gen.Load()
	if gen.destroyed {
		fn(nil)
		return
	}
	fn(gen.value)
}

// Destroy marks the property terminal and wakes all subscribers once.
// It is idempotent; concurrent calls are safe.
func (b *Broadcast[T]) Destroy() {
	for {
		old := b.gen.Load()
		if old.destroyed {
			return
		}
		gen := &generation[T]{
			version:   old.version + 1,
			destroyed: true,
			next:      make(chan struct{}),
		}
		if b.gen.CompareAndSwap(old, gen) {
			close(old.next)
			return
		}
	}
}

// Destroyed reports whether the property has been destroyed.
func (b *Broadcast[T]) Destroyed() bool {
	return b.gen.Load().destroyed
}

func (b *Broadcast[T]) snapshot() (T, bool) {
	return b.Current()
}

// Subscribe creates a subscription tracking the last observed version.
// A subscription created after any number of updates yields the then-current
// value on its first Next call.
func (b *Broadcast[T]) Subscribe() *Subscription[T] {
	return &Subscription[T]{b: b}
}

// Subscription observes a Broadcast property with latest-value-wins
// semantics. A Subscription must not be used from multiple goroutines
// concurrently; create one per consumer instead.
type Subscription[T any] struct {
	b    *Broadcast[T]
	seen uint64
}

// Next blocks until a value newer than the last observed one is available
// and returns it. It returns ErrWatcherClosed once the property is
// destroyed, or an ErrRecv-wrapped context error if ctx ends first.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		gen := s.b.gen.Load()
		if gen.destroyed {
			return zero, ErrWatcherClosed
		}
		if gen.value != nil && gen.version > s.seen {
			s.seen = gen.version
			return *gen.value, nil
		}
		select {
		case <-gen.next:
		case <-ctx.Done():
			return zero, fmt.Errorf("%w: %w", ErrRecv, ctx.Err())
		}
	}
}

// Current returns a copy of the property's current value without waiting and
// without advancing the subscription's position.
func (s *Subscription[T]) Current() (T, bool) {
	return s.b.Current()
}
