package states

import (
	"context"
	"fmt"
	"sync"
)

// Gated is a lock-protected observable container with linearizable reads and
// a blocking predicate wait that cannot miss the update satisfying it.
//
// Every Update and Destroy wakes all outstanding waiters; a waiter whose
// predicate is still false re-checks and suspends again. This trades a
// bounded number of spurious wakeups for a strict no-lost-wakeup guarantee.
// Prefer Broadcast for very high-frequency values where waiters don't need
// that guarantee.
type Gated[T any] struct {
	mu        sync.Mutex
	value     *T
	destroyed bool

	// changed is closed and replaced on every mutation. A waiter captures
	// the channel while still holding mu, which is its registration for the
	// next wakeup: any mutation after the capture closes exactly that
	// channel, so the waiter cannot sleep through it.
	changed chan struct{}
}

// NewGated creates a gated property holding an initial value.
func NewGated[T any](initial T) *Gated[T] {
	return &Gated[T]{
		value:   &initial,
		changed: make(chan struct{}),
	}
}

// NewEmptyGated creates a gated property with no value yet. WaitUntil
// suspends until the first Update; Current reports no value.
func NewEmptyGated[T any]() *Gated[T] {
	return &Gated[T]{
		changed: make(chan struct{}),
	}
}

// Update replaces the value and wakes all waiters. The lock is held only for
// the replacement itself. Returns ErrDestroyed if the property is terminal.
func (g *Gated[T]) Update(v T) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed {
		return ErrDestroyed
	}
	g.value = &v
	g.wake()
	return nil
}

// TryUpdate attempts a non-blocking update. It returns (false, nil) with no
// side effects if the lock is not immediately available, and ErrDestroyed if
// the property is terminal. It never suspends the caller.
func (g *Gated[T]) TryUpdate(v T) (bool, error) {
	if !g.mu.TryLock() {
		return false, nil
	}
	defer g.mu.Unlock()
	if g.destroyed {
		return false, ErrDestroyed
	}
	g.value = &v
	g.wake()
	return true, nil
}

// UpdateWith locks, lets fn mutate the value in place, then wakes all
// waiters. fn receives nil when the property has no value yet and may not
// retain the pointer. Returns ErrDestroyed without invoking fn if the
// property is terminal.
func (g *Gated[T]) UpdateWith(fn func(*T)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed {
		return ErrDestroyed
	}
	fn(g.value)
	g.wake()
	return nil
}

// Current acquires the lock and returns a copy of the current value.
// It returns (nil, ErrDestroyed) once the property is terminal, and
// (nil, nil) when the property is alive but was never initialized.
func (g *Gated[T]) Current() (*T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed {
		return nil, ErrDestroyed
	}
	if g.value == nil {
		return nil, nil
	}
	v := *g.value
	return &v, nil
}

// Borrow runs fn with a read-only view of the value while holding the lock.
// fn receives nil when the property has no value. fn must not block on
// anything that needs this property, or on another goroutine that does.
// Returns ErrDestroyed without invoking fn if the property is terminal.
func (g *Gated[T]) Borrow(fn func(*T)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed {
		return ErrDestroyed
	}
	fn(g.value)
	return nil
}

// WaitUntil suspends the caller until pred holds for the current value.
//
// The protocol is: capture the wakeup channel under the lock (registration),
// check the tombstone and the predicate, release the lock, then wait on the
// captured channel. Because registration happens before the lock is
// released, a concurrent Update or Destroy cannot slip between the check and
// the suspension. Wakeups are broadcast to all waiters; a waiter whose
// predicate is still false simply loops.
//
// Returns ErrDestroyed once the property is terminal, or an ErrRecv-wrapped
// context error if ctx ends first. There is no built-in timeout; bound the
// wait through ctx.
func (g *Gated[T]) WaitUntil(ctx context.Context, pred func(T) bool) error {
	for {
		g.mu.Lock()
		if g.destroyed {
			g.mu.Unlock()
			return ErrDestroyed
		}
		if g.value != nil && pred(*g.value) {
			g.mu.Unlock()
			return nil
		}
		token := g.changed
		g.mu.Unlock()

		select {
		case <-token:
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrRecv, ctx.Err())
		}
	}
}

// Destroy marks the property terminal, drops the value and wakes all
// waiters. It is idempotent; the first call wins and later calls observe the
// same terminal state.
func (g *Gated[T]) Destroy() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed {
		return
	}
	g.destroyed = true
	g.value = nil
	g.wake()
}

// Destroyed reports whether the property has been destroyed.
func (g *Gated[T]) Destroyed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.destroyed
}

func (g *Gated[T]) snapshot() (T, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed || g.value == nil {
		var zero T
		return zero, false
	}
	return *g.value, true
}

// wake must be called with mu held.
func (g *Gated[T]) wake() {
	close(g.changed)
	g.changed = make(chan struct{})
}
