package states

import (
	"context"
	"fmt"
	"sync"
)

// Queue is the producer half of an unbounded FIFO command queue. Many
// producers may share one Queue; exactly one QueueConsumer drains it in
// order. The most recently enqueued element is mirrored into a Broadcast
// property so that bystanders can observe traffic read-only via Watch
// without competing with the consumer.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	// wake is closed and replaced whenever an item is appended or the
	// queue is closed, using the same registration-before-suspend protocol
	// as Gated.
	wake   chan struct{}
	mirror *Broadcast[T]
}

// QueueConsumer is the single receiving end of a Queue.
// It must not be shared between goroutines.
type QueueConsumer[T any] struct {
	q *Queue[T]
}

// NewQueue creates a queue and its consumer. The producer side may be handed
// to any number of goroutines; the consumer side to exactly one.
func NewQueue[T any]() (*Queue[T], *QueueConsumer[T]) {
	q := &Queue[T]{
		wake:   make(chan struct{}),
		mirror: NewEmptyBroadcast[T](),
	}
	return q, &QueueConsumer[T]{q: q}
}

// Send appends v to the queue without blocking.
// Returns ErrWatcherClosed if the queue was closed.
func (q *Queue[T]) Send(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrWatcherClosed
	}
	q.items = append(q.items, v)
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()

	q.mirror.Update(v)
	return nil
}

// Watch returns a read-only subscription over the last enqueued element.
func (q *Queue[T]) Watch() *Subscription[T] {
	return q.mirror.Subscribe()
}

// Close ends the stream. Items already enqueued are still delivered; once
// drained, Recv returns ErrWatcherClosed. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()

	q.mirror.Destroy()
}

// Recv returns the next element in FIFO order, suspending while the queue is
// empty. Returns ErrWatcherClosed once the queue is closed and drained, or
// an ErrRecv-wrapped context error if ctx ends first.
func (c *QueueConsumer[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		c.q.mu.Lock()
		if len(c.q.items) > 0 {
			v := c.q.items[0]
			c.q.items = c.q.items[1:]
			c.q.mu.Unlock()
			return v, nil
		}
		if c.q.closed {
			c.q.mu.Unlock()
			return zero, ErrWatcherClosed
		}
		token := c.q.wake
		c.q.mu.Unlock()

		select {
		case <-token:
		case <-ctx.Done():
			return zero, fmt.Errorf("%w: %w", ErrRecv, ctx.Err())
		}
	}
}

// TryRecv returns the next element without blocking, or false when the queue
// is empty.
func (c *QueueConsumer[T]) TryRecv() (T, bool) {
	c.q.mu.Lock()
	defer c.q.mu.Unlock()
	if len(c.q.items) == 0 {
		var zero T
		return zero, false
	}
	v := c.q.items[0]
	c.q.items = c.q.items[1:]
	return v, true
}

// Len reports the number of undelivered elements.
func (c *QueueConsumer[T]) Len() int {
	c.q.mu.Lock()
	defer c.q.mu.Unlock()
	return len(c.q.items)
}
