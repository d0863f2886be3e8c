package states

import "errors"

var (
	// ErrWatcherClosed indicates the notification side of a container is gone:
	// the property backing a subscription or queue was destroyed or closed.
	ErrWatcherClosed = errors.New("watcher closed")

	// ErrDestroyed indicates the container was explicitly terminated.
	// This is the expected terminal state, not an infrastructure fault.
	ErrDestroyed = errors.New("property destroyed")

	// ErrRecv indicates the wait primitive itself failed before a
	// notification arrived. Errors wrapped with ErrRecv also carry the
	// underlying cause (typically a context error), so callers can match
	// either with errors.Is.
	ErrRecv = errors.New("receive failed")
)
