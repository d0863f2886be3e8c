package states

// Source is any container that can report a snapshot of its current value.
// Both Broadcast and Gated satisfy it.
type Source[T any] interface {
	snapshot() (T, bool)
}

// Map reads the current value once and applies fn to it exactly once.
// If the container is empty or destroyed it returns (zero, false) without
// invoking fn.
func Map[T, R any](s Source[T], fn func(T) R) (R, bool) {
	v, ok := s.snapshot()
	if !ok {
		var zero R
		return zero, false
	}
	return fn(v), true
}

// GetOrDefault returns a copy of the current value, or T's zero value when
// the container is empty or destroyed. It never fails.
func GetOrDefault[T any](s Source[T]) T {
	v, _ := s.snapshot()
	return v
}
