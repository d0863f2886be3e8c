// Package states provides the in-process observable-value containers used to
// coordinate producers and consumers across goroutines.
//
// Two tiers are offered: Broadcast, a lock-free latest-value-wins container
// for high-frequency state, and Gated, a lock-based container whose WaitUntil
// is free of lost-wakeup races. Queue adds a FIFO command channel with a
// read-only broadcast mirror. All containers share one error taxonomy and are
// torn down with an idempotent Destroy.
package states
