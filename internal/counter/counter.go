// Package counter counts sensor detections from a GPIO input polled in its
// own goroutine, shared with the tick driver that reads and resets the total.
package counter

import "sync"

// Counter is a cycle count safe for concurrent use.
type Counter struct {
	mu sync.Mutex
	n  int64
}

// Increment adds one detection.
func (c *Counter) Increment() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

// Reset sets the count to zero.
func (c *Counter) Reset() {
	c.mu.Lock()
	c.n = 0
	c.mu.Unlock()
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
