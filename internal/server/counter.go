package server

import "sync/atomic"

// Counter hands out connection ids. The first id is 1, for the zero value
// too, and ids are never reused for the lifetime of the counter.
type Counter struct {
	last atomic.Uint64
}

// NewCounter returns a counter whose first id is 1.
func NewCounter() *Counter {
	return &Counter{}
}

// Next returns the next id.
func (c *Counter) Next() uint64 {
	return c.last.Add(1)
}
