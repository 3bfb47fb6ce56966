package frame

import (
	"context"
	"sync"
)

// Cell is a single-slot, overwrite-on-write holder for the newest frame.
//
// Publish never blocks. Readers either see a complete frame or nothing: the
// frame pointer is swapped under the lock after the frame is fully built.
// Waiters are woken by closing a per-generation channel.
type Cell struct {
	mu      sync.Mutex
	current *Frame
	changed chan struct{}

	published uint64
}

// NewCell returns an empty cell.
func NewCell() *Cell {
	return &Cell{changed: make(chan struct{})}
}

// Publish replaces the held frame and wakes all waiters.
func (c *Cell) Publish(f *Frame) {
	if f == nil {
		return
	}
	c.mu.Lock()
	c.current = f
	c.published++
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
}

// Latest returns the newest frame, or nil when nothing has been published.
func (c *Cell) Latest() *Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Published returns how many frames have been published so far.
func (c *Cell) Published() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published
}

// Next blocks until a frame with Seq greater than after is available or ctx
// is done. Frames published in between are skipped, never queued.
func (c *Cell) Next(ctx context.Context, after uint64) (*Frame, error) {
	for {
		c.mu.Lock()
		f := c.current
		wait := c.changed
		c.mu.Unlock()

		if f != nil && f.Seq > after {
			return f, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}
