package job

import (
	"context"
	"sync"
	"time"

	"gmaps-engine/internal/search"
)

// control is the flag set the worker polls at checkpoints.
type control struct {
	mu      sync.Mutex
	paused  bool
	stopped bool
	wake    chan struct{} // closed on every change
	stopCh  chan struct{}
}

func newControl() *control {
	return &control{wake: make(chan struct{}), stopCh: make(chan struct{})}
}

func (c *control) signalLocked() {
	close(c.wake)
	c.wake = make(chan struct{})
}

func (c *control) pause() {
	c.mu.Lock()
	c.paused = true
	c.signalLocked()
	c.mu.Unlock()
}

func (c *control) resume() {
	c.mu.Lock()
	c.paused = false
	c.signalLocked()
	c.mu.Unlock()
}

func (c *control) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stopCh)
	c.signalLocked()
}

// Wait blocks while paused. It returns search.ErrStopped once stop was requested.
func (c *control) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return search.ErrStopped
		}
		if !c.paused {
			c.mu.Unlock()
			return nil
		}
		ch := c.wake
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Sleep waits for d but wakes early on stop.
func (c *control) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopCh:
		return search.ErrStopped
	case <-t.C:
		return nil
	}
}
