/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned by Acquire when no slot became free within the timeout.
var ErrTimeout = errors.New("no free dispatch slot within timeout")

// Controller limits the number of simultaneously active dispatchers.
type Controller struct {
	slots chan struct{}
}

// New creates a new Controller with poolSize free slots.
func New(poolSize int) (*Controller, error) {
	if poolSize <= 0 {
		return nil, fmt.Errorf("pool size should be positive, got %d", poolSize)
	}
	return &Controller{slots: make(chan struct{}, poolSize)}, nil
}

// Acquire takes a free slot.
// If all slots are busy, it blocks until one is released, the timeout elapses (ErrTimeout is returned)
// or the context is done (the context's error is returned).
func (c *Controller) Acquire(ctx context.Context, timeout time.Duration) error {
	select {
	case c.slots <- struct{}{}:
		return nil
	default:
	}

	if timeout <= 0 {
		return ErrTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot to the pool and wakes one waiter, if any.
// It returns false (and does nothing) when there is no acquired slot to return.
func (c *Controller) Release() bool {
	select {
	case <-c.slots:
		return true
	default:
		return false
	}
}

// Free returns the number of slots that can be acquired without waiting.
func (c *Controller) Free() int {
	return cap(c.slots) - len(c.slots)
}

// Size returns the pool size.
func (c *Controller) Size() int {
	return cap(c.slots)
}
