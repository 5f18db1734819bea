package pending

import (
	"context"
	"sync"
)

// Call is the caller's handle on one request. It completes once, with a nil
// error when the response was routed back.
type Call struct {
	ID   string
	done chan struct{}
	once sync.Once
	err  error
}

func NewCall(id string) *Call {
	return &Call{ID: id, done: make(chan struct{})}
}

func (c *Call) Complete(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *Call) Done() <-chan struct{} { return c.done }

// Err is only meaningful after Done is closed.
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the call completes or ctx ends. Abandoning a call does
// not remove its table entry; the entry lives until resolution or timeout.
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
