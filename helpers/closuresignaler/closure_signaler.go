// closure_signaler.go provides a one-shot signal used to ask a worker to quit.

// Package closuresignaler provides a one-shot, idempotent closure signal.
package closuresignaler

import (
	"context"
	"sync"

	"github.com/xaionaro-go/vpipeline/logger"
)

type ClosureSignaler struct {
	closeOnce sync.Once
	c         chan struct{}
	cause     error
}

func New() *ClosureSignaler {
	return &ClosureSignaler{
		c: make(chan struct{}),
	}
}

func (c *ClosureSignaler) CloseChan() <-chan struct{} {
	return c.c
}

func (c *ClosureSignaler) Close(ctx context.Context) {
	c.CloseWithCause(ctx, nil)
}

// CloseWithCause closes the signal and remembers the cause; only the first
// call has an effect.
func (c *ClosureSignaler) CloseWithCause(ctx context.Context, cause error) {
	logger.Debugf(ctx, "CloseWithCause: %v", cause)
	defer func() { logger.Debugf(ctx, "/CloseWithCause: %v", cause) }()
	c.closeOnce.Do(func() {
		c.cause = cause
		close(c.c)
	})
}

// Cause returns the error passed to CloseWithCause, or nil if the
// signal is still open or was closed without a cause.
func (c *ClosureSignaler) Cause() error {
	if !c.IsClosed() {
		return nil
	}
	return c.cause
}

func (c *ClosureSignaler) IsClosed() bool {
	select {
	case <-c.c:
		return true
	default:
		return false
	}
}
