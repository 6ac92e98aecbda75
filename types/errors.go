// errors.go defines the error taxonomy shared by the pipeline packages.

// Package types contains the types shared across the vpipeline packages.
package types

import (
	"fmt"
	"time"
)

// ErrInvalidParam is returned when an argument is absent or out of range.
type ErrInvalidParam struct {
	Reason string
}

func (e ErrInvalidParam) Error() string {
	if e.Reason == "" {
		return "invalid parameter"
	}
	return fmt.Sprintf("invalid parameter: %s", e.Reason)
}

// ErrNotFound is returned when a node or connection lookup misses.
type ErrNotFound struct {
	What string
	ID   uint32
	Name string
}

func (e ErrNotFound) Error() string {
	switch {
	case e.Name != "":
		return fmt.Sprintf("%s '%s' not found", e.What, e.Name)
	case e.ID != 0:
		return fmt.Sprintf("%s #%d not found", e.What, e.ID)
	default:
		return fmt.Sprintf("%s not found", e.What)
	}
}

// ErrNoMemory is returned when a bounded resource (a table slot, a worker
// stack, a worker) cannot be allocated.
type ErrNoMemory struct {
	Resource string
	Err      error
}

func (e ErrNoMemory) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unable to allocate %s", e.Resource)
	}
	return fmt.Sprintf("unable to allocate %s: %v", e.Resource, e.Err)
}

func (e ErrNoMemory) Unwrap() error {
	return e.Err
}

// ErrBusy is returned when an operation is disallowed in the current state,
// e.g. connecting nodes of a running pipeline.
type ErrBusy struct {
	Op     string
	Reason string
}

func (e ErrBusy) Error() string {
	return fmt.Sprintf("unable to %s: %s", e.Op, e.Reason)
}

// ErrTimeout is returned when a queue wait exceeded its timeout.
type ErrTimeout struct {
	Op string
}

func (e ErrTimeout) Error() string {
	if e.Op == "" {
		return "timeout"
	}
	return fmt.Sprintf("%s: timeout", e.Op)
}

// ErrNotInitialized is returned by a registry that was closed.
type ErrNotInitialized struct{}

func (ErrNotInitialized) Error() string {
	return "the pipeline system is not initialized"
}

// ErrCallback wraps a failure reported by a node callback.
type ErrCallback struct {
	Node     string
	Callback string
	Err      error
}

func (e ErrCallback) Error() string {
	return fmt.Sprintf("%s callback of node '%s' failed: %v", e.Callback, e.Node, e.Err)
}

func (e ErrCallback) Unwrap() error {
	return e.Err
}

// ErrForcedTermination reports that a worker did not exit cooperatively
// within the allotted time and was abandoned.
type ErrForcedTermination struct {
	Node   string
	Waited time.Duration
}

func (e ErrForcedTermination) Error() string {
	return fmt.Sprintf("the worker of node '%s' did not exit within %v and was forcibly terminated", e.Node, e.Waited)
}
