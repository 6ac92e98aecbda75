package node

import (
	"fmt"
)

type ErrAlreadyStarted struct {
	Node string
}

func (e ErrAlreadyStarted) Error() string {
	return fmt.Sprintf("the worker of node '%s' is already started", e.Node)
}

// ErrInvalidOutputCount is reported when Process returns more outputs
// than there are output slots.
type ErrInvalidOutputCount struct {
	Count int
	Max   int
}

func (e ErrInvalidOutputCount) Error() string {
	return fmt.Sprintf("process returned %d outputs, while only %d slots are available", e.Count, e.Max)
}

// ErrPanic is a panic recovered from a kernel callback.
type ErrPanic struct {
	Value any
	Stack []byte
}

func (e ErrPanic) Error() string {
	return fmt.Sprintf("got panic: %v", e.Value)
}
