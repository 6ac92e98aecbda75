package node

import (
	"context"

	"github.com/xaionaro-go/vpipeline/frame"
)

// Command is an out-of-band control code understood by a specific kernel.
type Command uint32

// Kernel is the set of callbacks defining what a node does.
type Kernel interface {
	// Init is called once when the node is registered in a pipeline.
	Init(ctx context.Context, n *Node) error

	// Deinit is called once when the node is unregistered or destroyed.
	Deinit(ctx context.Context, n *Node) error

	// Process consumes the inputs (empty for sources) and fills the first
	// slots of outputs, returning how many were filled. Every returned
	// output carries one reference, which is handed over to the pipeline.
	Process(ctx context.Context, n *Node, inputs []*frame.Frame, outputs []*frame.Frame) (int, error)

	// Control handles a kernel-specific command; it may be called
	// concurrently with Process.
	Control(ctx context.Context, n *Node, cmd Command, param any) error
}

// Funcs builds a Kernel from functions; nil functions are no-ops.
type Funcs struct {
	InitFunc    func(ctx context.Context, n *Node) error
	DeinitFunc  func(ctx context.Context, n *Node) error
	ProcessFunc func(ctx context.Context, n *Node, inputs []*frame.Frame, outputs []*frame.Frame) (int, error)
	ControlFunc func(ctx context.Context, n *Node, cmd Command, param any) error
}

var _ Kernel = (*Funcs)(nil)

func (k *Funcs) Init(ctx context.Context, n *Node) error {
	if k.InitFunc == nil {
		return nil
	}
	return k.InitFunc(ctx, n)
}

func (k *Funcs) Deinit(ctx context.Context, n *Node) error {
	if k.DeinitFunc == nil {
		return nil
	}
	return k.DeinitFunc(ctx, n)
}

func (k *Funcs) Process(
	ctx context.Context,
	n *Node,
	inputs []*frame.Frame,
	outputs []*frame.Frame,
) (int, error) {
	if k.ProcessFunc == nil {
		return 0, nil
	}
	return k.ProcessFunc(ctx, n, inputs, outputs)
}

func (k *Funcs) Control(ctx context.Context, n *Node, cmd Command, param any) error {
	if k.ControlFunc == nil {
		return nil
	}
	return k.ControlFunc(ctx, n, cmd, param)
}
