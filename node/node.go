// node.go defines Node: a kernel, its output queue and its worker.

// Package node provides pipeline nodes and the workers driving them.
package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astikit"
	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"

	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/logger"
	"github.com/xaionaro-go/vpipeline/queue"
	"github.com/xaionaro-go/vpipeline/types"
)

// Owner is whoever routes frames between nodes (a pipeline).
type Owner interface {
	fmt.Stringer

	// GetConnections returns the current connections; the returned
	// slice must not be modified.
	GetConnections() []*Connection
}

type Node struct {
	Locker xsync.Mutex
	Kernel Kernel
	Config Config

	id          atomic.Uint32
	name        string
	typ         Type
	outputQueue *queue.Queue
	owner       *Owner
	state       atomic.Uint32
	execState   atomic.Uint32
	paused      atomic.Bool
	initialized atomic.Bool
	destroyed   atomic.Bool
	counters    counters
	closer      *astikit.Closer

	// access only while holding Locker
	worker *worker
}

func New(
	ctx context.Context,
	name string,
	typ Type,
	kernel Kernel,
	opts ...Option,
) (*Node, error) {
	if name == "" {
		return nil, types.ErrInvalidParam{Reason: "node name is empty"}
	}
	if kernel == nil {
		return nil, types.ErrInvalidParam{Reason: "node kernel is nil"}
	}
	cfg := Options(opts).config()
	q, err := queue.New(cfg.QueueSize)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the output queue of node '%s': %w", name, err)
	}

	n := &Node{
		Kernel:      kernel,
		Config:      cfg,
		name:        name,
		typ:         typ,
		outputQueue: q,
		closer:      astikit.NewCloser(),
	}

	closeCtx := xcontext.DetachDone(ctx)
	if c, ok := cfg.PrivateData.(types.Closer); ok {
		n.closer.AddWithError(func() error {
			return c.Close(closeCtx)
		})
	}
	n.closer.AddWithError(func() error {
		return frame.UnrefAll(closeCtx, n.outputQueue.Drain()...)
	})
	return n, nil
}

func (n *Node) ID() uint32 {
	return n.id.Load()
}

func (n *Node) Name() string {
	if n == nil {
		return "<nil>"
	}
	return n.name
}

func (n *Node) Type() Type {
	return n.typ
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%s#%d)", n.name, n.typ, n.ID())
}

func (n *Node) PrivateData() any {
	return n.Config.PrivateData
}

func (n *Node) OutputQueue() *queue.Queue {
	return n.outputQueue
}

func (n *Node) State() State {
	return State(n.state.Load())
}

func (n *Node) SetState(s State) {
	n.state.Store(uint32(s))
}

func (n *Node) ExecState() ExecState {
	return ExecState(n.execState.Load())
}

func (n *Node) setExecState(s ExecState) {
	n.execState.Store(uint32(s))
}

// Owner returns the pipeline the node is registered in, or nil.
func (n *Node) Owner() Owner {
	ptr := xatomic.LoadPointer(&n.owner)
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Attach links the node to its owner; a node may have only one owner.
func (n *Node) Attach(
	ctx context.Context,
	owner Owner,
	id uint32,
) (_err error) {
	logger.Debugf(ctx, "Attach[%s]: %s", n.name, owner)
	defer func() { logger.Debugf(ctx, "/Attach[%s]: %s: %v", n.name, owner, _err) }()
	if owner == nil {
		return types.ErrInvalidParam{Reason: "owner is nil"}
	}
	return xsync.DoR1(ctx, &n.Locker, func() error {
		if n.destroyed.Load() {
			return types.ErrInvalidParam{Reason: fmt.Sprintf("node '%s' is destroyed", n.name)}
		}
		if cur := n.Owner(); cur != nil {
			return types.ErrBusy{Op: "attach the node", Reason: fmt.Sprintf("node '%s' already belongs to %s", n.name, cur)}
		}
		n.id.Store(id)
		xatomic.StorePointer(&n.owner, &owner)
		return nil
	})
}

// Detach unlinks the node from the owner.
func (n *Node) Detach(
	ctx context.Context,
	owner Owner,
) {
	logger.Debugf(ctx, "Detach[%s]", n.name)
	defer func() { logger.Debugf(ctx, "/Detach[%s]", n.name) }()
	n.Locker.Do(ctx, func() {
		if n.Owner() != owner {
			return
		}
		xatomic.StorePointer(&n.owner, nil)
		n.id.Store(0)
		n.SetState(StateIdle)
	})
}

// Init runs the Init callback of the kernel; on success the node is ready.
func (n *Node) Init(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Init[%s]", n.name)
	defer func() { logger.Debugf(ctx, "/Init[%s]: %v", n.name, _err) }()
	if !n.initialized.CompareAndSwap(false, true) {
		return nil
	}
	if err := n.Kernel.Init(ctx, n); err != nil {
		n.initialized.Store(false)
		n.SetState(StateError)
		return types.ErrCallback{Node: n.name, Callback: "init", Err: err}
	}
	n.SetState(StateReady)
	return nil
}

// Deinit runs the Deinit callback of the kernel if the node was
// initialized; it never runs it twice for one Init.
func (n *Node) Deinit(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Deinit[%s]", n.name)
	defer func() { logger.Debugf(ctx, "/Deinit[%s]: %v", n.name, _err) }()
	if !n.initialized.CompareAndSwap(true, false) {
		return nil
	}
	if err := n.Kernel.Deinit(ctx, n); err != nil {
		return types.ErrCallback{Node: n.name, Callback: "deinit", Err: err}
	}
	return nil
}

// Control synchronously passes a command to the kernel.
func (n *Node) Control(
	ctx context.Context,
	cmd Command,
	param any,
) (_err error) {
	logger.Debugf(ctx, "Control[%s]: 0x%04X", n.name, uint32(cmd))
	defer func() { logger.Debugf(ctx, "/Control[%s]: 0x%04X: %v", n.name, uint32(cmd), _err) }()
	return n.Kernel.Control(ctx, n, cmd, param)
}

// SetQueueSize reinitializes the output queue with a new capacity,
// releasing the frames it held.
func (n *Node) SetQueueSize(
	ctx context.Context,
	size uint,
) (_err error) {
	logger.Debugf(ctx, "SetQueueSize[%s]: %d", n.name, size)
	defer func() { logger.Debugf(ctx, "/SetQueueSize[%s]: %d: %v", n.name, size, _err) }()
	return xsync.DoR1(ctx, &n.Locker, func() error {
		if n.worker != nil {
			return types.ErrBusy{Op: "resize the queue", Reason: fmt.Sprintf("node '%s' is running", n.name)}
		}
		dropped, err := n.outputQueue.Reset(size)
		if err != nil {
			return err
		}
		n.Config.QueueSize = size
		return frame.UnrefAll(ctx, dropped...)
	})
}

// PushFrame puts a frame to the output queue of the node without waiting.
func (n *Node) PushFrame(ctx context.Context, f *frame.Frame) error {
	return n.outputQueue.Push(ctx, f, 0)
}

// PullFrame takes a frame from the output queue of the node without waiting.
func (n *Node) PullFrame(ctx context.Context) (*frame.Frame, error) {
	return n.outputQueue.Pop(ctx, 0)
}

func (n *Node) Pause(ctx context.Context) {
	logger.Debugf(ctx, "Pause[%s]", n.name)
	n.paused.Store(true)
	if n.State() == StateRunning {
		n.SetState(StatePaused)
	}
}

func (n *Node) Resume(ctx context.Context) {
	logger.Debugf(ctx, "Resume[%s]", n.name)
	n.paused.Store(false)
	if n.State() == StatePaused {
		n.SetState(StateRunning)
	}
}

func (n *Node) IsPaused() bool {
	return n.paused.Load()
}

// Destroy stops the worker (if any), deinitializes the kernel and
// releases every frame still held by the output queue.
func (n *Node) Destroy(ctx context.Context) (_err error) {
	ctx = xcontext.DetachDone(ctx)
	logger.Debugf(ctx, "Destroy[%s]", n.name)
	defer func() { logger.Debugf(ctx, "/Destroy[%s]: %v", n.name, _err) }()
	if !n.destroyed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if err := n.StopWorker(ctx, DefaultStopTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := n.Deinit(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := n.closer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("unable to close the resources of node '%s': %w", n.name, err))
	}
	n.SetState(StateIdle)
	return errors.Join(errs...)
}

func (n *Node) IsDestroyed() bool {
	return n.destroyed.Load()
}
