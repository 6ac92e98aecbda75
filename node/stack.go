package node

import (
	"context"

	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/logger"
	"github.com/xaionaro-go/vpipeline/pool"
)

// Stack is the per-worker storage: the input and output slots handed
// to Kernel.Process on every iteration.
type Stack struct {
	Inputs  [MaxInputs]*frame.Frame
	Outputs [MaxOutputs]*frame.Frame
}

func (s *Stack) reset() {
	clear(s.Inputs[:])
	clear(s.Outputs[:])
}

// StackAllocator provides worker stacks.
type StackAllocator interface {
	Allocate(ctx context.Context) (*Stack, error)

	// Release returns a stack of a worker that exited.
	Release(ctx context.Context, s *Stack)

	// Discard returns a stack of a worker that was forcibly terminated;
	// the stack must not be reused since the worker may still touch it.
	Discard(ctx context.Context, s *Stack)
}

// PoolStackAllocator is a StackAllocator limiting the amount of
// stacks in use at once.
type PoolStackAllocator struct {
	Pool *pool.Pool[Stack]
}

var _ StackAllocator = (*PoolStackAllocator)(nil)

// NewPoolStackAllocator returns an allocator handing out at most `budget`
// stacks at once (zero means unlimited).
func NewPoolStackAllocator(budget uint64) *PoolStackAllocator {
	return &PoolStackAllocator{
		Pool: pool.NewPool(
			func() *Stack { return &Stack{} },
			(*Stack).reset,
			budget,
		),
	}
}

func (a *PoolStackAllocator) Allocate(ctx context.Context) (*Stack, error) {
	s, err := a.Pool.Get()
	if err != nil {
		return nil, err
	}
	logger.Tracef(ctx, "allocated a worker stack, in use: %d", a.Pool.InUse())
	return s, nil
}

func (a *PoolStackAllocator) Release(ctx context.Context, s *Stack) {
	a.Pool.Put(s)
	logger.Tracef(ctx, "released a worker stack, in use: %d", a.Pool.InUse())
}

func (a *PoolStackAllocator) Discard(ctx context.Context, s *Stack) {
	a.Pool.Forget(s)
	logger.Debugf(ctx, "discarded a worker stack, in use: %d", a.Pool.InUse())
}

// InUse returns the amount of stacks allocated and not yet released or discarded.
func (a *PoolStackAllocator) InUse() uint64 {
	return a.Pool.InUse()
}
