// pool.go implements a generic object pool with an optional budget on the
// number of objects handed out at once.

// Package pool provides a generic budgeted object pool.
package pool

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

var ReuseMemory = true

// ErrExhausted is returned by Get when the pool already handed out
// as many objects as its budget allows.
type ErrExhausted struct {
	Budget uint64
}

func (e ErrExhausted) Error() string {
	return fmt.Sprintf("the pool budget of %d objects is exhausted", e.Budget)
}

type Pool[T any] struct {
	sync.Pool
	ResetFunc func(*T)

	// Budget limits the amount of objects being in use simultaneously;
	// zero means no limit.
	Budget uint64

	inUse atomic.Uint64
}

func NewPool[T any](
	allocFunc func() *T,
	resetFunc func(*T),
	budget uint64,
) *Pool[T] {
	return &Pool[T]{
		Pool: sync.Pool{
			New: func() any {
				return allocFunc()
			},
		},
		ResetFunc: resetFunc,
		Budget:    budget,
	}
}

func (p *Pool[T]) Get() (*T, error) {
	for {
		inUse := p.inUse.Load()
		if p.Budget > 0 && inUse >= p.Budget {
			return nil, ErrExhausted{Budget: p.Budget}
		}
		if p.inUse.CompareAndSwap(inUse, inUse+1) {
			break
		}
	}
	return p.Pool.Get().(*T), nil
}

func (p *Pool[T]) Put(items ...*T) {
	for _, item := range items {
		if item == nil {
			continue
		}
		if !p.release() {
			continue
		}
		if !ReuseMemory {
			continue
		}
		if p.ResetFunc != nil {
			p.ResetFunc(item)
		}
		p.Pool.Put(item)
	}
}

// Forget accounts the items as returned without reusing them, e.g. when
// they may still be referenced by somebody else.
func (p *Pool[T]) Forget(items ...*T) {
	for _, item := range items {
		if item == nil {
			continue
		}
		p.release()
	}
}

// release returns false if nothing is accounted as in use, e.g. when
// the item did not come from Get.
func (p *Pool[T]) release() bool {
	for {
		inUse := p.inUse.Load()
		if inUse == 0 {
			return false
		}
		if p.inUse.CompareAndSwap(inUse, inUse-1) {
			return true
		}
	}
}

// InUse returns the amount of objects acquired by Get and not yet returned by Put.
func (p *Pool[T]) InUse() uint64 {
	return p.inUse.Load()
}
