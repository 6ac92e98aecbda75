// queue.go implements a bounded FIFO of frames with blocking push/pop.

// Package queue provides the bounded frame queue connecting a node to its consumers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/types"
)

// Queue is a fixed-capacity ring of frames. Producers wait for a free slot,
// consumers wait for an available item; both waits are bounded by a timeout.
type Queue struct {
	locker   sync.Mutex
	ring     []*frame.Frame
	head     uint
	tail     uint
	count    uint
	maxDepth uint

	items *semaphore.Weighted
	slots *semaphore.Weighted
}

func New(capacity uint) (*Queue, error) {
	q := &Queue{}
	if err := q.init(capacity); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) init(capacity uint) error {
	if capacity == 0 {
		return types.ErrInvalidParam{Reason: "queue capacity must be positive"}
	}
	q.ring = make([]*frame.Frame, capacity)
	q.head, q.tail, q.count, q.maxDepth = 0, 0, 0, 0
	q.items = semaphore.NewWeighted(int64(capacity))
	if !q.items.TryAcquire(int64(capacity)) {
		panic("a fresh semaphore is expected to be fully available")
	}
	q.slots = semaphore.NewWeighted(int64(capacity))
	return nil
}

// acquire waits for one unit of sem:
// timeout == 0 means do not wait at all,
// timeout < 0 means wait until ctx is done.
func acquire(
	ctx context.Context,
	sem *semaphore.Weighted,
	timeout time.Duration,
	op string,
) error {
	switch {
	case timeout == 0:
		if !sem.TryAcquire(1) {
			return types.ErrTimeout{Op: op}
		}
		return nil
	case timeout < 0:
		return sem.Acquire(ctx, 1)
	}

	waitCtx, cancelFn := context.WithTimeout(ctx, timeout)
	defer cancelFn()
	err := sem.Acquire(waitCtx, 1)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return types.ErrTimeout{Op: op}
	default:
		return err
	}
}

// Push appends the frame to the tail of the queue. On failure the queue
// is not modified and the frame is still owned by the caller.
func (q *Queue) Push(
	ctx context.Context,
	f *frame.Frame,
	timeout time.Duration,
) error {
	if q == nil {
		return types.ErrInvalidParam{Reason: "queue is nil"}
	}
	if f == nil {
		return types.ErrInvalidParam{Reason: "frame is nil"}
	}
	q.locker.Lock()
	slots, items := q.slots, q.items
	q.locker.Unlock()

	if err := acquire(ctx, slots, timeout, "push"); err != nil {
		return err
	}

	q.locker.Lock()
	if q.slots != slots {
		q.locker.Unlock()
		return types.ErrBusy{Op: "push", Reason: "the queue was reset"}
	}
	q.ring[q.tail] = f
	q.tail = (q.tail + 1) % uint(len(q.ring))
	q.count++
	if q.count > q.maxDepth {
		q.maxDepth = q.count
	}
	q.locker.Unlock()

	items.Release(1)
	return nil
}

// Pop removes the frame at the head of the queue; the caller receives the
// reference the producer pushed.
func (q *Queue) Pop(
	ctx context.Context,
	timeout time.Duration,
) (*frame.Frame, error) {
	if q == nil {
		return nil, types.ErrInvalidParam{Reason: "queue is nil"}
	}
	q.locker.Lock()
	slots, items := q.slots, q.items
	q.locker.Unlock()

	if err := acquire(ctx, items, timeout, "pop"); err != nil {
		return nil, err
	}

	q.locker.Lock()
	if q.items != items {
		q.locker.Unlock()
		return nil, types.ErrBusy{Op: "pop", Reason: "the queue was reset"}
	}
	f := q.ring[q.head]
	q.ring[q.head] = nil
	q.head = (q.head + 1) % uint(len(q.ring))
	q.count--
	q.locker.Unlock()

	slots.Release(1)
	return f, nil
}

func (q *Queue) Len() uint {
	q.locker.Lock()
	defer q.locker.Unlock()
	return q.count
}

func (q *Queue) Cap() uint {
	q.locker.Lock()
	defer q.locker.Unlock()
	return uint(len(q.ring))
}

// MaxDepth returns the highest amount of frames the queue held since
// the creation or the last ResetMaxDepth.
func (q *Queue) MaxDepth() uint {
	q.locker.Lock()
	defer q.locker.Unlock()
	return q.maxDepth
}

func (q *Queue) ResetMaxDepth() {
	q.locker.Lock()
	defer q.locker.Unlock()
	q.maxDepth = q.count
}

// Reset reinitializes the queue with a new capacity and returns the frames
// it held; releasing them is up to the caller. It is not supposed to be
// called while other goroutines wait on the queue: a waiter that manages
// to acquire the previous incarnation fails with ErrBusy.
func (q *Queue) Reset(capacity uint) ([]*frame.Frame, error) {
	if capacity == 0 {
		return nil, types.ErrInvalidParam{Reason: "queue capacity must be positive"}
	}
	q.locker.Lock()
	defer q.locker.Unlock()
	dropped := q.takeAllLocked()
	if err := q.init(capacity); err != nil {
		return dropped, err
	}
	return dropped, nil
}

// Drain removes every frame from the queue and returns them.
func (q *Queue) Drain() []*frame.Frame {
	var result []*frame.Frame
	for {
		f, err := q.Pop(context.Background(), 0)
		if err != nil {
			return result
		}
		result = append(result, f)
	}
}

func (q *Queue) takeAllLocked() []*frame.Frame {
	result := make([]*frame.Frame, 0, q.count)
	for q.count > 0 {
		result = append(result, q.ring[q.head])
		q.ring[q.head] = nil
		q.head = (q.head + 1) % uint(len(q.ring))
		q.count--
	}
	return result
}

func (q *Queue) String() string {
	q.locker.Lock()
	defer q.locker.Unlock()
	return fmt.Sprintf("queue(%d/%d)", q.count, len(q.ring))
}
