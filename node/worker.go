package node

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"

	"github.com/xaionaro-go/vpipeline/helpers/closuresignaler"
	"github.com/xaionaro-go/vpipeline/logger"
	"github.com/xaionaro-go/vpipeline/types"
)

const (
	DefaultSpawnAttempts    = 3
	DefaultSpawnRetryDelay  = 100 * time.Millisecond
	DefaultIdlePollInterval = time.Millisecond
	DefaultStopTimeout      = 5 * time.Second
)

type WorkerConfig struct {
	Spawner          Spawner
	StackAllocator   StackAllocator
	SpawnAttempts    uint
	SpawnRetryDelay  time.Duration
	IdlePollInterval time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Spawner:          GoSpawner{},
		StackAllocator:   NewPoolStackAllocator(0),
		SpawnAttempts:    DefaultSpawnAttempts,
		SpawnRetryDelay:  DefaultSpawnRetryDelay,
		IdlePollInterval: DefaultIdlePollInterval,
	}
}

type worker struct {
	Config       WorkerConfig
	Stack        *Stack
	CancelSignal *closuresignaler.ClosureSignaler
	CancelFunc   context.CancelFunc
	ExitedChan   chan struct{}
	threadActive atomic.Bool
	threadExited atomic.Bool
	rrOffset     uint
}

// IsWorkerActive returns true if the node has a worker that was not
// asked to stop yet.
func (n *Node) IsWorkerActive(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &n.Locker, func() bool {
		return n.worker != nil && n.worker.threadActive.Load()
	})
}

// HasWorker returns true if the node has a worker that was not joined yet.
func (n *Node) HasWorker(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &n.Locker, func() bool {
		return n.worker != nil
	})
}

// StartWorker allocates a stack and spawns the goroutine processing frames
// of the node. The worker lives until SignalStop is called (ctx cancellation
// also interrupts it).
func (n *Node) StartWorker(
	ctx context.Context,
	cfg WorkerConfig,
) (_err error) {
	logger.Debugf(ctx, "StartWorker[%s]", n.name)
	defer func() { logger.Debugf(ctx, "/StartWorker[%s]: %v", n.name, _err) }()

	if cfg.Spawner == nil {
		cfg.Spawner = GoSpawner{}
	}
	if cfg.StackAllocator == nil {
		return types.ErrInvalidParam{Reason: "stack allocator is not set"}
	}
	if cfg.SpawnAttempts == 0 {
		cfg.SpawnAttempts = 1
	}
	if cfg.IdlePollInterval <= 0 {
		cfg.IdlePollInterval = DefaultIdlePollInterval
	}

	return xsync.DoR1(ctx, &n.Locker, func() error {
		if n.worker != nil {
			return ErrAlreadyStarted{Node: n.name}
		}
		if n.destroyed.Load() {
			return types.ErrInvalidParam{Reason: fmt.Sprintf("node '%s' is destroyed", n.name)}
		}

		stack, err := cfg.StackAllocator.Allocate(ctx)
		if err != nil {
			return types.ErrNoMemory{Resource: fmt.Sprintf("the worker stack of node '%s'", n.name), Err: err}
		}

		workerCtx, cancelFn := context.WithCancel(belt.WithField(ctx, "node", n.name))
		w := &worker{
			Config:       cfg,
			Stack:        stack,
			CancelSignal: closuresignaler.New(),
			CancelFunc:   cancelFn,
			ExitedChan:   make(chan struct{}),
		}
		w.threadActive.Store(true)

		attempt := 0
		err = backoff.Retry(func() error {
			attempt++
			err := cfg.Spawner.Spawn(workerCtx, func(ctx context.Context) {
				n.serve(ctx, w)
			})
			if err != nil {
				logger.Warnf(ctx, "unable to spawn the worker of node '%s' (attempt %d/%d): %v", n.name, attempt, cfg.SpawnAttempts, err)
			}
			return err
		}, backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.SpawnRetryDelay), uint64(cfg.SpawnAttempts-1)),
			ctx,
		))
		if err != nil {
			cancelFn()
			cfg.StackAllocator.Release(ctx, stack)
			n.SetState(StateError)
			return types.ErrNoMemory{Resource: fmt.Sprintf("the worker of node '%s'", n.name), Err: err}
		}

		n.worker = w
		if n.paused.Load() {
			n.SetState(StatePaused)
		} else {
			n.SetState(StateRunning)
		}
		return nil
	})
}

// SignalStop asks the worker to quit: it clears the active flag, closes the
// cancellation signal and cancels the context passed to the kernel.
// It does not wait for the worker to exit (see JoinWorker).
func (n *Node) SignalStop(ctx context.Context) {
	ctx = xcontext.DetachDone(ctx)
	logger.Debugf(ctx, "SignalStop[%s]", n.name)
	defer func() { logger.Debugf(ctx, "/SignalStop[%s]", n.name) }()
	n.Locker.Do(ctx, func() {
		w := n.worker
		if w == nil {
			return
		}
		w.threadActive.Store(false)
		n.SetState(StateStopping)
		w.CancelSignal.Close(ctx)
		w.CancelFunc()
	})
}

// JoinWorker waits up to `timeout` for the worker to exit and releases
// its stack. If the worker does not exit in time, it is abandoned and
// ErrForcedTermination is returned.
func (n *Node) JoinWorker(
	ctx context.Context,
	timeout time.Duration,
) (_err error) {
	logger.Debugf(ctx, "JoinWorker[%s]: %v", n.name, timeout)
	defer func() { logger.Debugf(ctx, "/JoinWorker[%s]: %v", n.name, _err) }()

	lockCtx := xcontext.DetachDone(ctx)
	w := xsync.DoR1(lockCtx, &n.Locker, func() *worker {
		return n.worker
	})
	if w == nil {
		return nil
	}

	forced := false
	if timeout < 0 {
		timeout = 0
	}
	select {
	case <-w.ExitedChan:
	default:
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-w.ExitedChan:
		case <-t.C:
			forced = !w.threadExited.Load()
		case <-ctx.Done():
			forced = !w.threadExited.Load()
		}
	}

	n.Locker.Do(lockCtx, func() {
		if n.worker != w {
			return
		}
		n.worker = nil
		if forced {
			w.Config.StackAllocator.Discard(lockCtx, w.Stack)
		} else {
			w.Config.StackAllocator.Release(lockCtx, w.Stack)
		}
		if n.State() == StateStopping {
			n.SetState(StateIdle)
		}
	})

	if forced {
		logger.Errorf(ctx, "the worker of node '%s' did not exit within %v, abandoning it", n.name, timeout)
		n.SetState(StateError)
		return types.ErrForcedTermination{Node: n.name, Waited: timeout}
	}
	return nil
}

// StopWorker is SignalStop followed by JoinWorker.
func (n *Node) StopWorker(
	ctx context.Context,
	timeout time.Duration,
) error {
	n.SignalStop(ctx)
	return n.JoinWorker(ctx, timeout)
}
