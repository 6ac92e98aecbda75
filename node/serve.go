package node

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/facebookincubator/go-belt/tool/experimental/errmon"

	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/logger"
	"github.com/xaionaro-go/vpipeline/types"
)

func (n *Node) serve(
	ctx context.Context,
	w *worker,
) {
	logger.Debugf(ctx, "serve[%s]", n.name)
	defer func() { logger.Debugf(ctx, "/serve[%s]", n.name) }()
	defer func() {
		w.threadExited.Store(true)
		close(w.ExitedChan)
	}()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logger.Errorf(ctx, "got panic in the worker of node '%s': %v:\n%s", n.name, r, debug.Stack())
		errmon.ObserveRecoverCtx(ctx, r)
		n.setExecState(ExecStateError)
		n.SetState(StateError)
	}()

	for w.threadActive.Load() {
		if n.paused.Load() {
			n.setExecState(ExecStateIdle)
			if !w.sleep(w.Config.IdlePollInterval) {
				return
			}
			continue
		}

		var inputs []*frame.Frame
		if n.typ != TypeSource {
			n.setExecState(ExecStateWaiting)
			input := n.acquireInput(ctx, w)
			if input == nil {
				if !w.sleep(w.Config.IdlePollInterval) {
					return
				}
				continue
			}
			w.Stack.Inputs[0] = input
			inputs = w.Stack.Inputs[:1]
		}

		outCount := n.processOnce(ctx, w, inputs)
		if n.typ == TypeSource && outCount == 0 {
			if !w.sleep(w.Config.IdlePollInterval) {
				return
			}
		}
	}
}

// sleep returns false if the worker was asked to stop.
func (w *worker) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.CancelSignal.CloseChan():
		return false
	case <-t.C:
		return w.threadActive.Load()
	}
}

// acquireInput pops at most one frame from the queues of the upstream nodes.
func (n *Node) acquireInput(
	ctx context.Context,
	w *worker,
) *frame.Frame {
	owner := n.Owner()
	if owner == nil {
		return nil
	}
	conns := owner.GetConnections()
	count := len(conns)
	if count == 0 {
		return nil
	}

	start := 0
	if n.Config.InputPolicy == InputPolicyRoundRobin {
		start = int(w.rrOffset % uint(count))
		w.rrOffset++
	}
	for i := range count {
		conn := conns[(start+i)%count]
		if conn.Sink != n || !conn.Active.Load() {
			continue
		}
		f, err := conn.Source.outputQueue.Pop(ctx, 0)
		if err != nil {
			continue
		}
		conn.noteTransfer(f)
		logger.Tracef(ctx, "got %s via %s", f, conn)
		return f
	}
	return nil
}

func (n *Node) processOnce(
	ctx context.Context,
	w *worker,
	inputs []*frame.Frame,
) (_outCount int) {
	outputs := w.Stack.Outputs[:]
	defer w.Stack.reset()

	n.setExecState(ExecStateProcessing)
	startTS := time.Now()
	outCount, err := n.callProcess(ctx, inputs, outputs)
	processingTime := time.Since(startTS)
	if err == nil && (outCount < 0 || outCount > len(outputs)) {
		err = types.ErrCallback{
			Node:     n.name,
			Callback: "process",
			Err:      ErrInvalidOutputCount{Count: outCount, Max: len(outputs)},
		}
		frame.UnrefAll(ctx, outputs...)
	}
	n.counters.noteProcessingTime(processingTime, err == nil)

	if err != nil {
		if !w.threadActive.Load() && errors.Is(err, context.Canceled) {
			logger.Debugf(ctx, "process of node '%s' was interrupted by stopping", n.name)
			n.setExecState(ExecStateIdle)
		} else {
			logger.Debugf(ctx, "process of node '%s' failed: %v", n.name, err)
			errmon.ObserveErrorCtx(ctx, err)
			n.setExecState(ExecStateError)
		}
		if n.Config.AutoReleaseInput {
			frame.UnrefAll(ctx, inputs...)
		}
		return 0
	}
	if len(inputs) == 0 && outCount == 0 {
		// a source with nothing to emit
		n.setExecState(ExecStateIdle)
		return 0
	}
	n.counters.FramesProcessed.Inc()

	for _, out := range outputs[:outCount] {
		if out == nil {
			continue
		}
		if err := n.outputQueue.Push(ctx, out, 0); err != nil {
			logger.Tracef(ctx, "dropping %s: %v", out, err)
			n.counters.FramesDropped.Inc()
			n.counters.QueueOverflows.Inc()
			n.noteOverrun()
			frame.UnrefAll(ctx, out)
		}
	}
	if n.Config.AutoReleaseInput {
		frame.UnrefAll(ctx, inputs...)
	}

	n.setExecState(ExecStateIdle)
	n.counters.LastProcessedAt.Store(time.Now())
	return outCount
}

func (n *Node) callProcess(
	ctx context.Context,
	inputs []*frame.Frame,
	outputs []*frame.Frame,
) (_ int, _err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		stack := debug.Stack()
		logger.Errorf(ctx, "got panic in the process callback of node '%s': %v:\n%s", n.name, r, stack)
		_err = types.ErrCallback{Node: n.name, Callback: "process", Err: ErrPanic{Value: r, Stack: stack}}
	}()
	return n.Kernel.Process(ctx, n, inputs, outputs)
}

// noteOverrun accounts a dropped output on every active outgoing connection.
func (n *Node) noteOverrun() {
	owner := n.Owner()
	if owner == nil {
		return
	}
	for _, conn := range owner.GetConnections() {
		if conn.Source == n && conn.Active.Load() {
			conn.Overruns.Inc()
		}
	}
}
