package vpipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"

	"github.com/xaionaro-go/vpipeline/logger"
	"github.com/xaionaro-go/vpipeline/node"
	"github.com/xaionaro-go/vpipeline/types"
)

// Start spawns the workers of all the nodes, from the last registered to
// the first one, so consumers are ready before the sources produce.
// If a worker cannot be started, Start returns the error leaving the
// already started workers running (the pipeline goes to the error state
// and Stop reclaims them).
func (p *Pipeline) Start(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Start[%s]", p)
	defer func() { logger.Debugf(ctx, "/Start[%s]: %v", p, _err) }()

	var events []Event
	err := xsync.DoR1(ctx, &p.Locker, func() error {
		if p.destroyed.Load() {
			return types.ErrNotInitialized{}
		}
		if p.IsRunning() {
			logger.Debugf(ctx, "%s is already running", p)
			return nil
		}

		workerCtx := xcontext.DetachDone(ctx)
		workerCfg := p.Config.workerConfig()
		for idx := len(p.nodes) - 1; idx >= 0; idx-- {
			n := p.nodes[idx]
			if n.HasWorker(ctx) {
				continue
			}
			if err := n.StartWorker(workerCtx, workerCfg); err != nil {
				err = fmt.Errorf("unable to start node '%s': %w", n.Name(), err)
				p.setState(node.StateError)
				events = append(events, Event{Type: EventTypeError, Node: n, Err: err})
				return err
			}
		}
		p.startedAt.Store(time.Now())
		p.setState(node.StateRunning)
		events = append(events, Event{Type: EventTypeStarted})
		return nil
	})
	p.emit(ctx, events...)
	return err
}

// Stop signals all the workers to exit and waits for them (in total) up to
// Config.StopTimeout; workers which did not exit in time are abandoned
// and reported via ErrForcedTermination.
func (p *Pipeline) Stop(ctx context.Context) (_err error) {
	ctx = xcontext.DetachDone(ctx)
	logger.Debugf(ctx, "Stop[%s]", p)
	defer func() { logger.Debugf(ctx, "/Stop[%s]: %v", p, _err) }()

	var events []Event
	err := xsync.DoR1(ctx, &p.Locker, func() error {
		return p.stopLocked(ctx, &events)
	})
	p.emit(ctx, events...)
	return err
}

func (p *Pipeline) stopLocked(
	ctx context.Context,
	events *[]Event,
) error {
	if !p.IsRunning() && p.State() != node.StateError {
		return nil
	}
	p.setState(node.StateStopping)

	for _, n := range p.nodes {
		n.Resume(ctx)
		n.SignalStop(ctx)
	}

	deadline := time.Now().Add(p.Config.StopTimeout)
	var errs []error
	for _, n := range p.nodes {
		if err := n.JoinWorker(ctx, time.Until(deadline)); err != nil {
			errs = append(errs, err)
		}
	}

	p.setState(node.StateIdle)
	*events = append(*events, Event{Type: EventTypeStopped})
	err := errors.Join(errs...)
	if err != nil {
		*events = append(*events, Event{Type: EventTypeError, Err: err})
	}
	return err
}

// Pause makes the workers stop taking and processing frames without
// stopping them.
func (p *Pipeline) Pause(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Pause[%s]", p)
	defer func() { logger.Debugf(ctx, "/Pause[%s]: %v", p, _err) }()

	var events []Event
	err := xsync.DoR1(ctx, &p.Locker, func() error {
		switch p.State() {
		case node.StatePaused:
			return nil
		case node.StateRunning:
		default:
			return types.ErrBusy{Op: "pause", Reason: fmt.Sprintf("%s is %s", p, p.State())}
		}
		for _, n := range p.nodes {
			n.Pause(ctx)
		}
		p.setState(node.StatePaused)
		events = append(events, Event{Type: EventTypePaused})
		return nil
	})
	p.emit(ctx, events...)
	return err
}

func (p *Pipeline) Resume(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Resume[%s]", p)
	defer func() { logger.Debugf(ctx, "/Resume[%s]: %v", p, _err) }()

	var events []Event
	err := xsync.DoR1(ctx, &p.Locker, func() error {
		switch p.State() {
		case node.StateRunning:
			return nil
		case node.StatePaused:
		default:
			return types.ErrBusy{Op: "resume", Reason: fmt.Sprintf("%s is %s", p, p.State())}
		}
		for _, n := range p.nodes {
			n.Resume(ctx)
		}
		p.setState(node.StateRunning)
		events = append(events, Event{Type: EventTypeResumed})
		return nil
	})
	p.emit(ctx, events...)
	return err
}

// Destroy stops the pipeline, destroys all its nodes and removes it
// from the registry.
func (p *Pipeline) Destroy(ctx context.Context) (_err error) {
	ctx = xcontext.DetachDone(ctx)
	logger.Debugf(ctx, "Destroy[%s]", p)
	defer func() { logger.Debugf(ctx, "/Destroy[%s]: %v", p, _err) }()
	if !p.destroyed.CompareAndSwap(false, true) {
		return nil
	}

	var events []Event
	var errs []error
	p.Locker.Do(ctx, func() {
		if err := p.stopLocked(ctx, &events); err != nil {
			errs = append(errs, err)
		}
		for _, n := range p.nodes {
			if err := n.Destroy(ctx); err != nil {
				errs = append(errs, fmt.Errorf("unable to destroy node '%s': %w", n.Name(), err))
			}
			n.Detach(ctx, p)
		}
		p.nodes = nil
		p.setConnections(nil)
	})
	p.registry.remove(ctx, p)
	p.emit(ctx, events...)
	return errors.Join(errs...)
}
