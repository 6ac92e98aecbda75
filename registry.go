package vpipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"

	"github.com/xaionaro-go/vpipeline/logger"
	"github.com/xaionaro-go/vpipeline/types"
)

// Registry keeps track of the pipelines of the system.
type Registry struct {
	Locker xsync.Mutex
	Config RegistryConfig

	// access only while holding Locker
	pipelines      []*Pipeline
	nextPipelineID uint32
	closed         bool
}

func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		Config:         cfg.withDefaults(),
		nextPipelineID: 1,
	}
}

// CreatePipeline allocates a new idle pipeline.
func (r *Registry) CreatePipeline(
	ctx context.Context,
	cfg Config,
) (_ret *Pipeline, _err error) {
	logger.Debugf(ctx, "CreatePipeline: %s", cfg.Name)
	defer func() { logger.Debugf(ctx, "/CreatePipeline: %s: %v", cfg.Name, _err) }()

	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger.Tracef(ctx, "pipeline config: %s", spew.Sdump(cfg))

	return xsync.DoR2(ctx, &r.Locker, func() (*Pipeline, error) {
		if r.closed {
			return nil, types.ErrNotInitialized{}
		}
		if uint(len(r.pipelines)) >= r.Config.MaxPipelines {
			return nil, types.ErrNoMemory{Resource: fmt.Sprintf("a pipeline slot (max: %d)", r.Config.MaxPipelines)}
		}
		p := newPipeline(r, r.nextPipelineID, cfg)
		r.nextPipelineID++
		r.pipelines = append(r.pipelines, p)
		return p, nil
	})
}

// Pipelines returns the pipelines that are not destroyed yet.
func (r *Registry) Pipelines(ctx context.Context) []*Pipeline {
	return xsync.DoR1(ctx, &r.Locker, func() []*Pipeline {
		return slices.Clone(r.pipelines)
	})
}

func (r *Registry) remove(ctx context.Context, p *Pipeline) {
	r.Locker.Do(ctx, func() {
		r.pipelines = slices.DeleteFunc(r.pipelines, func(item *Pipeline) bool {
			return item == p
		})
	})
}

// Close destroys all the pipelines; afterwards CreatePipeline fails with
// ErrNotInitialized.
func (r *Registry) Close(ctx context.Context) (_err error) {
	ctx = xcontext.DetachDone(ctx)
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()

	pipelines := xsync.DoR1(ctx, &r.Locker, func() []*Pipeline {
		r.closed = true
		return slices.Clone(r.pipelines)
	})

	var errs []error
	for _, p := range pipelines {
		if err := p.Destroy(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unable to destroy pipeline '%s': %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// RegistryStatistics is a snapshot of the statistics of all the pipelines.
type RegistryStatistics struct {
	Pipelines []Statistics
}

func (r *Registry) GetStatistics(ctx context.Context) RegistryStatistics {
	var result RegistryStatistics
	for _, p := range r.Pipelines(ctx) {
		result.Pipelines = append(result.Pipelines, p.GetStatistics(ctx))
	}
	return result
}
