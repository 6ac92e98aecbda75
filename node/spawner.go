package node

import (
	"context"

	"github.com/xaionaro-go/observability"
)

// Spawner launches the goroutine of a worker.
type Spawner interface {
	Spawn(ctx context.Context, fn func(context.Context)) error
}

type SpawnerFunc func(ctx context.Context, fn func(context.Context)) error

func (f SpawnerFunc) Spawn(ctx context.Context, fn func(context.Context)) error {
	return f(ctx, fn)
}

// GoSpawner runs workers via observability.Go; it never fails.
type GoSpawner struct{}

var _ Spawner = GoSpawner{}

func (GoSpawner) Spawn(ctx context.Context, fn func(context.Context)) error {
	observability.Go(ctx, fn)
	return nil
}
