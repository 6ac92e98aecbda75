package vpipeline

import (
	"fmt"
	"time"

	"github.com/xaionaro-go/vpipeline/node"
	"github.com/xaionaro-go/vpipeline/types"
)

const (
	DefaultMaxPipelines   = 8
	DefaultMaxNodes       = 16
	DefaultMaxConnections = 32
	DefaultStopTimeout    = node.DefaultStopTimeout

	// MinRuntimeForFPS is the runtime after which the pipeline FPS is reported.
	MinRuntimeForFPS = 2 * time.Second
)

type RegistryConfig struct {
	MaxPipelines uint
}

func (cfg RegistryConfig) withDefaults() RegistryConfig {
	if cfg.MaxPipelines == 0 {
		cfg.MaxPipelines = DefaultMaxPipelines
	}
	return cfg
}

// Config is the configuration of a Pipeline; zero values are replaced
// by the defaults.
type Config struct {
	Name           string
	MaxNodes       uint
	MaxConnections uint

	// StopTimeout bounds the time Stop waits for the workers to exit before
	// abandoning them.
	StopTimeout time.Duration

	SpawnAttempts    uint
	SpawnRetryDelay  time.Duration
	IdlePollInterval time.Duration
	Spawner          node.Spawner

	// StackAllocator provides worker stacks; by default each pipeline
	// has a pool limited to MaxNodes stacks.
	StackAllocator node.StackAllocator

	OnEvent EventHandler
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxNodes == 0 {
		cfg.MaxNodes = DefaultMaxNodes
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.SpawnAttempts == 0 {
		cfg.SpawnAttempts = node.DefaultSpawnAttempts
	}
	if cfg.SpawnRetryDelay == 0 {
		cfg.SpawnRetryDelay = node.DefaultSpawnRetryDelay
	}
	if cfg.IdlePollInterval == 0 {
		cfg.IdlePollInterval = node.DefaultIdlePollInterval
	}
	if cfg.Spawner == nil {
		cfg.Spawner = node.GoSpawner{}
	}
	if cfg.StackAllocator == nil {
		cfg.StackAllocator = node.NewPoolStackAllocator(uint64(cfg.MaxNodes))
	}
	return cfg
}

func (cfg Config) validate() error {
	switch {
	case cfg.StopTimeout < 0:
		return types.ErrInvalidParam{Reason: fmt.Sprintf("negative stop timeout: %v", cfg.StopTimeout)}
	case cfg.SpawnRetryDelay < 0:
		return types.ErrInvalidParam{Reason: fmt.Sprintf("negative spawn retry delay: %v", cfg.SpawnRetryDelay)}
	case cfg.IdlePollInterval < 0:
		return types.ErrInvalidParam{Reason: fmt.Sprintf("negative idle poll interval: %v", cfg.IdlePollInterval)}
	}
	return nil
}

func (cfg Config) workerConfig() node.WorkerConfig {
	return node.WorkerConfig{
		Spawner:          cfg.Spawner,
		StackAllocator:   cfg.StackAllocator,
		SpawnAttempts:    cfg.SpawnAttempts,
		SpawnRetryDelay:  cfg.SpawnRetryDelay,
		IdlePollInterval: cfg.IdlePollInterval,
	}
}
