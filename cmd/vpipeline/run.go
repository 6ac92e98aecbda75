package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xaionaro-go/observability"

	"github.com/xaionaro-go/vpipeline"
	"github.com/xaionaro-go/vpipeline/capture/simulated"
	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/kernel"
	"github.com/xaionaro-go/vpipeline/logger"
	"github.com/xaionaro-go/vpipeline/metrics"
	"github.com/xaionaro-go/vpipeline/node"
)

type runConfig struct {
	LogLevel       logger.Level
	Camera         simulated.Config
	FilterWidth    uint32
	FilterHeight   uint32
	BlurRadius     float64
	JPEGQuality    uint32
	QueueSize      uint
	SinkDelay      time.Duration
	StopTimeout    time.Duration
	StatusInterval time.Duration
	Duration       time.Duration
	MetricsAddr    string
	Output         string
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the camera -> filter -> JPEG encoder -> sink pipeline on a simulated sensor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := runConfigFromViper()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.String("log-level", "warning", "the log level (trace, debug, info, warning, error, fatal, panic)")
	mustBindPFlag("log.level", flags.Lookup("log-level"))

	flags.Uint32("camera-width", simulated.DefaultWidth, "the width of the simulated sensor")
	mustBindPFlag("camera.width", flags.Lookup("camera-width"))
	flags.Uint32("camera-height", simulated.DefaultHeight, "the height of the simulated sensor")
	mustBindPFlag("camera.height", flags.Lookup("camera-height"))
	flags.Uint32("camera-fps", simulated.DefaultFPS, "the frame rate of the simulated sensor")
	mustBindPFlag("camera.fps", flags.Lookup("camera-fps"))
	flags.Uint("camera-buffers", simulated.DefaultBuffers, "the amount of capture buffers")
	mustBindPFlag("camera.buffers", flags.Lookup("camera-buffers"))

	flags.Uint32("filter-width", 0, "the width to resize the frames to (0 keeps the size)")
	mustBindPFlag("filter.width", flags.Lookup("filter-width"))
	flags.Uint32("filter-height", 0, "the height to resize the frames to (0 keeps the size)")
	mustBindPFlag("filter.height", flags.Lookup("filter-height"))
	flags.Float64("blur-radius", 0, "the radius of the gaussian blur (0 disables it)")
	mustBindPFlag("filter.blurRadius", flags.Lookup("blur-radius"))

	flags.Uint32("jpeg-quality", kernel.DefaultJPEGQuality, "the JPEG quality [1, 100]")
	mustBindPFlag("encoder.quality", flags.Lookup("jpeg-quality"))

	flags.Uint("queue-size", node.DefaultQueueSize, "the capacity of the output queue of every node")
	mustBindPFlag("pipeline.queueSize", flags.Lookup("queue-size"))
	flags.Duration("stop-timeout", vpipeline.DefaultStopTimeout, "how long to wait for the workers to exit on stop")
	mustBindPFlag("pipeline.stopTimeout", flags.Lookup("stop-timeout"))
	flags.Duration("sink-delay", 0, "an artificial delay of the sink per frame (to simulate a slow consumer)")
	mustBindPFlag("sink.delay", flags.Lookup("sink-delay"))
	flags.String("output", "", "a file to write the latest encoded frame to")
	mustBindPFlag("sink.output", flags.Lookup("output"))

	flags.Duration("status-interval", 5*time.Second, "how often to print the statistics (0 disables it)")
	mustBindPFlag("status.interval", flags.Lookup("status-interval"))
	flags.Duration("duration", 0, "stop after this time (0 runs until interrupted)")
	mustBindPFlag("duration", flags.Lookup("duration"))
	flags.String("metrics-addr", "", "the host:port address to serve the prometheus metrics on (empty disables it)")
	mustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))

	return cmd
}

func runConfigFromViper() (runConfig, error) {
	var cfg runConfig
	if err := cfg.LogLevel.Set(viper.GetString("log.level")); err != nil {
		return runConfig{}, fmt.Errorf("unable to parse the log level: %w", err)
	}
	cfg.Camera = simulated.Config{
		Width:   viper.GetUint32("camera.width"),
		Height:  viper.GetUint32("camera.height"),
		FPS:     viper.GetUint32("camera.fps"),
		Buffers: viper.GetUint("camera.buffers"),
	}
	cfg.FilterWidth = viper.GetUint32("filter.width")
	cfg.FilterHeight = viper.GetUint32("filter.height")
	cfg.BlurRadius = viper.GetFloat64("filter.blurRadius")
	cfg.JPEGQuality = viper.GetUint32("encoder.quality")
	cfg.QueueSize = viper.GetUint("pipeline.queueSize")
	cfg.StopTimeout = viper.GetDuration("pipeline.stopTimeout")
	cfg.SinkDelay = viper.GetDuration("sink.delay")
	cfg.Output = viper.GetString("sink.output")
	cfg.StatusInterval = viper.GetDuration("status.interval")
	cfg.Duration = viper.GetDuration("duration")
	cfg.MetricsAddr = viper.GetString("metrics.addr")

	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return runConfig{}, fmt.Errorf("JPEG quality %d is out of range [1, 100]", cfg.JPEGQuality)
	}
	if (cfg.FilterWidth == 0) != (cfg.FilterHeight == 0) {
		return runConfig{}, fmt.Errorf("filter width and height must be set together")
	}
	return cfg, nil
}

func run(
	ctx context.Context,
	cfg runConfig,
	out io.Writer,
) (_err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	l := logrus.Default().WithLevel(cfg.LogLevel)
	ctx = logger.CtxWithLogger(ctx, l)
	logger.SetDefault(func() logger.Logger {
		return l
	})
	defer belt.Flush(ctx)

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelFn()
	if cfg.Duration > 0 {
		var timeoutCancelFn context.CancelFunc
		ctx, timeoutCancelFn = context.WithTimeout(ctx, cfg.Duration)
		defer timeoutCancelFn()
	}

	registry := vpipeline.NewRegistry(vpipeline.RegistryConfig{MaxPipelines: 1})
	defer func() {
		if err := registry.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the registry: %v", err)
			_err = errors.Join(_err, err)
		}
	}()

	p, err := newDemoPipeline(ctx, registry, cfg)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		closeMetrics, err := serveMetrics(ctx, cfg.MetricsAddr, registry)
		if err != nil {
			return err
		}
		defer closeMetrics()
	}

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("unable to start the pipeline: %w", err)
	}
	logger.Infof(ctx, "started %s", p)

	var statusC <-chan time.Time
	if cfg.StatusInterval > 0 {
		t := time.NewTicker(cfg.StatusInterval)
		defer t.Stop()
		statusC = t.C
	}
	for {
		select {
		case <-ctx.Done():
			logger.Infof(ctx, "stopping %s: %v", p, context.Cause(ctx))
			stopErr := p.Stop(ctx)
			if err := vpipeline.WriteStatus(out, registry.GetStatistics(ctx)); err != nil {
				logger.Errorf(ctx, "unable to write the status: %v", err)
			}
			return stopErr
		case <-statusC:
			if err := vpipeline.WriteStatus(out, registry.GetStatistics(ctx)); err != nil {
				return fmt.Errorf("unable to write the status: %w", err)
			}
		}
	}
}

// newDemoPipeline builds camera -> filter -> encoder -> sink.
func newDemoPipeline(
	ctx context.Context,
	registry *vpipeline.Registry,
	cfg runConfig,
) (*vpipeline.Pipeline, error) {
	p, err := registry.CreatePipeline(ctx, vpipeline.Config{
		Name:        "camera",
		StopTimeout: cfg.StopTimeout,
		OnEvent: func(ctx context.Context, p *vpipeline.Pipeline, ev vpipeline.Event) {
			if ev.Type == vpipeline.EventTypeError {
				logger.Errorf(ctx, "%s: %s", p, ev)
				return
			}
			logger.Infof(ctx, "%s: %s", p, ev)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create a pipeline: %w", err)
	}

	sink := kernel.NewSink(func(ctx context.Context, f *frame.Frame) error {
		if cfg.Output == "" {
			return nil
		}
		if err := os.WriteFile(cfg.Output, f.Data, 0o644); err != nil {
			return fmt.Errorf("unable to write frame #%d to '%s': %w", f.Sequence, cfg.Output, err)
		}
		return nil
	})
	sink.Delay.Store(cfg.SinkDelay)

	type nodeDef struct {
		name   string
		typ    node.Type
		kernel node.Kernel
	}
	defs := []nodeDef{
		{"camera", node.TypeSource, kernel.NewCamera(simulated.New(cfg.Camera))},
		{"filter", node.TypeFilter, kernel.NewImageFilter(cfg.FilterWidth, cfg.FilterHeight, cfg.BlurRadius)},
		{"encoder", node.TypeEncoder, kernel.NewJPEGEncoder(cfg.JPEGQuality)},
		{"sink", node.TypeSink, sink},
	}

	var prevID uint32
	for idx, def := range defs {
		n, err := node.New(ctx, def.name, def.typ, def.kernel, node.OptionQueueSize(cfg.QueueSize))
		if err != nil {
			return nil, fmt.Errorf("unable to create node '%s': %w", def.name, err)
		}
		id, err := p.RegisterNode(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("unable to register node '%s': %w", def.name, err)
		}
		if idx > 0 {
			if _, err := p.ConnectNodes(ctx, prevID, 0, id, 0); err != nil {
				return nil, fmt.Errorf("unable to connect node '%s': %w", def.name, err)
			}
		}
		prevID = id
	}
	return p, nil
}

func serveMetrics(
	ctx context.Context,
	addr string,
	registry *vpipeline.Registry,
) (func(), error) {
	promRegistry := prometheus.NewRegistry()
	if err := promRegistry.Register(metrics.NewCollector(ctx, registry)); err != nil {
		return nil, fmt.Errorf("unable to register the pipeline collector: %w", err)
	}
	if err := promRegistry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("unable to register the Go collector: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	observability.Go(ctx, func(ctx context.Context) {
		logger.Infof(ctx, "serving the metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf(ctx, "unable to serve the metrics on %s: %v", addr, err)
		}
	})
	return func() {
		shutdownCtx, cancelFn := context.WithTimeout(context.Background(), time.Second)
		defer cancelFn()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf(ctx, "unable to shutdown the metrics server: %v", err)
		}
	}, nil
}
