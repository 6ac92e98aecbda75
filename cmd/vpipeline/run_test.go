package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xaionaro-go/vpipeline"
	"github.com/xaionaro-go/vpipeline/capture/simulated"
	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/node"
)

func TestDemoPipeline(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	registry := vpipeline.NewRegistry(vpipeline.RegistryConfig{})
	p, err := newDemoPipeline(ctx, registry, runConfig{
		Camera:       simulated.Config{Width: 16, Height: 8, FPS: 200, Buffers: 2},
		FilterWidth:  8,
		FilterHeight: 4,
		BlurRadius:   1,
		JPEGQuality:  50,
		QueueSize:    2,
		StopTimeout:  time.Second,
	})
	require.NoError(t, err)
	require.Len(t, p.Nodes(ctx), 4)
	require.Len(t, p.Connections(), 3)

	require.NoError(t, p.Start(ctx))
	require.Eventually(t, func() bool {
		stats := p.GetStatistics(ctx)
		return stats.TotalFrames > 0
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, p.Stop(ctx))

	stats := p.GetStatistics(ctx)
	require.Equal(t, frame.FormatMJPEG, stats.Connections[2].Format)
	require.Equal(t, node.StateIdle, stats.State)

	require.NoError(t, registry.Close(ctx))
}
