package vpipeline

import (
	"context"
	"time"

	"github.com/xaionaro-go/vpipeline/node"
)

// Statistics is a snapshot of the statistics of a pipeline.
type Statistics struct {
	ID        uint32
	Name      string
	State     node.State
	StartedAt time.Time
	Runtime   time.Duration

	// TotalFrames is the amount of frames processed by the slowest node.
	TotalFrames uint64

	// FPS is TotalFrames per second of runtime; it is reported only
	// after MinRuntimeForFPS.
	FPS float64

	Nodes       []node.Statistics
	Connections []node.ConnectionStatistics
}

func (p *Pipeline) GetStatistics(ctx context.Context) Statistics {
	stats := Statistics{
		ID:      p.id,
		Name:    p.Config.Name,
		State:   p.State(),
		Runtime: p.Runtime(),
	}
	if stats.Runtime > 0 {
		stats.StartedAt = p.startedAt.Load()
	}

	for idx, n := range p.Nodes(ctx) {
		nodeStats := n.GetStatistics()
		stats.Nodes = append(stats.Nodes, nodeStats)
		if idx == 0 || nodeStats.FramesProcessed < stats.TotalFrames {
			stats.TotalFrames = nodeStats.FramesProcessed
		}
	}
	for _, conn := range p.GetConnections() {
		stats.Connections = append(stats.Connections, conn.GetStatistics())
	}

	if stats.Runtime >= MinRuntimeForFPS {
		stats.FPS = float64(stats.TotalFrames) / stats.Runtime.Seconds()
	}
	return stats
}
