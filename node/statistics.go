package node

import (
	"time"

	"go.uber.org/atomic"
)

// Statistics is a snapshot of the counters of a node.
type Statistics struct {
	NodeID    uint32
	Name      string
	Type      Type
	State     State
	ExecState ExecState

	FramesProcessed uint64
	FramesDropped   uint64
	QueueOverflows  uint64

	AvgProcessingTime time.Duration
	MaxProcessingTime time.Duration
	LastProcessedAt   time.Time

	QueueDepth    uint
	MaxQueueDepth uint
	QueueCapacity uint
}

type counters struct {
	FramesProcessed   atomic.Uint64
	FramesDropped     atomic.Uint64
	QueueOverflows    atomic.Uint64
	AvgProcessingTime atomic.Duration
	MaxProcessingTime atomic.Duration
	LastProcessedAt   atomic.Time
}

// noteProcessingTime updates the exponential moving average (weight 1/10
// for the new sample; the first sample seeds the average). The maximum
// only tracks iterations that succeeded.
func (c *counters) noteProcessingTime(d time.Duration, succeeded bool) {
	avg := c.AvgProcessingTime.Load()
	if avg == 0 {
		avg = d
	} else {
		avg = (avg*9 + d) / 10
	}
	c.AvgProcessingTime.Store(avg)

	if !succeeded {
		return
	}
	for {
		maxD := c.MaxProcessingTime.Load()
		if d <= maxD || c.MaxProcessingTime.CompareAndSwap(maxD, d) {
			break
		}
	}
}

func (c *counters) reset() {
	c.FramesProcessed.Store(0)
	c.FramesDropped.Store(0)
	c.QueueOverflows.Store(0)
	c.AvgProcessingTime.Store(0)
	c.MaxProcessingTime.Store(0)
	c.LastProcessedAt.Store(time.Time{})
}

func (n *Node) GetStatistics() Statistics {
	return Statistics{
		NodeID:            n.ID(),
		Name:              n.name,
		Type:              n.typ,
		State:             n.State(),
		ExecState:         n.ExecState(),
		FramesProcessed:   n.counters.FramesProcessed.Load(),
		FramesDropped:     n.counters.FramesDropped.Load(),
		QueueOverflows:    n.counters.QueueOverflows.Load(),
		AvgProcessingTime: n.counters.AvgProcessingTime.Load(),
		MaxProcessingTime: n.counters.MaxProcessingTime.Load(),
		LastProcessedAt:   n.counters.LastProcessedAt.Load(),
		QueueDepth:        n.outputQueue.Len(),
		MaxQueueDepth:     n.outputQueue.MaxDepth(),
		QueueCapacity:     n.outputQueue.Cap(),
	}
}

func (n *Node) ResetStatistics() {
	n.counters.reset()
	n.outputQueue.ResetMaxDepth()
}
