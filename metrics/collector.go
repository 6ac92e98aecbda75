// Package metrics exports the statistics of a vpipeline.Registry
// as Prometheus metrics.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xaionaro-go/vpipeline"
	"github.com/xaionaro-go/vpipeline/node"
)

const namespace = "vpipeline"

var (
	pipelineLabels   = []string{"pipeline_id", "pipeline"}
	nodeLabels       = append(pipelineLabels[:len(pipelineLabels):len(pipelineLabels)], "node", "type")
	connectionLabels = append(pipelineLabels[:len(pipelineLabels):len(pipelineLabels)], "connection_id", "source", "sink")
)

type metricDesc struct {
	*prometheus.Desc
	ValueType prometheus.ValueType
}

func newDesc(
	subsystem, name, help string,
	valueType prometheus.ValueType,
	labels []string,
) metricDesc {
	return metricDesc{
		Desc:      prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil),
		ValueType: valueType,
	}
}

// Collector is a prometheus.Collector taking a statistics snapshot
// of the registry on every scrape.
type Collector struct {
	Registry *vpipeline.Registry

	ctx context.Context

	pipelineState   metricDesc
	pipelineRuntime metricDesc
	pipelineFrames  metricDesc
	pipelineFPS     metricDesc

	nodeState             metricDesc
	nodeFramesProcessed   metricDesc
	nodeFramesDropped     metricDesc
	nodeQueueOverflows    metricDesc
	nodeQueueDepth        metricDesc
	nodeMaxQueueDepth     metricDesc
	nodeQueueCapacity     metricDesc
	nodeAvgProcessingTime metricDesc
	nodeMaxProcessingTime metricDesc

	connectionActive            metricDesc
	connectionFramesTransferred metricDesc
	connectionBytesTransferred  metricDesc
	connectionOverruns          metricDesc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector of the registry statistics; ctx is
// used for logging and locking during the scrapes.
func NewCollector(ctx context.Context, registry *vpipeline.Registry) *Collector {
	return &Collector{
		Registry: registry,
		ctx:      ctx,

		pipelineState:   newDesc("pipeline", "state", "The lifecycle state of the pipeline (0: idle, 1: ready, 2: running, 3: paused, 4: stopping, 5: error).", prometheus.GaugeValue, pipelineLabels),
		pipelineRuntime: newDesc("pipeline", "runtime_seconds", "How long the pipeline is running.", prometheus.GaugeValue, pipelineLabels),
		pipelineFrames:  newDesc("pipeline", "frames_total", "The amount of frames processed by the slowest node of the pipeline.", prometheus.CounterValue, pipelineLabels),
		pipelineFPS:     newDesc("pipeline", "fps", "The average frame rate of the pipeline.", prometheus.GaugeValue, pipelineLabels),

		nodeState:             newDesc("node", "state", "The lifecycle state of the node.", prometheus.GaugeValue, nodeLabels),
		nodeFramesProcessed:   newDesc("node", "frames_processed_total", "The amount of successful process calls.", prometheus.CounterValue, nodeLabels),
		nodeFramesDropped:     newDesc("node", "frames_dropped_total", "The amount of output frames dropped due to a full output queue.", prometheus.CounterValue, nodeLabels),
		nodeQueueOverflows:    newDesc("node", "queue_overflows_total", "The amount of failed pushes to the output queue.", prometheus.CounterValue, nodeLabels),
		nodeQueueDepth:        newDesc("node", "queue_depth", "The current amount of frames in the output queue.", prometheus.GaugeValue, nodeLabels),
		nodeMaxQueueDepth:     newDesc("node", "queue_depth_max", "The highest amount of frames observed in the output queue.", prometheus.GaugeValue, nodeLabels),
		nodeQueueCapacity:     newDesc("node", "queue_capacity", "The capacity of the output queue.", prometheus.GaugeValue, nodeLabels),
		nodeAvgProcessingTime: newDesc("node", "processing_seconds_avg", "The moving average of the process call duration.", prometheus.GaugeValue, nodeLabels),
		nodeMaxProcessingTime: newDesc("node", "processing_seconds_max", "The longest process call duration.", prometheus.GaugeValue, nodeLabels),

		connectionActive:            newDesc("connection", "active", "1 if the connection is active.", prometheus.GaugeValue, connectionLabels),
		connectionFramesTransferred: newDesc("connection", "frames_transferred_total", "The amount of frames passed through the connection.", prometheus.CounterValue, connectionLabels),
		connectionBytesTransferred:  newDesc("connection", "bytes_transferred_total", "The amount of bytes passed through the connection.", prometheus.CounterValue, connectionLabels),
		connectionOverruns:          newDesc("connection", "overruns_total", "The amount of frames dropped by the source of the connection.", prometheus.CounterValue, connectionLabels),
	}
}

func (c *Collector) descs() []metricDesc {
	return []metricDesc{
		c.pipelineState, c.pipelineRuntime, c.pipelineFrames, c.pipelineFPS,
		c.nodeState, c.nodeFramesProcessed, c.nodeFramesDropped, c.nodeQueueOverflows,
		c.nodeQueueDepth, c.nodeMaxQueueDepth, c.nodeQueueCapacity,
		c.nodeAvgProcessingTime, c.nodeMaxProcessingTime,
		c.connectionActive, c.connectionFramesTransferred, c.connectionBytesTransferred, c.connectionOverruns,
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs() {
		ch <- d.Desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	send := func(d metricDesc, value float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d.Desc, d.ValueType, value, labels...)
	}

	for _, p := range c.Registry.GetStatistics(c.ctx).Pipelines {
		pl := []string{strconv.FormatUint(uint64(p.ID), 10), p.Name}
		send(c.pipelineState, StateValue(p.State), pl...)
		send(c.pipelineRuntime, p.Runtime.Seconds(), pl...)
		send(c.pipelineFrames, float64(p.TotalFrames), pl...)
		send(c.pipelineFPS, p.FPS, pl...)

		for _, n := range p.Nodes {
			nl := append(pl[:len(pl):len(pl)], n.Name, n.Type.String())
			send(c.nodeState, StateValue(n.State), nl...)
			send(c.nodeFramesProcessed, float64(n.FramesProcessed), nl...)
			send(c.nodeFramesDropped, float64(n.FramesDropped), nl...)
			send(c.nodeQueueOverflows, float64(n.QueueOverflows), nl...)
			send(c.nodeQueueDepth, float64(n.QueueDepth), nl...)
			send(c.nodeMaxQueueDepth, float64(n.MaxQueueDepth), nl...)
			send(c.nodeQueueCapacity, float64(n.QueueCapacity), nl...)
			send(c.nodeAvgProcessingTime, n.AvgProcessingTime.Seconds(), nl...)
			send(c.nodeMaxProcessingTime, n.MaxProcessingTime.Seconds(), nl...)
		}

		for _, conn := range p.Connections {
			cl := append(pl[:len(pl):len(pl)], strconv.FormatUint(uint64(conn.ID), 10), conn.Source, conn.Sink)
			send(c.connectionActive, boolToFloat(conn.Active), cl...)
			send(c.connectionFramesTransferred, float64(conn.FramesTransferred), cl...)
			send(c.connectionBytesTransferred, float64(conn.BytesTransferred), cl...)
			send(c.connectionOverruns, float64(conn.Overruns), cl...)
		}
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// StateValue returns the value reported for the state in the *_state metrics.
func StateValue(s node.State) float64 {
	return float64(s)
}
