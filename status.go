package vpipeline

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/xaionaro-go/vpipeline/node"
)

// WriteStatus writes a human-readable dump of the statistics.
func WriteStatus(w io.Writer, stats RegistryStatistics) error {
	var buf strings.Builder
	if len(stats.Pipelines) == 0 {
		buf.WriteString("no pipelines\n")
	}
	for _, p := range stats.Pipelines {
		writePipelineStatus(&buf, p)
	}
	_, err := io.WriteString(w, buf.String())
	return err
}

func writePipelineStatus(buf *strings.Builder, p Statistics) {
	fmt.Fprintf(buf, "pipeline #%d '%s': %s", p.ID, p.Name, p.State)
	if p.Runtime > 0 {
		fmt.Fprintf(buf, ", uptime %s", p.Runtime.Truncate(time.Second))
	}
	fmt.Fprintf(buf, ", %s frames", humanize.Comma(int64(p.TotalFrames)))
	if p.FPS > 0 {
		fmt.Fprintf(buf, ", %s FPS", humanize.FtoaWithDigits(p.FPS, 1))
	}
	buf.WriteString("\n")

	for _, n := range p.Nodes {
		writeNodeStatus(buf, n)
	}
	for _, c := range p.Connections {
		active := ""
		if !c.Active {
			active = " (inactive)"
		}
		fmt.Fprintf(buf,
			"  connection #%d %s:%d -> %s:%d%s: %s, %s frames, %s, %s overruns\n",
			c.ID, c.Source, c.SourcePort, c.Sink, c.SinkPort, active,
			c.Format,
			humanize.Comma(int64(c.FramesTransferred)),
			humanize.Bytes(c.BytesTransferred),
			humanize.Comma(int64(c.Overruns)),
		)
	}
}

func writeNodeStatus(buf *strings.Builder, n node.Statistics) {
	fmt.Fprintf(buf,
		"  node #%d '%s' (%s): %s/%s, processed %s, dropped %s, overflows %s, queue %d/%d (max %d), avg %v, max %v\n",
		n.NodeID, n.Name, n.Type, n.State, n.ExecState,
		humanize.Comma(int64(n.FramesProcessed)),
		humanize.Comma(int64(n.FramesDropped)),
		humanize.Comma(int64(n.QueueOverflows)),
		n.QueueDepth, n.QueueCapacity, n.MaxQueueDepth,
		n.AvgProcessingTime.Round(time.Microsecond),
		n.MaxProcessingTime.Round(time.Microsecond),
	)
}
