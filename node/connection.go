package node

import (
	"fmt"

	"go.uber.org/atomic"

	"github.com/xaionaro-go/vpipeline/frame"
)

// Connection is a directed edge from the output queue of Source to Sink.
type Connection struct {
	ID         uint32
	Source     *Node
	SourcePort uint32
	Sink       *Node
	SinkPort   uint32

	Active            atomic.Bool
	FramesTransferred atomic.Uint64
	BytesTransferred  atomic.Uint64
	Overruns          atomic.Uint64

	// format is negotiated by the first frame transferred.
	format atomic.Uint32
}

func NewConnection(
	id uint32,
	src *Node, srcPort uint32,
	dst *Node, dstPort uint32,
) *Connection {
	c := &Connection{
		ID:         id,
		Source:     src,
		SourcePort: srcPort,
		Sink:       dst,
		SinkPort:   dstPort,
	}
	c.Active.Store(true)
	return c
}

// Format returns the format of the frames flowing through the connection,
// or FormatUnknown until the first frame is transferred.
func (c *Connection) Format() frame.Format {
	return frame.Format(c.format.Load())
}

func (c *Connection) noteTransfer(f *frame.Frame) {
	c.FramesTransferred.Inc()
	c.BytesTransferred.Add(uint64(len(f.Data)))
	c.format.CompareAndSwap(uint32(frame.FormatUnknown), uint32(f.Format))
}

// ConnectionStatistics is a snapshot of the counters of a Connection.
type ConnectionStatistics struct {
	ID                uint32
	Source            string
	SourcePort        uint32
	Sink              string
	SinkPort          uint32
	Format            frame.Format
	Active            bool
	FramesTransferred uint64
	BytesTransferred  uint64
	Overruns          uint64
}

func (c *Connection) GetStatistics() ConnectionStatistics {
	return ConnectionStatistics{
		ID:                c.ID,
		Source:            c.Source.Name(),
		SourcePort:        c.SourcePort,
		Sink:              c.Sink.Name(),
		SinkPort:          c.SinkPort,
		Format:            c.Format(),
		Active:            c.Active.Load(),
		FramesTransferred: c.FramesTransferred.Load(),
		BytesTransferred:  c.BytesTransferred.Load(),
		Overruns:          c.Overruns.Load(),
	}
}

func (c *Connection) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", c.Source.Name(), c.SourcePort, c.Sink.Name(), c.SinkPort)
}
