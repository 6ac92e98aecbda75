// pipeline.go defines Pipeline: a graph of nodes and the connections between them.

// Package vpipeline provides a zero-copy video processing pipeline: nodes
// driven by their own workers, exchanging reference-counted frames through
// bounded queues.
package vpipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"

	"github.com/xaionaro-go/vpipeline/logger"
	"github.com/xaionaro-go/vpipeline/node"
	"github.com/xaionaro-go/vpipeline/types"
)

type Pipeline struct {
	Locker xsync.Mutex
	Config Config

	id        uint32
	registry  *Registry
	state     atomic.Uint32
	startedAt atomic.Time
	destroyed atomic.Bool

	// connections is a copy-on-write snapshot read by the workers
	// without taking Locker.
	connections *[]*node.Connection

	// access only while holding Locker
	nodes            []*node.Node
	nextNodeID       uint32
	nextConnectionID uint32
}

var _ node.Owner = (*Pipeline)(nil)

func newPipeline(
	r *Registry,
	id uint32,
	cfg Config,
) *Pipeline {
	p := &Pipeline{
		Config:           cfg,
		id:               id,
		registry:         r,
		nextNodeID:       1,
		nextConnectionID: 1,
	}
	p.setConnections(nil)
	return p
}

func (p *Pipeline) ID() uint32 {
	return p.id
}

func (p *Pipeline) Name() string {
	return p.Config.Name
}

func (p *Pipeline) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("pipeline#%d(%s)", p.id, p.Config.Name)
}

func (p *Pipeline) State() node.State {
	return node.State(p.state.Load())
}

func (p *Pipeline) setState(s node.State) {
	p.state.Store(uint32(s))
}

// IsRunning returns true if the workers are started (including
// the paused state).
func (p *Pipeline) IsRunning() bool {
	switch p.State() {
	case node.StateRunning, node.StatePaused:
		return true
	}
	return false
}

// GetConnections implements node.Owner.
func (p *Pipeline) GetConnections() []*node.Connection {
	return *xatomic.LoadPointer(&p.connections)
}

func (p *Pipeline) setConnections(conns []*node.Connection) {
	xatomic.StorePointer(&p.connections, &conns)
}

// Connections returns the connections of the pipeline.
func (p *Pipeline) Connections() []*node.Connection {
	return slices.Clone(p.GetConnections())
}

// Nodes returns the registered nodes in the registration order.
func (p *Pipeline) Nodes(ctx context.Context) []*node.Node {
	return xsync.DoR1(ctx, &p.Locker, func() []*node.Node {
		return slices.Clone(p.nodes)
	})
}

func (p *Pipeline) checkMutableLocked(op string) error {
	if p.destroyed.Load() {
		return types.ErrNotInitialized{}
	}
	if p.IsRunning() {
		return types.ErrBusy{Op: op, Reason: fmt.Sprintf("%s is running", p)}
	}
	return nil
}

// RegisterNode adds a standalone node to the pipeline and runs its Init.
func (p *Pipeline) RegisterNode(
	ctx context.Context,
	n *node.Node,
) (_ret uint32, _err error) {
	logger.Debugf(ctx, "RegisterNode[%s]: %s", p, n)
	defer func() { logger.Debugf(ctx, "/RegisterNode[%s]: %s: %d %v", p, n, _ret, _err) }()
	if n == nil {
		return 0, types.ErrInvalidParam{Reason: "node is nil"}
	}

	id, err := xsync.DoR2(ctx, &p.Locker, func() (uint32, error) {
		if err := p.checkMutableLocked("register a node"); err != nil {
			return 0, err
		}
		if uint(len(p.nodes)) >= p.Config.MaxNodes {
			return 0, types.ErrNoMemory{Resource: fmt.Sprintf("a node slot (max: %d)", p.Config.MaxNodes)}
		}
		id := p.nextNodeID
		if err := n.Attach(ctx, p, id); err != nil {
			return 0, err
		}
		if err := n.Init(ctx); err != nil {
			n.Detach(ctx, p)
			return 0, err
		}
		p.nextNodeID++
		p.nodes = append(p.nodes, n)
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	p.emit(ctx, Event{Type: EventTypeNodeAdded, Node: n})
	return id, nil
}

// UnregisterNode removes the node and its connections from the pipeline
// and runs its Deinit; the node may be registered again afterwards.
func (p *Pipeline) UnregisterNode(
	ctx context.Context,
	n *node.Node,
) (_err error) {
	logger.Debugf(ctx, "UnregisterNode[%s]: %s", p, n)
	defer func() { logger.Debugf(ctx, "/UnregisterNode[%s]: %s: %v", p, n, _err) }()
	if n == nil {
		return types.ErrInvalidParam{Reason: "node is nil"}
	}

	var events []Event
	err := xsync.DoR1(ctx, &p.Locker, func() error {
		if err := p.checkMutableLocked("unregister a node"); err != nil {
			return err
		}
		idx := slices.Index(p.nodes, n)
		if idx < 0 {
			return types.ErrNotFound{What: "node", Name: n.Name()}
		}

		var kept []*node.Connection
		for _, conn := range p.GetConnections() {
			if conn.Source == n || conn.Sink == n {
				conn.Active.Store(false)
				events = append(events, Event{Type: EventTypeDisconnected, Connection: conn})
				continue
			}
			kept = append(kept, conn)
		}
		p.setConnections(kept)
		p.nodes = slices.Delete(p.nodes, idx, idx+1)

		err := n.Deinit(ctx)
		n.Detach(ctx, p)
		events = append(events, Event{Type: EventTypeNodeRemoved, Node: n})
		return err
	})
	p.emit(ctx, events...)
	return err
}

// FindNode returns the node with the given name.
func (p *Pipeline) FindNode(ctx context.Context, name string) (*node.Node, error) {
	return xsync.DoR2(ctx, &p.Locker, func() (*node.Node, error) {
		for _, n := range p.nodes {
			if n.Name() == name {
				return n, nil
			}
		}
		return nil, types.ErrNotFound{What: "node", Name: name}
	})
}

// GetNode returns the node with the given ID.
func (p *Pipeline) GetNode(ctx context.Context, id uint32) (*node.Node, error) {
	return xsync.DoR2(ctx, &p.Locker, func() (*node.Node, error) {
		return p.getNodeLocked(id)
	})
}

func (p *Pipeline) getNodeLocked(id uint32) (*node.Node, error) {
	for _, n := range p.nodes {
		if n.ID() == id {
			return n, nil
		}
	}
	return nil, types.ErrNotFound{What: "node", ID: id}
}

// ConnectNodes declares that the node dstID reads the output of the node srcID.
func (p *Pipeline) ConnectNodes(
	ctx context.Context,
	srcID, srcPort uint32,
	dstID, dstPort uint32,
) (_ret uint32, _err error) {
	logger.Debugf(ctx, "ConnectNodes[%s]: %d:%d -> %d:%d", p, srcID, srcPort, dstID, dstPort)
	defer func() {
		logger.Debugf(ctx, "/ConnectNodes[%s]: %d:%d -> %d:%d: %d %v", p, srcID, srcPort, dstID, dstPort, _ret, _err)
	}()

	conn, err := xsync.DoR2(ctx, &p.Locker, func() (*node.Connection, error) {
		if err := p.checkMutableLocked("connect nodes"); err != nil {
			return nil, err
		}
		if srcPort >= node.MaxOutputs {
			return nil, types.ErrInvalidParam{Reason: fmt.Sprintf("source port %d is out of range [0, %d)", srcPort, node.MaxOutputs)}
		}
		if dstPort >= node.MaxInputs {
			return nil, types.ErrInvalidParam{Reason: fmt.Sprintf("sink port %d is out of range [0, %d)", dstPort, node.MaxInputs)}
		}
		src, err := p.getNodeLocked(srcID)
		if err != nil {
			return nil, err
		}
		dst, err := p.getNodeLocked(dstID)
		if err != nil {
			return nil, err
		}
		conns := p.GetConnections()
		if uint(len(conns)) >= p.Config.MaxConnections {
			return nil, types.ErrNoMemory{Resource: fmt.Sprintf("a connection slot (max: %d)", p.Config.MaxConnections)}
		}

		conn := node.NewConnection(p.nextConnectionID, src, srcPort, dst, dstPort)
		p.nextConnectionID++
		p.setConnections(append(slices.Clone(conns), conn))
		return conn, nil
	})
	if err != nil {
		return 0, err
	}
	p.emit(ctx, Event{Type: EventTypeConnected, Connection: conn})
	return conn.ID, nil
}

// DisconnectNodes removes a connection previously created by ConnectNodes.
func (p *Pipeline) DisconnectNodes(
	ctx context.Context,
	connectionID uint32,
) (_err error) {
	logger.Debugf(ctx, "DisconnectNodes[%s]: %d", p, connectionID)
	defer func() { logger.Debugf(ctx, "/DisconnectNodes[%s]: %d: %v", p, connectionID, _err) }()

	conn, err := xsync.DoR2(ctx, &p.Locker, func() (*node.Connection, error) {
		if err := p.checkMutableLocked("disconnect nodes"); err != nil {
			return nil, err
		}
		conns := p.GetConnections()
		idx := slices.IndexFunc(conns, func(c *node.Connection) bool {
			return c.ID == connectionID
		})
		if idx < 0 {
			return nil, types.ErrNotFound{What: "connection", ID: connectionID}
		}
		conn := conns[idx]
		conn.Active.Store(false)
		p.setConnections(slices.Delete(slices.Clone(conns), idx, idx+1))
		return conn, nil
	})
	if err != nil {
		return err
	}
	p.emit(ctx, Event{Type: EventTypeDisconnected, Connection: conn})
	return nil
}

// Runtime returns how long the pipeline is running, or zero if it is not.
func (p *Pipeline) Runtime() time.Duration {
	if !p.IsRunning() {
		return 0
	}
	return time.Since(p.startedAt.Load())
}
