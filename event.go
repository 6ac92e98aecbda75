package vpipeline

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/vpipeline/logger"
	"github.com/xaionaro-go/vpipeline/node"
)

// EventType identifies a pipeline notification.
type EventType uint32

const (
	EventTypeStarted = EventType(0x1000 + iota)
	EventTypeStopped
	EventTypePaused
	EventTypeResumed
	EventTypeError
	EventTypeNodeAdded
	EventTypeNodeRemoved
	EventTypeConnected
	EventTypeDisconnected
)

func (t EventType) String() string {
	switch t {
	case EventTypeStarted:
		return "started"
	case EventTypeStopped:
		return "stopped"
	case EventTypePaused:
		return "paused"
	case EventTypeResumed:
		return "resumed"
	case EventTypeError:
		return "error"
	case EventTypeNodeAdded:
		return "node_added"
	case EventTypeNodeRemoved:
		return "node_removed"
	case EventTypeConnected:
		return "connected"
	case EventTypeDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown_event_0x%04X", uint32(t))
	}
}

type Event struct {
	Type       EventType
	Node       *node.Node
	Connection *node.Connection
	Err        error
}

func (ev Event) String() string {
	switch {
	case ev.Err != nil:
		return fmt.Sprintf("%s: %v", ev.Type, ev.Err)
	case ev.Connection != nil:
		return fmt.Sprintf("%s: %s", ev.Type, ev.Connection)
	case ev.Node != nil:
		return fmt.Sprintf("%s: %s", ev.Type, ev.Node)
	default:
		return ev.Type.String()
	}
}

// EventHandler receives pipeline notifications on the goroutine that
// performed the corresponding operation.
type EventHandler func(ctx context.Context, p *Pipeline, ev Event)

func (p *Pipeline) emit(ctx context.Context, events ...Event) {
	for _, ev := range events {
		logger.Debugf(ctx, "event: %s", ev)
		if p.Config.OnEvent == nil {
			continue
		}
		p.Config.OnEvent(ctx, p, ev)
	}
}
