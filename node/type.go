package node

import (
	"fmt"
)

// Type is the role of a node in a pipeline.
type Type uint32

const (
	TypeUnknown = Type(iota)
	TypeSource
	TypeSink
	TypeFilter
	TypeEncoder
	TypeDecoder
	TypeAnalyzer
	TypeMixer
	TypeSplitter
	TypeCustom
)

func (t Type) String() string {
	switch t {
	case TypeUnknown:
		return "unknown"
	case TypeSource:
		return "source"
	case TypeSink:
		return "sink"
	case TypeFilter:
		return "filter"
	case TypeEncoder:
		return "encoder"
	case TypeDecoder:
		return "decoder"
	case TypeAnalyzer:
		return "analyzer"
	case TypeMixer:
		return "mixer"
	case TypeSplitter:
		return "splitter"
	case TypeCustom:
		return "custom"
	default:
		return fmt.Sprintf("unknown_type_%d", uint32(t))
	}
}

// State is the lifecycle state of a node (and of a pipeline).
type State uint32

const (
	StateIdle = State(iota)
	StateReady
	StateRunning
	StatePaused
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("unknown_state_%d", uint32(s))
	}
}

// ExecState is what the worker of a node is doing right now.
type ExecState uint32

const (
	ExecStateIdle = ExecState(iota)
	ExecStateWaiting
	ExecStateProcessing
	ExecStateBlocked
	ExecStateError
)

func (s ExecState) String() string {
	switch s {
	case ExecStateIdle:
		return "idle"
	case ExecStateWaiting:
		return "waiting"
	case ExecStateProcessing:
		return "processing"
	case ExecStateBlocked:
		return "blocked"
	case ExecStateError:
		return "error"
	default:
		return fmt.Sprintf("unknown_exec_state_%d", uint32(s))
	}
}
