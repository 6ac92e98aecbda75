package kernel

import (
	"context"
	"time"

	"go.uber.org/atomic"

	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/node"
)

// Sink hands every input frame to Consumer; the frame is valid
// only during the call unless the consumer takes a reference.
type Sink struct {
	Base
	Consumer func(ctx context.Context, f *frame.Frame) error

	// Delay is slept before consuming each frame (a slow consumer).
	Delay atomic.Duration

	Received atomic.Uint64
}

var _ node.Kernel = (*Sink)(nil)

func NewSink(consumer func(ctx context.Context, f *frame.Frame) error) *Sink {
	return &Sink{Consumer: consumer}
}

func (*Sink) String() string {
	return "Sink"
}

func (s *Sink) Process(
	ctx context.Context,
	n *node.Node,
	inputs []*frame.Frame,
	outputs []*frame.Frame,
) (int, error) {
	for _, in := range inputs {
		if delay := s.Delay.Load(); delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return 0, ctx.Err()
			case <-t.C:
			}
		}
		s.Received.Inc()
		if s.Consumer == nil {
			continue
		}
		if err := s.Consumer(ctx, in); err != nil {
			return 0, err
		}
	}
	return 0, nil
}
