package vpipeline

import (
	"context"

	"github.com/xaionaro-go/vpipeline/frame"
)

// PushFrame puts the frame to the output queue of the named node without
// waiting; on failure the caller still owns the frame.
func (p *Pipeline) PushFrame(
	ctx context.Context,
	nodeName string,
	f *frame.Frame,
) error {
	n, err := p.FindNode(ctx, nodeName)
	if err != nil {
		return err
	}
	return n.PushFrame(ctx, f)
}

// PullFrame takes a frame from the output queue of the named node without
// waiting; the caller becomes responsible for releasing it.
func (p *Pipeline) PullFrame(
	ctx context.Context,
	nodeName string,
) (*frame.Frame, error) {
	n, err := p.FindNode(ctx, nodeName)
	if err != nil {
		return nil, err
	}
	return n.PullFrame(ctx)
}
