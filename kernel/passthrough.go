package kernel

import (
	"context"

	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/node"
)

// Passthrough forwards its inputs as is.
type Passthrough struct {
	Base
}

var _ node.Kernel = (*Passthrough)(nil)

func (Passthrough) String() string {
	return "Passthrough"
}

func (Passthrough) Process(
	ctx context.Context,
	n *node.Node,
	inputs []*frame.Frame,
	outputs []*frame.Frame,
) (int, error) {
	count := min(len(inputs), len(outputs))
	for idx, in := range inputs[:count] {
		// the output reference is handed to the pipeline, while the input
		// one is released after the call
		in.Ref()
		outputs[idx] = in
	}
	return count, nil
}
