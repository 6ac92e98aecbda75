// kernel.go defines the helpers shared by the concrete node kernels.

// Package kernel provides the concrete node kernels: camera sources,
// filters, encoders and sinks.
package kernel

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/vpipeline/node"
	"github.com/xaionaro-go/vpipeline/types"
)

// Base implements no-op Init/Deinit and rejects every command; kernels
// embed it and override what they need.
type Base struct{}

func (Base) Init(ctx context.Context, n *node.Node) error {
	return nil
}

func (Base) Deinit(ctx context.Context, n *node.Node) error {
	return nil
}

func (Base) Control(ctx context.Context, n *node.Node, cmd node.Command, param any) error {
	return ErrUnsupportedCommand{Command: cmd}
}

// Resolution is the parameter of the SetResolution commands.
type Resolution struct {
	Width  uint32
	Height uint32
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

func paramResolution(param any) (Resolution, error) {
	var r Resolution
	switch p := param.(type) {
	case Resolution:
		r = p
	case *Resolution:
		if p == nil {
			return Resolution{}, types.ErrInvalidParam{Reason: "resolution is nil"}
		}
		r = *p
	default:
		return Resolution{}, types.ErrInvalidParam{Reason: fmt.Sprintf("expected a Resolution, received %T", param)}
	}
	if r.Width == 0 || r.Height == 0 {
		return Resolution{}, types.ErrInvalidParam{Reason: fmt.Sprintf("invalid resolution %s", r)}
	}
	return r, nil
}

func paramUint32(param any) (uint32, error) {
	switch p := param.(type) {
	case uint32:
		return p, nil
	case uint:
		return uint32(p), nil
	case int:
		if p < 0 {
			return 0, types.ErrInvalidParam{Reason: fmt.Sprintf("negative value %d", p)}
		}
		return uint32(p), nil
	default:
		return 0, types.ErrInvalidParam{Reason: fmt.Sprintf("expected an unsigned integer, received %T", param)}
	}
}

func paramFloat64(param any) (float64, error) {
	switch p := param.(type) {
	case float64:
		return p, nil
	case float32:
		return float64(p), nil
	case int:
		return float64(p), nil
	default:
		return 0, types.ErrInvalidParam{Reason: fmt.Sprintf("expected a number, received %T", param)}
	}
}
