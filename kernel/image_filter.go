package kernel

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/kernel/imageprocessor"
	"github.com/xaionaro-go/vpipeline/node"
)

// ImageFilter converts RGB888 frames through a chain of image processors
// (resize, blur and any extra ones) into new owned RGB888 frames.
type ImageFilter struct {
	Base
	Resize     *imageprocessor.Resize
	Blur       *imageprocessor.GaussianBlur
	Processors []imageprocessor.Abstract
}

var _ node.Kernel = (*ImageFilter)(nil)

// NewImageFilter returns a filter resizing to width x height (zero keeps
// the size) and blurring with blurRadius (zero disables the blur), followed
// by the extra processors.
func NewImageFilter(
	width, height uint32,
	blurRadius float64,
	extra ...imageprocessor.Abstract,
) *ImageFilter {
	f := &ImageFilter{
		Resize: imageprocessor.NewResize(width, height),
		Blur:   imageprocessor.NewGaussianBlur(blurRadius),
	}
	f.Processors = append([]imageprocessor.Abstract{f.Resize, f.Blur}, extra...)
	return f
}

func (f *ImageFilter) String() string {
	var names []string
	for _, p := range f.Processors {
		names = append(names, p.String())
	}
	return fmt.Sprintf("ImageFilter(%s)", strings.Join(names, ","))
}

func (f *ImageFilter) Process(
	ctx context.Context,
	n *node.Node,
	inputs []*frame.Frame,
	outputs []*frame.Frame,
) (int, error) {
	count := 0
	for _, in := range inputs {
		if count >= len(outputs) {
			break
		}
		img, err := imageprocessor.ToImage(in)
		if err != nil {
			frame.UnrefAll(ctx, outputs[:count]...)
			return 0, err
		}
		var result image.Image = img
		for _, p := range f.Processors {
			result, err = p.Process(ctx, result)
			if err != nil {
				frame.UnrefAll(ctx, outputs[:count]...)
				return 0, fmt.Errorf("%s failed: %w", p, err)
			}
		}
		out, err := imageprocessor.FromImage(result, &in.Info)
		if err != nil {
			frame.UnrefAll(ctx, outputs[:count]...)
			return 0, err
		}
		out.IsKeyFrame = in.IsKeyFrame
		out.Quality = in.Quality
		outputs[count] = out
		count++
	}
	return count, nil
}

func (f *ImageFilter) Control(
	ctx context.Context,
	n *node.Node,
	cmd node.Command,
	param any,
) error {
	switch cmd {
	case CommandFilterSetResolution:
		r, err := paramResolution(param)
		if err != nil {
			return err
		}
		f.Resize.SetResolution(r.Width, r.Height)
		return nil
	case CommandFilterSetBlurRadius:
		radius, err := paramFloat64(param)
		if err != nil {
			return err
		}
		if radius < 0 {
			radius = 0
		}
		f.Blur.Radius.Store(radius)
		return nil
	default:
		return ErrUnsupportedCommand{Command: cmd}
	}
}
