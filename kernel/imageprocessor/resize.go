package imageprocessor

import (
	"context"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/transform"
	"go.uber.org/atomic"
)

// Resize scales images to Width x Height; a zero dimension disables it.
type Resize struct {
	Width  atomic.Uint32
	Height atomic.Uint32
	Filter transform.ResampleFilter
}

var _ Abstract = (*Resize)(nil)

func NewResize(width, height uint32) *Resize {
	r := &Resize{
		Filter: transform.Linear,
	}
	r.SetResolution(width, height)
	return r
}

func (r *Resize) SetResolution(width, height uint32) {
	r.Width.Store(width)
	r.Height.Store(height)
}

func (r *Resize) String() string {
	return fmt.Sprintf("Resize(%dx%d)", r.Width.Load(), r.Height.Load())
}

func (r *Resize) Process(
	ctx context.Context,
	img image.Image,
) (image.Image, error) {
	w, h := int(r.Width.Load()), int(r.Height.Load())
	if w == 0 || h == 0 {
		return img, nil
	}
	if b := img.Bounds(); b.Dx() == w && b.Dy() == h {
		return img, nil
	}
	return transform.Resize(img, w, h, r.Filter), nil
}
