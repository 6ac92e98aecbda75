package imageprocessor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/xaionaro-go/vpipeline/frame"
)

// ToImage converts an RGB888 frame into an image (the data is copied).
func ToImage(f *frame.Frame) (*image.RGBA, error) {
	if f.Format != frame.FormatRGB888 {
		return nil, fmt.Errorf("unsupported format %s, expected %s", f.Format, frame.FormatRGB888)
	}
	w, h := int(f.Width), int(f.Height)
	stride := int(f.Stride)
	if stride == 0 {
		stride = w * 3
	}
	if stride < w*3 || len(f.Data) < stride*(h-1)+w*3 {
		return nil, fmt.Errorf("the frame data is too short (%d bytes) for %dx%d with stride %d", len(f.Data), w, h, stride)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		row := f.Data[y*stride:]
		for x := range w {
			img.SetRGBA(x, y, color.RGBA{R: row[x*3], G: row[x*3+1], B: row[x*3+2], A: 0xff})
		}
	}
	return img, nil
}

// FromImage creates an owned RGB888 frame out of the image, copying
// the timing information from src.
func FromImage(img image.Image, src *frame.Info) (*frame.Frame, error) {
	b := img.Bounds()
	info := frame.Info{
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Format: frame.FormatRGB888,
		Stride: uint32(b.Dx() * 3),
	}
	if src != nil {
		info.Timestamp = src.Timestamp
		info.Sequence = src.Sequence
	}
	f, err := frame.NewAllocated(&info)
	if err != nil {
		return nil, err
	}
	for y := range b.Dy() {
		row := f.Data[y*int(info.Stride):]
		for x := range b.Dx() {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			row[x*3], row[x*3+1], row[x*3+2] = c.R, c.G, c.B
		}
	}
	return f, nil
}
