package imageprocessor

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xaionaro-go/vpipeline/frame"
)

func newRGBFrame(t *testing.T, w, h uint32) *frame.Frame {
	f, err := frame.NewAllocated(&frame.Info{Width: w, Height: h, Format: frame.FormatRGB888, Sequence: 7})
	require.NoError(t, err)
	for i := range f.Data {
		f.Data[i] = byte(i)
	}
	return f
}

func TestConvertRoundTrip(t *testing.T) {
	f := newRGBFrame(t, 4, 3)
	img, err := ToImage(f)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())

	out, err := FromImage(img, &f.Info)
	require.NoError(t, err)
	require.Equal(t, f.Data, out.Data)
	require.Equal(t, uint32(7), out.Sequence)

	f.Format = frame.FormatNV12
	_, err = ToImage(f)
	require.Error(t, err)
}

func TestResize(t *testing.T) {
	ctx := context.Background()
	img, err := ToImage(newRGBFrame(t, 8, 8))
	require.NoError(t, err)

	r := NewResize(4, 2)
	out, err := r.Process(ctx, img)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 4, 2), out.Bounds())

	r.SetResolution(0, 0)
	out, err = r.Process(ctx, img)
	require.NoError(t, err)
	require.Equal(t, image.Image(img), out)
}

func TestGaussianBlur(t *testing.T) {
	ctx := context.Background()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Pix[(4*8+4)*4] = 0xff // a single red dot in the middle

	b := NewGaussianBlur(0)
	out, err := b.Process(ctx, img)
	require.NoError(t, err)
	require.Equal(t, image.Image(img), out)

	b.Radius.Store(2)
	out, err = b.Process(ctx, img)
	require.NoError(t, err)
	r, _, _, _ := out.At(4, 4).RGBA()
	require.Less(t, r>>8, uint32(0xff))
	rn, _, _, _ := out.At(3, 4).RGBA()
	require.Greater(t, rn, uint32(0))

	b.SetRegion(ctx, image.Rect(0, 0, 2, 2))
	out, err = b.Process(ctx, img)
	require.NoError(t, err)
	r, _, _, _ = out.At(4, 4).RGBA()
	require.Equal(t, uint32(0xff), r>>8)
}
