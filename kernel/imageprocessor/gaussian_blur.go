package imageprocessor

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/anthonynsimon/bild/blur"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

// GaussianBlur blurs the Region of an image (the whole image if Region is empty).
type GaussianBlur struct {
	Radius atomic.Float64

	locker xsync.Mutex
	region image.Rectangle
}

var _ Abstract = (*GaussianBlur)(nil)

func NewGaussianBlur(radius float64) *GaussianBlur {
	b := &GaussianBlur{}
	b.Radius.Store(radius)
	return b
}

func (b *GaussianBlur) String() string {
	return fmt.Sprintf("GaussianBlur(%v)", b.Radius.Load())
}

func (b *GaussianBlur) SetRegion(ctx context.Context, r image.Rectangle) {
	b.locker.Do(ctx, func() {
		b.region = r
	})
}

func (b *GaussianBlur) Process(
	ctx context.Context,
	img image.Image,
) (image.Image, error) {
	radius := b.Radius.Load()
	if radius <= 0 {
		return img, nil
	}
	region := xsync.DoR1(ctx, &b.locker, func() image.Rectangle {
		return b.region
	})
	if region.Empty() {
		return blur.Gaussian(img, radius), nil
	}

	region = region.Intersect(img.Bounds())
	subImager, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("%T does not support sub-images", img)
	}
	dst, ok := img.(draw.Image)
	if !ok {
		return nil, fmt.Errorf("%T is not drawable", img)
	}
	blurred := blur.Gaussian(subImager.SubImage(region), radius)
	draw.Draw(dst, region, blurred, blurred.Bounds().Min, draw.Src)
	return dst, nil
}
