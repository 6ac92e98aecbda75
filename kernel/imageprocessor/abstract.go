// abstract.go defines the Abstract interface for image processors.

// Package imageprocessor provides image operations applied by the image filter kernel.
package imageprocessor

import (
	"context"
	"fmt"
	"image"
)

type Abstract interface {
	fmt.Stringer
	Process(context.Context, image.Image) (image.Image, error)
}
