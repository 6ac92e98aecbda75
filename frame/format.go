package frame

import (
	"fmt"
)

// Format is a pixel format or a compressed bitstream format of a frame.
type Format uint32

const (
	FormatUnknown = Format(iota)
	FormatRGB888
	FormatRGB565
	FormatYUV420
	FormatYUV422
	FormatNV12
	FormatNV21
	FormatMJPEG
	FormatH264
	FormatH265
	EndOfFormat
)

func (f Format) String() string {
	switch f {
	case FormatUnknown:
		return "unknown"
	case FormatRGB888:
		return "RGB888"
	case FormatRGB565:
		return "RGB565"
	case FormatYUV420:
		return "YUV420"
	case FormatYUV422:
		return "YUV422"
	case FormatNV12:
		return "NV12"
	case FormatNV21:
		return "NV21"
	case FormatMJPEG:
		return "MJPEG"
	case FormatH264:
		return "H264"
	case FormatH265:
		return "H265"
	default:
		return fmt.Sprintf("unknown_format_%d", uint32(f))
	}
}

// IsCompressed returns true for bitstream formats, which have no fixed frame size.
func (f Format) IsCompressed() bool {
	switch f {
	case FormatMJPEG, FormatH264, FormatH265:
		return true
	}
	return false
}

// FrameSize returns the amount of bytes a raw frame of the given
// dimensions occupies, or 0 if it is not defined for the format.
func (f Format) FrameSize(width, height uint32) uint32 {
	switch f {
	case FormatRGB888:
		return width * height * 3
	case FormatRGB565, FormatYUV422:
		return width * height * 2
	case FormatYUV420, FormatNV12, FormatNV21:
		return width * height * 3 / 2
	}
	return 0
}

// BytesPerPixel returns the size of a pixel of a packed raw format,
// or 0 for planar and compressed formats.
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatRGB888:
		return 3
	case FormatRGB565, FormatYUV422:
		return 2
	}
	return 0
}
