// frame.go defines the reference-counted Frame and its constructors.

// Package frame provides video frames with explicit reference counting,
// including frames aliasing buffers lent by hardware producers (zero-copy).
package frame

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/xaionaro-go/vpipeline/internal"
	"github.com/xaionaro-go/vpipeline/logger"
	"github.com/xaionaro-go/vpipeline/types"
)

const (
	// DefaultQuality is the quality assigned to frames that did not pass
	// through a lossy stage.
	DefaultQuality = 100
)

// Info describes the geometry and the timing of a frame.
type Info struct {
	Width     uint32
	Height    uint32
	Format    Format
	Stride    uint32
	Size      uint32
	Timestamp time.Time
	Sequence  uint32
}

type Frame struct {
	Info
	Data        []byte
	PrivateData any
	IsKeyFrame  bool
	Quality     uint32

	refCount atomic.Uint32
	storage  Storage
}

// NewZeroCopy wraps a hardware buffer into a frame without copying it.
// The returned frame holds one reference; when the last reference
// is dropped, release is called with hwBuffer exactly once.
func NewZeroCopy(
	info *Info,
	hwBuffer []byte,
	hwBufferSize uint32,
	release ReleaseFunc,
) (*Frame, error) {
	if info == nil {
		return nil, types.ErrInvalidParam{Reason: "frame info is nil"}
	}
	if hwBuffer == nil {
		return nil, types.ErrInvalidParam{Reason: "hardware buffer is nil"}
	}
	if int(hwBufferSize) > len(hwBuffer) {
		return nil, types.ErrInvalidParam{Reason: fmt.Sprintf("buffer size %d exceeds the buffer length %d", hwBufferSize, len(hwBuffer))}
	}

	f := &Frame{
		Info:       *info,
		Data:       hwBuffer[:hwBufferSize],
		IsKeyFrame: true,
		Quality:    DefaultQuality,
		storage: &ZeroCopyStorage{
			Buffer:  hwBuffer,
			Size:    hwBufferSize,
			Release: release,
		},
	}
	f.Size = hwBufferSize
	f.refCount.Store(1)
	internal.SetLeakFinalizer(context.Background(), f, func(f *Frame) bool {
		s, ok := f.storage.(*ZeroCopyStorage)
		return ok && !s.IsReturned()
	})
	return f, nil
}

// New creates a frame owning the given data.
func New(
	info *Info,
	data []byte,
) (*Frame, error) {
	if info == nil {
		return nil, types.ErrInvalidParam{Reason: "frame info is nil"}
	}
	f := &Frame{
		Info:       *info,
		Data:       data,
		IsKeyFrame: true,
		Quality:    DefaultQuality,
		storage:    &OwnedStorage{},
	}
	f.Size = uint32(len(data))
	f.refCount.Store(1)
	return f, nil
}

// NewAllocated creates an owned frame with a buffer large enough for the
// format and the dimensions from info (or info.Size for compressed formats).
func NewAllocated(info *Info) (*Frame, error) {
	if info == nil {
		return nil, types.ErrInvalidParam{Reason: "frame info is nil"}
	}
	size := info.Format.FrameSize(info.Width, info.Height)
	if size == 0 {
		size = info.Size
	}
	if size == 0 {
		return nil, types.ErrInvalidParam{Reason: fmt.Sprintf("unable to determine the size of a %s frame", info.Format)}
	}
	return New(info, make([]byte, size))
}

// Ref adds a reference and returns the new count.
func (f *Frame) Ref() uint32 {
	if f == nil {
		return 0
	}
	return f.refCount.Inc()
}

// Unref drops a reference and returns the new count. Dropping the last
// reference frees the storage (for zero-copy frames the buffer is returned
// to its producer).
func (f *Frame) Unref() (uint32, error) {
	if f == nil {
		return 0, nil
	}
	for {
		old := f.refCount.Load()
		if old == 0 {
			return 0, ErrDoubleRelease{Frame: f}
		}
		if !f.refCount.CompareAndSwap(old, old-1) {
			continue
		}
		if old == 1 {
			f.free()
		}
		return old - 1, nil
	}
}

func (f *Frame) free() {
	if f.storage == nil {
		return
	}
	f.storage.free(f.Data)
}

func (f *Frame) RefCount() uint32 {
	if f == nil {
		return 0
	}
	return f.refCount.Load()
}

func (f *Frame) IsZeroCopy() bool {
	if f == nil {
		return false
	}
	_, ok := f.storage.(*ZeroCopyStorage)
	return ok
}

func (f *Frame) Storage() Storage {
	return f.storage
}

func (f *Frame) String() string {
	if f == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"frame#%d(%dx%d %s, %d bytes, %s, refs:%d)",
		f.Sequence, f.Width, f.Height, f.Format, len(f.Data), f.storage, f.RefCount(),
	)
}

// UnrefAll drops one reference of every given frame, nil frames are skipped.
func UnrefAll(ctx context.Context, frames ...*Frame) error {
	var errs []error
	for _, f := range frames {
		if f == nil {
			continue
		}
		if _, err := f.Unref(); err != nil {
			logger.Errorf(ctx, "unable to release %s: %v", f, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
