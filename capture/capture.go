// capture.go defines the contract between capture hardware drivers and source nodes.

// Package capture defines how source nodes acquire buffers from capture
// drivers and hand them back.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/vpipeline/frame"
)

// Buffer is a completed capture lent by a Driver.
type Buffer struct {
	Data      []byte
	Size      uint32
	FrameID   uint32
	Timestamp time.Time
}

// SensorInfo describes the sensor behind a Driver.
type SensorInfo struct {
	Name   string
	Width  uint32
	Height uint32
	Format frame.Format
	FPS    uint32
}

func (s SensorInfo) String() string {
	return fmt.Sprintf("%s %dx%d %s@%dfps", s.Name, s.Width, s.Height, s.Format, s.FPS)
}

// Driver is a capture device owning a pool of buffers.
//
// A buffer returned by Acquire belongs to the caller until it is passed
// back to Return; the driver never reuses a buffer before that.
type Driver interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Acquire blocks until a capture is completed.
	Acquire(ctx context.Context) (Buffer, error)

	// Return hands the exact slice received from Acquire back to the driver.
	Return(data []byte) error

	SetResolution(ctx context.Context, width, height uint32) error
	SetFPS(ctx context.Context, fps uint32) error
	SensorInfo() SensorInfo
}

type ErrNotStarted struct{}

func (ErrNotStarted) Error() string {
	return "capture is not started"
}

// ErrForeignBuffer is returned by Return for a buffer which does not
// belong to the driver or was already returned.
type ErrForeignBuffer struct {
	Reason string
}

func (e ErrForeignBuffer) Error() string {
	return fmt.Sprintf("unable to accept the buffer back: %s", e.Reason)
}
