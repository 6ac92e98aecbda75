package kernel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/xaionaro-go/vpipeline/capture"
	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/logger"
	"github.com/xaionaro-go/vpipeline/node"
	"github.com/xaionaro-go/vpipeline/types"
)

// OverlayFunc draws over a captured buffer before it enters the pipeline
// (e.g. the bounding boxes of a detector).
type OverlayFunc func(ctx context.Context, data []byte, info *frame.Info) error

// Camera is a source wrapping the buffers of a capture.Driver into
// zero-copy frames; the buffers go back to the driver when the last
// consumer releases the frame.
type Camera struct {
	Driver  capture.Driver
	Overlay OverlayFunc

	capturing atomic.Bool

	Captured       atomic.Uint64
	Errors         atomic.Uint64
	InFlight       atomic.Int64
	AvgCaptureTime atomic.Duration
	MaxCaptureTime atomic.Duration
}

var _ node.Kernel = (*Camera)(nil)

func NewCamera(driver capture.Driver) *Camera {
	return &Camera{Driver: driver}
}

func (c *Camera) String() string {
	return fmt.Sprintf("Camera(%s)", c.Driver.SensorInfo())
}

func (c *Camera) Init(ctx context.Context, n *node.Node) error {
	if c.Driver == nil {
		return types.ErrInvalidParam{Reason: "capture driver is not set"}
	}
	return c.startCapture(ctx)
}

func (c *Camera) Deinit(ctx context.Context, n *node.Node) error {
	return c.stopCapture(ctx)
}

func (c *Camera) startCapture(ctx context.Context) error {
	if err := c.Driver.Start(ctx); err != nil {
		return fmt.Errorf("unable to start the capture: %w", err)
	}
	c.capturing.Store(true)
	return nil
}

func (c *Camera) stopCapture(ctx context.Context) error {
	c.capturing.Store(false)
	if err := c.Driver.Stop(ctx); err != nil {
		return fmt.Errorf("unable to stop the capture: %w", err)
	}
	return nil
}

func (c *Camera) IsCapturing() bool {
	return c.capturing.Load()
}

func (c *Camera) Process(
	ctx context.Context,
	n *node.Node,
	inputs []*frame.Frame,
	outputs []*frame.Frame,
) (int, error) {
	if !c.capturing.Load() {
		return 0, nil
	}

	startTS := time.Now()
	buf, err := c.Driver.Acquire(ctx)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return 0, ctx.Err()
		case errors.As(err, &capture.ErrNotStarted{}):
			return 0, nil
		}
		c.Errors.Inc()
		return 0, fmt.Errorf("unable to acquire a capture buffer: %w", err)
	}
	c.noteCaptureTime(time.Since(startTS))

	sensor := c.Driver.SensorInfo()
	info := frame.Info{
		Width:     sensor.Width,
		Height:    sensor.Height,
		Format:    sensor.Format,
		Stride:    sensor.Width * sensor.Format.BytesPerPixel(),
		Timestamp: buf.Timestamp,
		Sequence:  buf.FrameID,
	}

	if c.Overlay != nil {
		if err := c.Overlay(ctx, buf.Data[:buf.Size], &info); err != nil {
			logger.Warnf(ctx, "overlay failed on frame #%d: %v", buf.FrameID, err)
		}
	}

	f, err := frame.NewZeroCopy(&info, buf.Data, buf.Size, func(data []byte) {
		c.InFlight.Dec()
		if err := c.Driver.Return(data); err != nil {
			logger.Errorf(ctx, "unable to return the buffer of frame #%d to the driver: %v", info.Sequence, err)
		}
	})
	if err != nil {
		c.Errors.Inc()
		if retErr := c.Driver.Return(buf.Data); retErr != nil {
			logger.Errorf(ctx, "unable to return the buffer of frame #%d to the driver: %v", buf.FrameID, retErr)
		}
		return 0, err
	}
	c.InFlight.Inc()
	c.Captured.Inc()
	outputs[0] = f
	return 1, nil
}

func (c *Camera) noteCaptureTime(d time.Duration) {
	avg := c.AvgCaptureTime.Load()
	if avg == 0 {
		avg = d
	} else {
		avg = (avg*9 + d) / 10
	}
	c.AvgCaptureTime.Store(avg)
	if d > c.MaxCaptureTime.Load() {
		c.MaxCaptureTime.Store(d)
	}
}

func (c *Camera) Control(
	ctx context.Context,
	n *node.Node,
	cmd node.Command,
	param any,
) error {
	switch cmd {
	case CommandCameraStartCapture:
		return c.startCapture(ctx)
	case CommandCameraStopCapture:
		return c.stopCapture(ctx)
	case CommandCameraSetResolution:
		r, err := paramResolution(param)
		if err != nil {
			return err
		}
		return c.Driver.SetResolution(ctx, r.Width, r.Height)
	case CommandCameraSetFPS:
		fps, err := paramUint32(param)
		if err != nil {
			return err
		}
		return c.Driver.SetFPS(ctx, fps)
	case CommandCameraGetSensorInfo:
		info, ok := param.(*capture.SensorInfo)
		if !ok || info == nil {
			return types.ErrInvalidParam{Reason: fmt.Sprintf("expected a non-nil *capture.SensorInfo, received %T", param)}
		}
		*info = c.Driver.SensorInfo()
		return nil
	default:
		return ErrUnsupportedCommand{Command: cmd}
	}
}
