package kernel

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xaionaro-go/vpipeline/capture"
	"github.com/xaionaro-go/vpipeline/capture/simulated"
	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/node"
	"github.com/xaionaro-go/vpipeline/types"
)

func newRGBFrame(t *testing.T, w, h uint32) *frame.Frame {
	f, err := frame.NewAllocated(&frame.Info{Width: w, Height: h, Format: frame.FormatRGB888, Sequence: 3})
	require.NoError(t, err)
	for i := range f.Data {
		f.Data[i] = byte(i * 7)
	}
	return f
}

func TestPassthrough(t *testing.T) {
	ctx := context.Background()
	in := newRGBFrame(t, 2, 2)
	outputs := make([]*frame.Frame, node.MaxOutputs)
	count, err := Passthrough{}.Process(ctx, nil, []*frame.Frame{in}, outputs)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Same(t, in, outputs[0])
	require.Equal(t, uint32(2), in.RefCount())

	var errUnsupported ErrUnsupportedCommand
	require.True(t, errors.As(Passthrough{}.Control(ctx, nil, 0x42, nil), &errUnsupported))
}

func TestSink(t *testing.T) {
	ctx := context.Background()
	var got []uint32
	s := NewSink(func(ctx context.Context, f *frame.Frame) error {
		got = append(got, f.Sequence)
		return nil
	})
	s.Delay.Store(time.Millisecond)
	count, err := s.Process(ctx, nil, []*frame.Frame{newRGBFrame(t, 1, 1)}, nil)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Equal(t, []uint32{3}, got)
	require.Equal(t, uint64(1), s.Received.Load())

	s.Delay.Store(time.Hour)
	cancelCtx, cancelFn := context.WithCancel(ctx)
	cancelFn()
	_, err = s.Process(cancelCtx, nil, []*frame.Frame{newRGBFrame(t, 1, 1)}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCamera(t *testing.T) {
	ctx := context.Background()
	drv := simulated.New(simulated.Config{Buffers: 2, Width: 4, Height: 4, FPS: 1000})
	cam := NewCamera(drv)
	outputs := make([]*frame.Frame, node.MaxOutputs)

	require.NoError(t, cam.Init(ctx, nil))
	require.True(t, cam.IsCapturing())

	count, err := cam.Process(ctx, nil, nil, outputs)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	f := outputs[0]
	require.True(t, f.IsZeroCopy())
	require.Equal(t, uint32(4), f.Width)
	require.Equal(t, uint32(12), f.Stride)
	require.Equal(t, uint(1), drv.Outstanding())
	require.Equal(t, int64(1), cam.InFlight.Load())

	_, err = f.Unref()
	require.NoError(t, err)
	require.Zero(t, drv.Outstanding())
	require.Zero(t, cam.InFlight.Load())
	require.Equal(t, uint64(1), cam.Captured.Load())

	var info capture.SensorInfo
	require.NoError(t, cam.Control(ctx, nil, CommandCameraGetSensorInfo, &info))
	require.Equal(t, uint32(4), info.Height)
	require.NoError(t, cam.Control(ctx, nil, CommandCameraSetResolution, Resolution{Width: 8, Height: 2}))
	require.NoError(t, cam.Control(ctx, nil, CommandCameraSetFPS, uint32(500)))
	require.Equal(t, uint32(500), drv.SensorInfo().FPS)
	var errInvalid types.ErrInvalidParam
	require.True(t, errors.As(cam.Control(ctx, nil, CommandCameraSetResolution, "8x2"), &errInvalid))

	require.NoError(t, cam.Control(ctx, nil, CommandCameraStopCapture, nil))
	count, err = cam.Process(ctx, nil, nil, outputs)
	require.NoError(t, err)
	require.Zero(t, count)

	require.NoError(t, cam.Control(ctx, nil, CommandCameraStartCapture, nil))
	clear(outputs)
	count, err = cam.Process(ctx, nil, nil, outputs)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Len(t, outputs[0].Data, 8*2*3)
	require.NoError(t, frame.UnrefAll(ctx, outputs[0]))

	require.NoError(t, cam.Deinit(ctx, nil))
	require.False(t, drv.IsStarted(ctx))
}

func TestImageFilter(t *testing.T) {
	ctx := context.Background()
	flt := NewImageFilter(2, 2, 0)
	outputs := make([]*frame.Frame, node.MaxOutputs)
	count, err := flt.Process(ctx, nil, []*frame.Frame{newRGBFrame(t, 4, 4)}, outputs)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, uint32(2), outputs[0].Width)
	require.Len(t, outputs[0].Data, 2*2*3)
	require.Equal(t, uint32(3), outputs[0].Sequence)
	require.False(t, outputs[0].IsZeroCopy())

	require.NoError(t, flt.Control(ctx, nil, CommandFilterSetResolution, &Resolution{Width: 3, Height: 1}))
	require.NoError(t, flt.Control(ctx, nil, CommandFilterSetBlurRadius, 1.5))
	require.Equal(t, 1.5, flt.Blur.Radius.Load())
	count, err = flt.Process(ctx, nil, []*frame.Frame{newRGBFrame(t, 4, 4)}, outputs)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, uint32(3), outputs[0].Width)
	require.Equal(t, uint32(1), outputs[0].Height)

	bad := newRGBFrame(t, 2, 2)
	bad.Format = frame.FormatNV12
	_, err = flt.Process(ctx, nil, []*frame.Frame{bad}, outputs)
	require.Error(t, err)
}

func TestJPEGEncoder(t *testing.T) {
	ctx := context.Background()
	enc := NewJPEGEncoder(0)
	require.Equal(t, uint32(DefaultJPEGQuality), enc.Quality.Load())
	require.NoError(t, enc.Init(ctx, nil))

	outputs := make([]*frame.Frame, node.MaxOutputs)
	count, err := enc.Process(ctx, nil, []*frame.Frame{newRGBFrame(t, 8, 8)}, outputs)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	out := outputs[0]
	require.Equal(t, frame.FormatMJPEG, out.Format)
	require.Equal(t, uint32(DefaultJPEGQuality), out.Quality)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Width)

	var errInvalid types.ErrInvalidParam
	require.True(t, errors.As(enc.Control(ctx, nil, CommandEncoderSetQuality, uint32(0)), &errInvalid))
	require.NoError(t, enc.Control(ctx, nil, CommandEncoderSetQuality, 50))
	require.NoError(t, enc.Control(ctx, nil, CommandEncoderStop, nil))

	var params EncoderParams
	require.NoError(t, enc.Control(ctx, nil, CommandEncoderGetParam, &params))
	require.False(t, params.Encoding)
	require.Equal(t, uint32(50), params.Quality)
	require.Equal(t, uint64(1), params.FramesEncoded)
	require.Equal(t, uint64(len(out.Data)), params.BytesEncoded)

	clear(outputs)
	count, err = enc.Process(ctx, nil, []*frame.Frame{newRGBFrame(t, 8, 8)}, outputs)
	require.NoError(t, err)
	require.Zero(t, count)

	var errUnsupported ErrUnsupportedCommand
	require.True(t, errors.As(enc.Control(ctx, nil, CommandEncoderSetBitrate, 1000), &errUnsupported))
}
