package simulated

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xaionaro-go/vpipeline/capture"
	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/types"
)

func TestDriverAcquireReturn(t *testing.T) {
	ctx := context.Background()
	d := New(Config{Buffers: 2, Width: 4, Height: 2, FPS: 1000})

	_, err := d.Acquire(ctx)
	require.ErrorAs(t, err, &capture.ErrNotStarted{})

	require.NoError(t, d.Start(ctx))
	a, err := d.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(4*2*3), a.Size)
	require.Zero(t, a.FrameID)
	b, err := d.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(1), b.FrameID)
	require.Equal(t, uint(2), d.Outstanding())

	// no free buffers: the acquisition keeps waiting and counts underruns
	timeoutCtx, cancelFn := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancelFn()
	_, err = d.Acquire(timeoutCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotZero(t, d.Underruns.Load())

	require.NoError(t, d.Return(a.Data))
	var errForeign capture.ErrForeignBuffer
	require.True(t, errors.As(d.Return(a.Data), &errForeign))
	require.True(t, errors.As(d.Return(make([]byte, 24)), &errForeign))

	c, err := d.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, &a.Data[0], &c.Data[0])
	require.Equal(t, uint64(3), d.Captured.Load())
	require.Equal(t, uint64(1), d.Returned.Load())

	require.NoError(t, d.Return(b.Data))
	require.NoError(t, d.Return(c.Data))
	require.Zero(t, d.Outstanding())
	require.NoError(t, d.Stop(ctx))
}

func TestDriverSettings(t *testing.T) {
	ctx := context.Background()
	d := New(Config{})
	info := d.SensorInfo()
	require.Equal(t, uint32(DefaultWidth), info.Width)
	require.Equal(t, frame.FormatRGB888, info.Format)

	var errInvalid types.ErrInvalidParam
	require.True(t, errors.As(d.SetFPS(ctx, 0), &errInvalid))
	require.NoError(t, d.SetFPS(ctx, 60))
	require.Equal(t, uint32(60), d.SensorInfo().FPS)

	require.NoError(t, d.Start(ctx))
	buf, err := d.Acquire(ctx)
	require.NoError(t, err)
	var errBusy types.ErrBusy
	require.True(t, errors.As(d.SetResolution(ctx, 8, 8), &errBusy))
	require.NoError(t, d.Return(buf.Data))
	require.NoError(t, d.SetResolution(ctx, 8, 8))

	buf, err = d.Acquire(ctx)
	require.NoError(t, err)
	require.Len(t, buf.Data, 8*8*3)
	require.NoError(t, d.Return(buf.Data))
}
