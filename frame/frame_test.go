package frame

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xaionaro-go/vpipeline/types"
)

func TestNewZeroCopy(t *testing.T) {
	buf := make([]byte, 64)
	info := &Info{Width: 4, Height: 4, Format: FormatRGB888, Stride: 12}

	var released [][]byte
	f, err := NewZeroCopy(info, buf, 48, func(b []byte) {
		released = append(released, b)
	})
	require.NoError(t, err)
	require.True(t, f.IsZeroCopy())
	require.Equal(t, uint32(1), f.RefCount())
	require.Equal(t, uint32(48), f.Size)
	require.True(t, f.IsKeyFrame)
	require.Equal(t, uint32(DefaultQuality), f.Quality)
	require.Len(t, f.Data, 48)

	f.Data[0] = 42
	require.Equal(t, byte(42), buf[0], "data must alias the hardware buffer")

	require.Equal(t, uint32(2), f.Ref())
	cnt, err := f.Unref()
	require.NoError(t, err)
	require.Equal(t, uint32(1), cnt)
	require.Empty(t, released)

	cnt, err = f.Unref()
	require.NoError(t, err)
	require.Zero(t, cnt)
	require.Len(t, released, 1)
	require.Equal(t, &buf[0], &released[0][0])

	_, err = f.Unref()
	var errDouble ErrDoubleRelease
	require.True(t, errors.As(err, &errDouble))
	require.Len(t, released, 1)
}

func TestNewZeroCopyInvalid(t *testing.T) {
	var errInvalid types.ErrInvalidParam

	_, err := NewZeroCopy(nil, make([]byte, 1), 1, nil)
	require.True(t, errors.As(err, &errInvalid))

	_, err = NewZeroCopy(&Info{}, nil, 0, nil)
	require.True(t, errors.As(err, &errInvalid))

	_, err = NewZeroCopy(&Info{}, make([]byte, 1), 2, nil)
	require.True(t, errors.As(err, &errInvalid))
}

func TestNilFrame(t *testing.T) {
	var f *Frame
	require.Zero(t, f.Ref())
	cnt, err := f.Unref()
	require.NoError(t, err)
	require.Zero(t, cnt)
	require.False(t, f.IsZeroCopy())
}

func TestOwnedFrame(t *testing.T) {
	f, err := NewAllocated(&Info{Width: 2, Height: 2, Format: FormatYUV420})
	require.NoError(t, err)
	require.Len(t, f.Data, 6)
	require.False(t, f.IsZeroCopy())

	freed := 0
	f.Storage().(*OwnedStorage).OnFree = func([]byte) { freed++ }
	_, err = f.Unref()
	require.NoError(t, err)
	require.Equal(t, 1, freed)

	_, err = NewAllocated(&Info{Format: FormatMJPEG})
	require.Error(t, err)
}

func TestConcurrentRefUnref(t *testing.T) {
	var releases int
	var mu sync.Mutex
	f, err := NewZeroCopy(&Info{}, make([]byte, 16), 16, func([]byte) {
		mu.Lock()
		defer mu.Unlock()
		releases++
	})
	require.NoError(t, err)

	const holders = 64
	for range holders {
		f.Ref()
	}

	var wg sync.WaitGroup
	for range holders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Unref()
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Zero(t, releases)
	require.Equal(t, uint32(1), f.RefCount())

	require.NoError(t, UnrefAll(context.Background(), f, nil))
	require.Equal(t, 1, releases)
	require.True(t, f.Storage().(*ZeroCopyStorage).IsReturned())
}

func TestFormat(t *testing.T) {
	require.Equal(t, "NV12", FormatNV12.String())
	require.Equal(t, uint32(3), FormatRGB888.BytesPerPixel())
	require.Zero(t, FormatYUV420.BytesPerPixel())
	require.True(t, FormatH264.IsCompressed())
	require.Equal(t, uint32(8), FormatRGB565.FrameSize(2, 2))
}
