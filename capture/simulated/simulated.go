// Package simulated provides a software capture.Driver producing test patterns.
package simulated

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"

	"github.com/xaionaro-go/vpipeline/capture"
	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/logger"
	"github.com/xaionaro-go/vpipeline/types"
)

const (
	DefaultBuffers = 4
	DefaultWidth   = 320
	DefaultHeight  = 240
	DefaultFPS     = 30
)

type Config struct {
	Name    string
	Buffers uint
	Width   uint32
	Height  uint32
	FPS     uint32
}

func (cfg Config) withDefaults() Config {
	if cfg.Name == "" {
		cfg.Name = "simulated"
	}
	if cfg.Buffers == 0 {
		cfg.Buffers = DefaultBuffers
	}
	if cfg.Width == 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height == 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.FPS == 0 {
		cfg.FPS = DefaultFPS
	}
	return cfg
}

type Driver struct {
	Locker xsync.Mutex

	Captured  atomic.Uint64
	Returned  atomic.Uint64
	Underruns atomic.Uint64

	// access only while holding Locker
	config      Config
	buffers     [][]byte
	outstanding []bool
	started     bool
	nextFrameID uint32
	nextCapture time.Time
}

var _ capture.Driver = (*Driver)(nil)

func New(cfg Config) *Driver {
	d := &Driver{}
	d.reallocate(cfg.withDefaults())
	return d
}

func (d *Driver) reallocate(cfg Config) {
	size := frame.FormatRGB888.FrameSize(cfg.Width, cfg.Height)
	d.config = cfg
	d.buffers = make([][]byte, cfg.Buffers)
	for idx := range d.buffers {
		d.buffers[idx] = make([]byte, size)
	}
	d.outstanding = make([]bool, cfg.Buffers)
}

func (d *Driver) Start(ctx context.Context) error {
	logger.Debugf(ctx, "Start")
	d.Locker.Do(ctx, func() {
		d.started = true
		d.nextCapture = time.Now()
	})
	return nil
}

func (d *Driver) Stop(ctx context.Context) error {
	logger.Debugf(ctx, "Stop")
	d.Locker.Do(ctx, func() {
		d.started = false
	})
	return nil
}

func (d *Driver) IsStarted(ctx context.Context) bool {
	return xsync.DoR1(ctx, &d.Locker, func() bool {
		return d.started
	})
}

// Acquire waits for the next capture slot (according to the FPS) and
// returns a filled buffer. If all the buffers are lent out at the capture
// time, the capture is lost (an underrun) and it waits for the next slot.
func (d *Driver) Acquire(ctx context.Context) (capture.Buffer, error) {
	lockCtx := xcontext.DetachDone(ctx)
	for {
		waitUntil, err := xsync.DoR2(lockCtx, &d.Locker, func() (time.Time, error) {
			if !d.started {
				return time.Time{}, capture.ErrNotStarted{}
			}
			return d.nextCapture, nil
		})
		if err != nil {
			return capture.Buffer{}, err
		}

		if delay := time.Until(waitUntil); delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return capture.Buffer{}, ctx.Err()
			case <-t.C:
			}
		}

		buf, ok, err := d.captureOnce(lockCtx)
		if err != nil {
			return capture.Buffer{}, err
		}
		if ok {
			return buf, nil
		}
	}
}

func (d *Driver) captureOnce(ctx context.Context) (_buf capture.Buffer, _ok bool, _err error) {
	d.Locker.Do(ctx, func() {
		if !d.started {
			_err = capture.ErrNotStarted{}
			return
		}
		d.nextCapture = d.nextCapture.Add(time.Second / time.Duration(d.config.FPS))
		if now := time.Now(); d.nextCapture.Before(now) {
			d.nextCapture = now
		}

		for idx, isOut := range d.outstanding {
			if isOut {
				continue
			}
			d.outstanding[idx] = true
			frameID := d.nextFrameID
			d.nextFrameID++
			fillPattern(d.buffers[idx], d.config.Width, d.config.Height, frameID)
			d.Captured.Inc()
			_buf = capture.Buffer{
				Data:      d.buffers[idx],
				Size:      uint32(len(d.buffers[idx])),
				FrameID:   frameID,
				Timestamp: time.Now(),
			}
			_ok = true
			return
		}

		d.Underruns.Inc()
	})
	return
}

// fillPattern draws diagonal color bars shifted by the frame ID.
func fillPattern(buf []byte, width, height, frameID uint32) {
	for y := range height {
		row := buf[y*width*3:]
		for x := range width {
			v := byte(x + y + frameID)
			row[x*3], row[x*3+1], row[x*3+2] = v, v*2, 255-v
		}
	}
}

func (d *Driver) Return(data []byte) error {
	if len(data) == 0 {
		return capture.ErrForeignBuffer{Reason: "empty buffer"}
	}
	return xsync.DoR1(context.Background(), &d.Locker, func() error {
		for idx, buf := range d.buffers {
			if &buf[0] != &data[0] {
				continue
			}
			if !d.outstanding[idx] {
				return capture.ErrForeignBuffer{Reason: fmt.Sprintf("buffer #%d was not lent out", idx)}
			}
			d.outstanding[idx] = false
			d.Returned.Inc()
			return nil
		}
		return capture.ErrForeignBuffer{Reason: "the buffer does not belong to the driver"}
	})
}

// Outstanding returns the amount of buffers lent out and not returned yet.
func (d *Driver) Outstanding() uint {
	return xsync.DoR1(context.Background(), &d.Locker, func() uint {
		var count uint
		for _, isOut := range d.outstanding {
			if isOut {
				count++
			}
		}
		return count
	})
}

// SetResolution reallocates the buffers; it is allowed only while no
// buffer is lent out.
func (d *Driver) SetResolution(ctx context.Context, width, height uint32) error {
	if width == 0 || height == 0 {
		return types.ErrInvalidParam{Reason: fmt.Sprintf("invalid resolution %dx%d", width, height)}
	}
	return xsync.DoR1(ctx, &d.Locker, func() error {
		for _, isOut := range d.outstanding {
			if isOut {
				return types.ErrBusy{Op: "change the resolution", Reason: "some buffers are still in use"}
			}
		}
		cfg := d.config
		cfg.Width, cfg.Height = width, height
		d.reallocate(cfg)
		return nil
	})
}

func (d *Driver) SetFPS(ctx context.Context, fps uint32) error {
	if fps == 0 {
		return types.ErrInvalidParam{Reason: "FPS must be positive"}
	}
	d.Locker.Do(ctx, func() {
		d.config.FPS = fps
	})
	return nil
}

func (d *Driver) SensorInfo() capture.SensorInfo {
	return xsync.DoR1(context.Background(), &d.Locker, func() capture.SensorInfo {
		return capture.SensorInfo{
			Name:   d.config.Name,
			Width:  d.config.Width,
			Height: d.config.Height,
			Format: frame.FormatRGB888,
			FPS:    d.config.FPS,
		}
	})
}
