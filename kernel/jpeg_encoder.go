package kernel

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"time"

	"go.uber.org/atomic"

	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/kernel/imageprocessor"
	"github.com/xaionaro-go/vpipeline/node"
	"github.com/xaionaro-go/vpipeline/types"
)

const (
	DefaultJPEGQuality = 80
)

// EncoderParams is filled by CommandEncoderGetParam.
type EncoderParams struct {
	Encoding      bool
	Quality       uint32
	FramesEncoded uint64
	BytesEncoded  uint64
	Errors        uint64
	AvgEncodeTime time.Duration
}

// JPEGEncoder encodes RGB888 frames into MJPEG frames.
type JPEGEncoder struct {
	Quality atomic.Uint32

	encoding atomic.Bool

	FramesEncoded atomic.Uint64
	BytesEncoded  atomic.Uint64
	Errors        atomic.Uint64
	AvgEncodeTime atomic.Duration
}

var _ node.Kernel = (*JPEGEncoder)(nil)

func NewJPEGEncoder(quality uint32) *JPEGEncoder {
	e := &JPEGEncoder{}
	if quality == 0 {
		quality = DefaultJPEGQuality
	}
	e.Quality.Store(min(quality, 100))
	return e
}

func (e *JPEGEncoder) String() string {
	return fmt.Sprintf("JPEGEncoder(q%d)", e.Quality.Load())
}

func (e *JPEGEncoder) Init(ctx context.Context, n *node.Node) error {
	e.encoding.Store(true)
	return nil
}

func (e *JPEGEncoder) Deinit(ctx context.Context, n *node.Node) error {
	e.encoding.Store(false)
	return nil
}

func (e *JPEGEncoder) Process(
	ctx context.Context,
	n *node.Node,
	inputs []*frame.Frame,
	outputs []*frame.Frame,
) (int, error) {
	if !e.encoding.Load() {
		return 0, nil
	}
	count := 0
	for _, in := range inputs {
		if count >= len(outputs) {
			break
		}
		out, err := e.encode(in)
		if err != nil {
			e.Errors.Inc()
			frame.UnrefAll(ctx, outputs[:count]...)
			return 0, err
		}
		outputs[count] = out
		count++
	}
	return count, nil
}

func (e *JPEGEncoder) encode(in *frame.Frame) (*frame.Frame, error) {
	startTS := time.Now()
	img, err := imageprocessor.ToImage(in)
	if err != nil {
		return nil, err
	}
	quality := e.Quality.Load()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: int(quality)}); err != nil {
		return nil, fmt.Errorf("unable to encode frame #%d: %w", in.Sequence, err)
	}

	out, err := frame.New(&frame.Info{
		Width:     in.Width,
		Height:    in.Height,
		Format:    frame.FormatMJPEG,
		Timestamp: in.Timestamp,
		Sequence:  in.Sequence,
	}, buf.Bytes())
	if err != nil {
		return nil, err
	}
	out.Quality = quality
	out.IsKeyFrame = true

	e.FramesEncoded.Inc()
	e.BytesEncoded.Add(uint64(len(out.Data)))
	d := time.Since(startTS)
	if avg := e.AvgEncodeTime.Load(); avg != 0 {
		d = (avg*9 + d) / 10
	}
	e.AvgEncodeTime.Store(d)
	return out, nil
}

func (e *JPEGEncoder) Control(
	ctx context.Context,
	n *node.Node,
	cmd node.Command,
	param any,
) error {
	switch cmd {
	case CommandEncoderStart:
		e.encoding.Store(true)
		return nil
	case CommandEncoderStop:
		e.encoding.Store(false)
		return nil
	case CommandEncoderSetQuality:
		q, err := paramUint32(param)
		if err != nil {
			return err
		}
		if q < 1 || q > 100 {
			return types.ErrInvalidParam{Reason: fmt.Sprintf("quality %d is out of range [1, 100]", q)}
		}
		e.Quality.Store(q)
		return nil
	case CommandEncoderGetParam:
		params, ok := param.(*EncoderParams)
		if !ok || params == nil {
			return types.ErrInvalidParam{Reason: fmt.Sprintf("expected a non-nil *EncoderParams, received %T", param)}
		}
		*params = EncoderParams{
			Encoding:      e.encoding.Load(),
			Quality:       e.Quality.Load(),
			FramesEncoded: e.FramesEncoded.Load(),
			BytesEncoded:  e.BytesEncoded.Load(),
			Errors:        e.Errors.Load(),
			AvgEncodeTime: e.AvgEncodeTime.Load(),
		}
		return nil
	default:
		return ErrUnsupportedCommand{Command: cmd}
	}
}
