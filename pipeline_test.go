package vpipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xaionaro-go/vpipeline/frame"
	"github.com/xaionaro-go/vpipeline/kernel"
	"github.com/xaionaro-go/vpipeline/node"
	"github.com/xaionaro-go/vpipeline/types"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(ctx context.Context, p *Pipeline, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []EventType
	for _, ev := range r.events {
		result = append(result, ev.Type)
	}
	return result
}

// releaseTracker counts the releases of every buffer by its first byte.
type releaseTracker struct {
	mu       sync.Mutex
	releases map[byte]int
}

func newReleaseTracker() *releaseTracker {
	return &releaseTracker{releases: map[byte]int{}}
}

func (t *releaseTracker) release(buf []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releases[buf[0]]++
}

func (t *releaseTracker) snapshot() map[byte]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := map[byte]int{}
	for k, v := range t.releases {
		result[k] = v
	}
	return result
}

// newCountingSource returns a kernel emitting `total` zero-copy frames
// as fast as possible.
func newCountingSource(total int, tracker *releaseTracker) *node.Funcs {
	var mu sync.Mutex
	emitted := 0
	return &node.Funcs{
		ProcessFunc: func(ctx context.Context, n *node.Node, inputs, outputs []*frame.Frame) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			if emitted >= total {
				return 0, nil
			}
			buf := []byte{byte(emitted), 0, 0}
			f, err := frame.NewZeroCopy(&frame.Info{
				Width:    1,
				Height:   1,
				Format:   frame.FormatRGB888,
				Sequence: uint32(emitted),
			}, buf, uint32(len(buf)), tracker.release)
			if err != nil {
				return 0, err
			}
			emitted++
			outputs[0] = f
			return 1, nil
		},
	}
}

func newTestNode(t *testing.T, name string, typ node.Type, k node.Kernel, opts ...node.Option) *node.Node {
	n, err := node.New(context.Background(), name, typ, k, opts...)
	require.NoError(t, err)
	return n
}

func TestPipelineEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	const total = 10
	tracker := newReleaseTracker()
	events := &eventRecorder{}
	allocator := node.NewPoolStackAllocator(3)

	registry := NewRegistry(RegistryConfig{})
	p, err := registry.CreatePipeline(ctx, Config{
		Name:           "e2e",
		StackAllocator: allocator,
		OnEvent:        events.handle,
	})
	require.NoError(t, err)

	sink := kernel.NewSink(nil)
	sink.Delay.Store(20 * time.Millisecond)

	srcID, err := p.RegisterNode(ctx, newTestNode(t, "source", node.TypeSource, newCountingSource(total, tracker), node.OptionQueueSize(2)))
	require.NoError(t, err)
	ptID, err := p.RegisterNode(ctx, newTestNode(t, "passthrough", node.TypeFilter, kernel.Passthrough{}, node.OptionQueueSize(2)))
	require.NoError(t, err)
	sinkID, err := p.RegisterNode(ctx, newTestNode(t, "sink", node.TypeSink, sink, node.OptionQueueSize(2)))
	require.NoError(t, err)

	_, err = p.ConnectNodes(ctx, srcID, 0, ptID, 0)
	require.NoError(t, err)
	_, err = p.ConnectNodes(ctx, ptID, 0, sinkID, 0)
	require.NoError(t, err)

	require.NoError(t, p.Start(ctx))
	require.True(t, p.IsRunning())
	require.Equal(t, uint64(3), allocator.InUse())

	dropped := func() uint64 {
		var result uint64
		for _, n := range p.GetStatistics(ctx).Nodes {
			result += n.FramesDropped
		}
		return result
	}
	require.Eventually(t, func() bool {
		return sink.Received.Load()+dropped() == total
	}, 5*time.Second, time.Millisecond)
	require.NotZero(t, dropped())

	stats := p.GetStatistics(ctx)
	require.Len(t, stats.Nodes, 3)
	require.Len(t, stats.Connections, 2)
	require.Equal(t, uint64(total), stats.Nodes[0].FramesProcessed)
	require.Equal(t, stats.Nodes[2].FramesProcessed, stats.TotalFrames)
	var overruns uint64
	for _, c := range stats.Connections {
		overruns += c.Overruns
	}
	require.Equal(t, dropped(), overruns)

	require.NoError(t, p.Stop(ctx))
	require.Equal(t, node.StateIdle, p.State())
	require.Zero(t, allocator.InUse())
	require.Len(t, tracker.snapshot(), total)

	require.NoError(t, p.Destroy(ctx))
	for seq, count := range tracker.snapshot() {
		require.Equal(t, 1, count, "frame #%d", seq)
	}
	require.Empty(t, registry.Pipelines(ctx))

	require.Equal(t, []EventType{
		EventTypeNodeAdded, EventTypeNodeAdded, EventTypeNodeAdded,
		EventTypeConnected, EventTypeConnected,
		EventTypeStarted,
		EventTypeStopped,
	}, events.types())
}

func TestPipelineMutationsWhileRunning(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	registry := NewRegistry(RegistryConfig{})
	defer registry.Close(ctx)
	allocator := node.NewPoolStackAllocator(4)
	p, err := registry.CreatePipeline(ctx, Config{Name: "busy", StackAllocator: allocator})
	require.NoError(t, err)

	aID, err := p.RegisterNode(ctx, newTestNode(t, "a", node.TypeSource, &node.Funcs{}))
	require.NoError(t, err)
	bID, err := p.RegisterNode(ctx, newTestNode(t, "b", node.TypeSink, &node.Funcs{}))
	require.NoError(t, err)

	var errNotFound types.ErrNotFound
	_, err = p.ConnectNodes(ctx, aID, 0, 42, 0)
	require.True(t, errors.As(err, &errNotFound))
	var errInvalid types.ErrInvalidParam
	_, err = p.ConnectNodes(ctx, aID, node.MaxOutputs, bID, 0)
	require.True(t, errors.As(err, &errInvalid))
	_, err = p.ConnectNodes(ctx, aID, 0, bID, node.MaxInputs)
	require.True(t, errors.As(err, &errInvalid))
	connID, err := p.ConnectNodes(ctx, aID, 0, bID, 0)
	require.NoError(t, err)

	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Start(ctx))
	require.Equal(t, uint64(2), allocator.InUse())

	var errBusy types.ErrBusy
	_, err = p.RegisterNode(ctx, newTestNode(t, "c", node.TypeSink, &node.Funcs{}))
	require.True(t, errors.As(err, &errBusy))
	_, err = p.ConnectNodes(ctx, aID, 0, bID, 1)
	require.True(t, errors.As(err, &errBusy))
	require.True(t, errors.As(p.DisconnectNodes(ctx, connID), &errBusy))

	require.NoError(t, p.Pause(ctx))
	require.Equal(t, node.StatePaused, p.State())
	require.True(t, p.IsRunning())
	require.NoError(t, p.Resume(ctx))
	require.Equal(t, node.StateRunning, p.State())

	require.NoError(t, p.Stop(ctx))
	require.NoError(t, p.Stop(ctx))
	require.True(t, errors.As(p.Pause(ctx), &errBusy))
	require.Zero(t, p.Runtime())

	require.NoError(t, p.DisconnectNodes(ctx, connID))
	require.True(t, errors.As(p.DisconnectNodes(ctx, connID), &errNotFound))
	require.Empty(t, p.Connections())
}

func TestPipelineStopForcedTermination(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	events := &eventRecorder{}
	allocator := node.NewPoolStackAllocator(3)
	registry := NewRegistry(RegistryConfig{})
	defer registry.Close(ctx)
	p, err := registry.CreatePipeline(ctx, Config{
		Name:           "forced",
		StopTimeout:    20 * time.Millisecond,
		StackAllocator: allocator,
		OnEvent:        events.handle,
	})
	require.NoError(t, err)

	unblock := make(chan struct{})
	defer close(unblock)
	entered := make(chan struct{})
	var enteredOnce sync.Once
	hung := newTestNode(t, "hung", node.TypeSource, &node.Funcs{
		ProcessFunc: func(ctx context.Context, n *node.Node, inputs, outputs []*frame.Frame) (int, error) {
			enteredOnce.Do(func() { close(entered) })
			<-unblock // ignores ctx on purpose
			return 0, nil
		},
	})
	_, err = p.RegisterNode(ctx, hung)
	require.NoError(t, err)
	healthy := []*node.Node{
		newTestNode(t, "healthy-source", node.TypeSource, &node.Funcs{}),
		newTestNode(t, "healthy-sink", node.TypeSink, &node.Funcs{}),
	}
	for _, n := range healthy {
		_, err = p.RegisterNode(ctx, n)
		require.NoError(t, err)
	}

	require.NoError(t, p.Start(ctx))
	require.Equal(t, uint64(3), allocator.InUse())
	<-entered

	err = p.Stop(ctx)
	require.Error(t, err)
	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok)
	require.Len(t, joined.Unwrap(), 1)
	var errForced types.ErrForcedTermination
	require.True(t, errors.As(err, &errForced))
	require.Equal(t, "hung", errForced.Node)
	require.NotContains(t, err.Error(), "healthy")

	require.Equal(t, node.StateError, hung.State())
	for _, n := range healthy {
		require.Equal(t, node.StateIdle, n.State(), n.String())
		require.False(t, n.HasWorker(ctx), n.String())
	}
	require.Zero(t, allocator.InUse())
	require.Equal(t, node.StateIdle, p.State())

	require.Equal(t, []EventType{
		EventTypeNodeAdded, EventTypeNodeAdded, EventTypeNodeAdded,
		EventTypeStarted,
		EventTypeStopped, EventTypeError,
	}, events.types())
}

func TestPipelineUnregisterNode(t *testing.T) {
	ctx := context.Background()
	events := &eventRecorder{}
	registry := NewRegistry(RegistryConfig{})
	defer registry.Close(ctx)
	p, err := registry.CreatePipeline(ctx, Config{OnEvent: events.handle, MaxNodes: 2})
	require.NoError(t, err)

	deinits := 0
	a := newTestNode(t, "a", node.TypeSource, &node.Funcs{})
	b := newTestNode(t, "b", node.TypeSink, &node.Funcs{
		DeinitFunc: func(ctx context.Context, n *node.Node) error {
			deinits++
			return nil
		},
	})
	aID, err := p.RegisterNode(ctx, a)
	require.NoError(t, err)
	bID, err := p.RegisterNode(ctx, b)
	require.NoError(t, err)
	require.Equal(t, node.StateReady, b.State())

	var errNoMemory types.ErrNoMemory
	_, err = p.RegisterNode(ctx, newTestNode(t, "c", node.TypeSink, &node.Funcs{}))
	require.True(t, errors.As(err, &errNoMemory))

	var errBusy types.ErrBusy
	p2, err := registry.CreatePipeline(ctx, Config{})
	require.NoError(t, err)
	_, err = p2.RegisterNode(ctx, a)
	require.True(t, errors.As(err, &errBusy))

	_, err = p.ConnectNodes(ctx, aID, 0, bID, 0)
	require.NoError(t, err)

	found, err := p.FindNode(ctx, "b")
	require.NoError(t, err)
	require.Same(t, b, found)
	found, err = p.GetNode(ctx, aID)
	require.NoError(t, err)
	require.Same(t, a, found)

	require.NoError(t, p.UnregisterNode(ctx, b))
	require.Equal(t, 1, deinits)
	require.Empty(t, p.Connections())
	require.Nil(t, b.Owner())
	var errNotFound types.ErrNotFound
	require.True(t, errors.As(p.UnregisterNode(ctx, b), &errNotFound))
	_, err = p.FindNode(ctx, "b")
	require.True(t, errors.As(err, &errNotFound))

	_, err = p2.RegisterNode(ctx, b)
	require.NoError(t, err)

	require.Equal(t, []EventType{
		EventTypeNodeAdded, EventTypeNodeAdded,
		EventTypeConnected,
		EventTypeDisconnected, EventTypeNodeRemoved,
	}, events.types())
}

func TestPipelineInitFailure(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(RegistryConfig{})
	defer registry.Close(ctx)
	p, err := registry.CreatePipeline(ctx, Config{})
	require.NoError(t, err)

	initErr := errors.New("no device")
	n := newTestNode(t, "cam", node.TypeSource, &node.Funcs{
		InitFunc: func(ctx context.Context, n *node.Node) error {
			return initErr
		},
	})
	_, err = p.RegisterNode(ctx, n)
	var errCallback types.ErrCallback
	require.True(t, errors.As(err, &errCallback))
	require.ErrorIs(t, err, initErr)
	require.Nil(t, n.Owner())
	require.Empty(t, p.Nodes(ctx))
}

func TestPipelineStartFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	events := &eventRecorder{}

	registry := NewRegistry(RegistryConfig{})
	defer registry.Close(ctx)
	p, err := registry.CreatePipeline(ctx, Config{
		OnEvent:        events.handle,
		StackAllocator: node.NewPoolStackAllocator(1),
	})
	require.NoError(t, err)

	_, err = p.RegisterNode(ctx, newTestNode(t, "a", node.TypeSource, &node.Funcs{}))
	require.NoError(t, err)
	_, err = p.RegisterNode(ctx, newTestNode(t, "b", node.TypeSink, &node.Funcs{}))
	require.NoError(t, err)

	err = p.Start(ctx)
	var errNoMemory types.ErrNoMemory
	require.True(t, errors.As(err, &errNoMemory))
	require.Equal(t, node.StateError, p.State())

	require.NoError(t, p.Stop(ctx))
	require.Equal(t, node.StateIdle, p.State())
	require.Contains(t, events.types(), EventTypeError)
}

func TestRegistry(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	registry := NewRegistry(RegistryConfig{MaxPipelines: 2})
	p1, err := registry.CreatePipeline(ctx, Config{Name: "one"})
	require.NoError(t, err)
	p2, err := registry.CreatePipeline(ctx, Config{Name: "two"})
	require.NoError(t, err)
	require.NotEqual(t, p1.ID(), p2.ID())

	var errNoMemory types.ErrNoMemory
	_, err = registry.CreatePipeline(ctx, Config{})
	require.True(t, errors.As(err, &errNoMemory))

	var errInvalid types.ErrInvalidParam
	_, err = registry.CreatePipeline(ctx, Config{StopTimeout: -time.Second})
	require.True(t, errors.As(err, &errInvalid))

	require.NoError(t, p1.Destroy(ctx))
	require.NoError(t, p1.Destroy(ctx))
	var errNotInitialized types.ErrNotInitialized
	require.True(t, errors.As(p1.Start(ctx), &errNotInitialized))
	require.Empty(t, p1.GetStatistics(ctx).Nodes)

	_, err = p2.RegisterNode(ctx, newTestNode(t, "src", node.TypeSource, &node.Funcs{}))
	require.NoError(t, err)
	require.NoError(t, p2.Start(ctx))

	stats := registry.GetStatistics(ctx)
	require.Len(t, stats.Pipelines, 1)
	require.Equal(t, "two", stats.Pipelines[0].Name)
	require.Equal(t, node.StateRunning, stats.Pipelines[0].State)

	var buf bytes.Buffer
	require.NoError(t, WriteStatus(&buf, stats))
	require.Contains(t, buf.String(), "pipeline #2 'two': running")
	require.Contains(t, buf.String(), "node #1 'src' (source)")

	require.NoError(t, registry.Close(ctx))
	require.False(t, p2.IsRunning())
	_, err = registry.CreatePipeline(ctx, Config{})
	require.True(t, errors.As(err, &errNotInitialized))

	buf.Reset()
	require.NoError(t, WriteStatus(&buf, registry.GetStatistics(ctx)))
	require.Equal(t, "no pipelines\n", buf.String())
}

func TestPipelineFrameIO(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(RegistryConfig{})
	defer registry.Close(ctx)
	p, err := registry.CreatePipeline(ctx, Config{})
	require.NoError(t, err)
	_, err = p.RegisterNode(ctx, newTestNode(t, "in", node.TypeSource, &node.Funcs{}, node.OptionQueueSize(1)))
	require.NoError(t, err)

	f1, err := frame.NewAllocated(&frame.Info{Width: 1, Height: 1, Format: frame.FormatRGB888})
	require.NoError(t, err)
	f2, err := frame.NewAllocated(&frame.Info{Width: 1, Height: 1, Format: frame.FormatRGB888})
	require.NoError(t, err)

	require.NoError(t, p.PushFrame(ctx, "in", f1))
	var errTimeout types.ErrTimeout
	require.True(t, errors.As(p.PushFrame(ctx, "in", f2), &errTimeout))
	var errNotFound types.ErrNotFound
	require.True(t, errors.As(p.PushFrame(ctx, "nope", f2), &errNotFound))

	got, err := p.PullFrame(ctx, "in")
	require.NoError(t, err)
	require.Same(t, f1, got)
	_, err = p.PullFrame(ctx, "in")
	require.True(t, errors.As(err, &errTimeout))
}
