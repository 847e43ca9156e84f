package pump

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-faceoverlay/internal/log"
	"github.com/teslashibe/go-faceoverlay/pkg/capture"
	"github.com/teslashibe/go-faceoverlay/pkg/frame"
	"github.com/teslashibe/go-faceoverlay/pkg/inference"
	"github.com/teslashibe/go-faceoverlay/pkg/render"
)

func newRecorders() (*inference.SendLog, *inference.Recorder, *inference.Recorder) {
	sendLog := &inference.SendLog{}
	return sendLog,
		&inference.Recorder{Name: "mesh", Log: sendLog},
		&inference.Recorder{Name: "detection", Log: sendLog}
}

func TestOnReady_WaitsForSize(t *testing.T) {
	src := capture.NewMock(0, 0)
	src.Interval = time.Millisecond
	defer src.Close()

	_, mesh, det := newRecorders()
	p := New(src, mesh, det, WithLogger(log.Discard()))
	defer p.Stop()

	assert.False(t, p.OnReady(context.Background()), "0x0 source must not start the pump")
	assert.False(t, p.OnReady(context.Background()))
	assert.False(t, p.Started())

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, mesh.Frames())
	assert.Empty(t, det.Frames())

	src.SetSize(64, 48)
	assert.True(t, p.OnReady(context.Background()))
	assert.False(t, p.OnReady(context.Background()), "trigger starts at most once")
	assert.True(t, p.Started())

	require.Eventually(t, func() bool { return len(det.Frames()) > 0 }, time.Second, time.Millisecond)
}

func TestRun_StartsOnReadySignal(t *testing.T) {
	src := capture.NewMock(0, 0)
	src.Interval = time.Millisecond
	defer src.Close()

	_, mesh, det := newRecorders()
	p := New(src, mesh, det, WithLogger(log.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Readiness signals while the size is still 0x0 do nothing.
	src.Signal()
	time.Sleep(20 * time.Millisecond)
	src.Signal()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, p.Started())
	assert.Empty(t, mesh.Frames())

	src.SetSize(32, 32)
	require.Eventually(t, func() bool { return len(mesh.Frames()) >= 3 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRun_SourceEnded(t *testing.T) {
	src := capture.NewMock(32, 32)
	src.Limit = 5
	defer src.Close()

	_, mesh, det := newRecorders()
	p := New(src, mesh, det, WithLogger(log.Discard()))

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	src.Signal()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSourceEnded)
		assert.ErrorIs(t, err, capture.ErrEnded)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the source ended")
	}
	assert.Len(t, mesh.Frames(), 5)
	assert.Len(t, det.Frames(), 5)
}

func TestDispatch_BackToBackOrder(t *testing.T) {
	src := capture.NewMock(32, 32)
	src.Interval = time.Millisecond
	defer src.Close()

	sendLog, mesh, det := newRecorders()
	p := New(src, mesh, det, WithLogger(log.Discard()))
	require.True(t, p.OnReady(context.Background()))
	require.Eventually(t, func() bool { return p.Stats().Cycles >= 5 }, time.Second, time.Millisecond)
	p.Stop()

	entries := sendLog.Entries()
	require.Equal(t, 0, len(entries)%2, "every cycle sends to both services")
	for i := 0; i < len(entries); i += 2 {
		assert.Equal(t, "mesh", entries[i].Name)
		assert.Equal(t, "detection", entries[i+1].Name)
		assert.Equal(t, entries[i].Seq, entries[i+1].Seq, "both services get the same frame")
		if i > 0 {
			assert.Greater(t, entries[i].Seq, entries[i-1].Seq)
		}
	}

	stats := p.Stats()
	assert.Equal(t, stats.Cycles, stats.MeshSubmitted)
	assert.Equal(t, stats.Cycles, stats.DetectionSubmitted)
	assert.Zero(t, stats.SubmitErrors)
	assert.True(t, stats.Started)
}

func TestDispatch_RejectionNotRetried(t *testing.T) {
	src := capture.NewMock(32, 32)
	src.Interval = time.Millisecond
	defer src.Close()

	sendLog, mesh, det := newRecorders()
	mesh.Err = errors.New("busy")
	p := New(src, mesh, det, WithLogger(log.Discard()))
	require.True(t, p.OnReady(context.Background()))
	require.Eventually(t, func() bool { return p.Stats().Cycles >= 3 }, time.Second, time.Millisecond)
	p.Stop()

	meshCalls, detCalls := 0, 0
	for _, e := range sendLog.Entries() {
		if e.Name == "mesh" {
			meshCalls++
		} else {
			detCalls++
		}
	}
	stats := p.Stats()
	assert.Equal(t, int(stats.Cycles), meshCalls, "one attempt per cycle")
	assert.Equal(t, meshCalls, detCalls)
	assert.Equal(t, stats.Cycles, stats.SubmitErrors)
	assert.Zero(t, stats.MeshSubmitted)
	assert.Equal(t, stats.Cycles, stats.DetectionSubmitted)
}

func TestTap(t *testing.T) {
	src := capture.NewMock(16, 16)
	src.Interval = time.Millisecond
	defer src.Close()

	var tapped atomic.Uint64
	_, mesh, det := newRecorders()
	p := New(src, mesh, det, WithLogger(log.Discard()), WithTap(func(f *frame.Frame) {
		tapped.Store(f.Seq)
	}))
	require.True(t, p.OnReady(context.Background()))
	require.Eventually(t, func() bool { return tapped.Load() >= 2 }, time.Second, time.Millisecond)
	p.Stop()
}

func TestStop(t *testing.T) {
	src := capture.NewMock(16, 16)
	src.Interval = time.Millisecond
	defer src.Close()

	sendLog, mesh, det := newRecorders()
	p := New(src, mesh, det, WithLogger(log.Discard()))
	require.True(t, p.OnReady(context.Background()))
	require.Eventually(t, func() bool { return len(sendLog.Entries()) > 0 }, time.Second, time.Millisecond)

	p.Stop()
	n := len(sendLog.Entries())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(sendLog.Entries()))
}

// TestPipeline runs the pump against real engines and renderers.
func TestPipeline(t *testing.T) {
	src := capture.NewMock(80, 60)
	src.Interval = 2 * time.Millisecond
	defer src.Close()

	models := inference.NewMock()
	meshEngine, err := inference.NewEngine(inference.ServiceMesh, models.Mesh, inference.WithLogger(log.Discard()))
	require.NoError(t, err)
	detEngine, err := inference.NewEngine(inference.ServiceDetection, models.Detection, inference.WithLogger(log.Discard()))
	require.NoError(t, err)

	meshRenderer := render.NewMeshRenderer(render.NewSurface("mesh", src, nil), render.WithTopology(render.Topology{{From: 0, To: 1}, {From: 1, To: 2}, {From: 2, To: 3}, {From: 3, To: 0}}))
	detRenderer := render.NewDetectionRenderer(render.NewSurface("detection", src, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go meshRenderer.Run(ctx, meshEngine.Results())
	go detRenderer.Run(ctx, detEngine.Results())

	p := New(src, meshEngine, detEngine, WithLogger(log.Discard()))
	go p.Run(ctx)
	src.Signal()

	require.Eventually(t, func() bool {
		return meshRenderer.Surface().Stats().Rendered >= 3 && detRenderer.Surface().Stats().Rendered >= 3
	}, 2*time.Second, time.Millisecond)

	cancel()
	p.Stop()
	require.NoError(t, meshEngine.Close())
	require.NoError(t, detEngine.Close())

	meshStats := meshRenderer.Surface().Stats()
	assert.Equal(t, 80, meshStats.Size.X)
	assert.Equal(t, 60, meshStats.Size.Y)
	assert.NotZero(t, meshRenderer.Surface().Snapshot().RGBAAt(40, 15).A, "mock face edge is drawn")
}
