package app

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-faceoverlay/internal/config"
	"github.com/teslashibe/go-faceoverlay/pkg/camera"
	"github.com/teslashibe/go-faceoverlay/pkg/capture"
	"github.com/teslashibe/go-faceoverlay/pkg/inference"
	"github.com/teslashibe/go-faceoverlay/pkg/pump"
)

type countingCloser struct{ n atomic.Int32 }

func (c *countingCloser) Close() error {
	c.n.Add(1)
	return nil
}

// reconfigurable is a mock source that follows camera requests.
type reconfigurable struct {
	*capture.Mock

	mu      sync.Mutex
	applied []camera.Config
}

func (r *reconfigurable) Reconfigure(cfg camera.Config) error {
	r.mu.Lock()
	r.applied = append(r.applied, cfg)
	r.mu.Unlock()
	r.SetSize(cfg.Width, cfg.Height)
	return nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Port = "0"
	return cfg
}

func mockModels(closer *countingCloser) Option {
	return WithModels(config.EngineYuNet, func(context.Context, config.Config, inference.MeshOptions, inference.DetectionOptions) (Models, error) {
		m := inference.NewMock()
		return Models{Mesh: m.Mesh, Detection: m.Detection, Closers: []io.Closer{closer}}, nil
	})
}

func mockSource(src capture.Source) Option {
	return WithSource(config.SourceDevice, func(context.Context, config.Config, camera.Config) (capture.Source, error) {
		return src, nil
	})
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Source = "carrier-pigeon"
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNew_SessionID(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	b, err := New(testConfig())
	require.NoError(t, err)
	assert.Len(t, a.Session(), 36)
	assert.NotEqual(t, a.Session(), b.Session())
}

func TestInit_MissingEngine(t *testing.T) {
	a, err := New(testConfig(), WithoutWeb())
	require.NoError(t, err)
	err = a.Init(context.Background())
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestInit_SourceUnavailable(t *testing.T) {
	closer := &countingCloser{}
	a, err := New(testConfig(), WithoutWeb(), mockModels(closer),
		WithSource(config.SourceDevice, func(context.Context, config.Config, camera.Config) (capture.Source, error) {
			return nil, capture.ErrUnavailable
		}))
	require.NoError(t, err)

	require.NoError(t, a.Init(context.Background()), "a missing camera is not fatal")
	status := a.Status()
	assert.Contains(t, status.SourceError, "unavailable")
	assert.Nil(t, status.Pump)

	err = a.Record(context.Background(), 1, func(int, *image.RGBA) error { return nil })
	assert.ErrorIs(t, err, capture.ErrUnavailable)

	require.NoError(t, a.Shutdown())
	assert.Equal(t, int32(1), closer.n.Load())
}

func TestInit_BadMeshTopology(t *testing.T) {
	cfg := testConfig()
	cfg.MeshTopology = filepath.Join(t.TempDir(), "missing.json")
	a, err := New(cfg, WithoutWeb(), mockModels(&countingCloser{}), mockSource(capture.NewMock(8, 8)))
	require.NoError(t, err)
	assert.ErrorIs(t, a.Init(context.Background()), os.ErrNotExist)
}

func TestRecord(t *testing.T) {
	src := capture.NewMock(64, 48)
	src.Interval = 2 * time.Millisecond
	src.Signal()

	closer := &countingCloser{}
	a, err := New(testConfig(), WithoutWeb(), mockModels(closer), mockSource(src))
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))

	var got []image.Point
	err = a.Record(context.Background(), 3, func(i int, img *image.RGBA) error {
		assert.Equal(t, len(got), i)
		got = append(got, img.Rect.Size())
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, size := range got {
		assert.Equal(t, image.Pt(64, 48), size)
	}

	status := a.Status()
	require.NotNil(t, status.Pump)
	assert.True(t, status.Pump.Started)
	assert.NotZero(t, status.Pump.Cycles)
	assert.Len(t, status.Engines, 2)
	assert.Len(t, status.Surfaces, 2)

	require.NoError(t, a.Shutdown())
	require.NoError(t, a.Shutdown())
	assert.Equal(t, int32(1), closer.n.Load(), "shared models close once")
}

func TestRecord_SourceEnds(t *testing.T) {
	src := capture.NewMock(32, 32)
	src.Interval = time.Millisecond
	src.Limit = 3
	src.Signal()

	a, err := New(testConfig(), WithoutWeb(), mockModels(&countingCloser{}), mockSource(src))
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	defer a.Shutdown()

	done := make(chan error, 1)
	go func() {
		done <- a.Record(context.Background(), 50, func(int, *image.RGBA) error { return nil })
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, pump.ErrSourceEnded)
		assert.ErrorIs(t, err, capture.ErrEnded)
	case <-time.After(5 * time.Second):
		t.Fatal("Record did not return after the source ended")
	}
	assert.Contains(t, a.Status().SourceError, "ended")
	assert.Equal(t, 3, src.Reads())
}

func TestRecord_CallbackError(t *testing.T) {
	src := capture.NewMock(32, 32)
	src.Interval = time.Millisecond
	src.Signal()

	a, err := New(testConfig(), WithoutWeb(), mockModels(&countingCloser{}), mockSource(src))
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	defer a.Shutdown()

	boom := errors.New("disk full")
	err = a.Record(context.Background(), 5, func(int, *image.RGBA) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestRun_ServesAndStops(t *testing.T) {
	src := capture.NewMock(40, 30)
	src.Interval = 2 * time.Millisecond
	src.Signal()

	a, err := New(testConfig(), mockModels(&countingCloser{}), mockSource(src))
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	defer a.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		s := a.Status()
		return s.Pump != nil && s.Pump.Cycles > 2 && s.Surfaces[0].Rendered > 0
	}, 2*time.Second, time.Millisecond)

	status := a.Status()
	assert.Equal(t, 40, status.VideoWidth)
	assert.Len(t, status.Layers, 3)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestCameraReconfiguresSource(t *testing.T) {
	src := &reconfigurable{Mock: capture.NewMock(64, 48)}
	a, err := New(testConfig(), WithoutWeb(), mockModels(&countingCloser{}), mockSource(src))
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	defer a.Shutdown()

	require.NoError(t, a.camera.UpdateConfig(map[string]interface{}{"preset": camera.PresetVGA}))
	assert.Equal(t, image.Pt(640, 480), src.VideoSize())
	require.Len(t, src.applied, 1)
	assert.Equal(t, camera.VGAConfig(), src.applied[0])
}

func TestCameraWithoutReconfigure(t *testing.T) {
	src := capture.NewMock(64, 48)
	a, err := New(testConfig(), WithoutWeb(), mockModels(&countingCloser{}), mockSource(src))
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	defer a.Shutdown()

	require.NoError(t, a.camera.UpdateConfig(map[string]interface{}{"width": 320}))
	assert.Equal(t, 320, a.camera.GetConfig().Width)
	assert.Equal(t, image.Pt(64, 48), src.VideoSize(), "request stays advisory")
}
