// Package app wires the capture source, the inference engines, the
// renderers, the frame pump and the web server into one process and owns
// their lifecycle.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-faceoverlay/internal/config"
	"github.com/teslashibe/go-faceoverlay/internal/log"
	"github.com/teslashibe/go-faceoverlay/pkg/camera"
	"github.com/teslashibe/go-faceoverlay/pkg/capture"
	"github.com/teslashibe/go-faceoverlay/pkg/frame"
	"github.com/teslashibe/go-faceoverlay/pkg/inference"
	"github.com/teslashibe/go-faceoverlay/pkg/pump"
	"github.com/teslashibe/go-faceoverlay/pkg/render"
	"github.com/teslashibe/go-faceoverlay/pkg/web"
	"golang.org/x/sync/errgroup"
)

// ErrNoBackend is returned when the configured source or engine has no
// factory registered.
var ErrNoBackend = errors.New("app: backend not available")

// SourceFactory opens the capture source.
type SourceFactory func(ctx context.Context, cfg config.Config, cam camera.Config) (capture.Source, error)

// Models are the two opaque models the engines run, plus anything that
// must be closed after the engines stop.
type Models struct {
	Mesh      inference.Model[inference.MeshResults]
	Detection inference.Model[inference.DetectionResults]
	Closers   []io.Closer
}

// ModelFactory builds the models for the configured engine.
type ModelFactory func(ctx context.Context, cfg config.Config, mesh inference.MeshOptions, det inference.DetectionOptions) (Models, error)

// Option configures an App.
type Option func(*App)

// WithSource registers the factory for a capture source kind
// (config.SourceDevice, config.SourceWebRTC).
func WithSource(kind string, f SourceFactory) Option {
	return func(a *App) { a.sources[kind] = f }
}

// WithModels registers the factory for an engine kind (config.EngineYuNet,
// config.EngineRemote).
func WithModels(kind string, f ModelFactory) Option {
	return func(a *App) { a.models[kind] = f }
}

// WithoutWeb runs the pipeline without the web server, for headless
// recording.
func WithoutWeb() Option {
	return func(a *App) { a.headless = true }
}

// App is the face overlay application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config   config.Config
	session  string
	logger   *slog.Logger
	sources  map[string]SourceFactory
	models   map[string]ModelFactory
	headless bool

	camera       *camera.Manager
	source       capture.Source
	meshEngine   *inference.Engine[inference.MeshResults]
	detEngine    *inference.Engine[inference.DetectionResults]
	topology     render.Topology
	meshRenderer *render.MeshRenderer
	detRenderer  *render.DetectionRenderer
	pump         *pump.Pump
	web          *web.Server

	mu         sync.Mutex
	startedAt  time.Time
	sourceErr  error
	composites chan *image.RGBA

	ended   chan struct{} // closed when the capture source runs out
	endOnce sync.Once

	shutdownOnce sync.Once
}

// New creates a new application with the given configuration.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		config:  cfg,
		session: uuid.NewString(),
		sources: map[string]SourceFactory{
			config.SourceWebRTC: openWebRTC,
		},
		models: map[string]ModelFactory{
			config.EngineRemote: dialRemote,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = log.Component("app").With("session", a.session)
	return a, nil
}

// Session returns the id of this run.
func (a *App) Session() string {
	return a.session
}

// Init initializes all components.
// Call this after New() and before Run().
//
// A capture source that cannot be opened is logged and left out: the page
// is still served but the pump never starts. Engine failures are fatal.
func (a *App) Init(ctx context.Context) error {
	topology, err := render.ResolveTopology(a.config.MeshTopology)
	if err != nil {
		return fmt.Errorf("mesh topology: %w", err)
	}
	a.topology = topology

	cam := camera.DefaultConfig()
	if preset := camera.GetPreset(a.config.Preset); preset != nil {
		cam = *preset
	} else {
		a.logger.Warn("unknown camera preset, using default", "preset", a.config.Preset)
	}
	a.camera = camera.NewManager(cam)

	meshOpts := inference.DefaultMeshOptions()
	meshOpts.SelfieMode = a.config.SelfieMode
	detOpts := inference.DefaultDetectionOptions()
	detOpts.SelfieMode = a.config.SelfieMode

	if err := a.initEngines(ctx, meshOpts, detOpts); err != nil {
		return fmt.Errorf("engines: %w", err)
	}

	if !a.headless {
		a.web = web.NewServer(web.Config{
			Addr:       a.config.Addr(),
			Camera:     a.camera,
			Status:     func() any { return a.Status() },
			SelfieMode: a.config.SelfieMode,
		})
	}

	if err := a.initSource(ctx, cam); err != nil {
		a.mu.Lock()
		a.sourceErr = err
		a.mu.Unlock()
		a.logger.Error("📷 capture unavailable, overlay will not start", "source", a.config.Source, "error", err)
		return nil
	}

	a.initPipeline()
	return nil
}

func (a *App) initEngines(ctx context.Context, meshOpts inference.MeshOptions, detOpts inference.DetectionOptions) error {
	factory, ok := a.models[a.config.Engine]
	if !ok {
		return fmt.Errorf("%w: engine %q", ErrNoBackend, a.config.Engine)
	}
	models, err := factory(ctx, a.config, meshOpts, detOpts)
	if err != nil {
		return err
	}

	// The first engine closes the shared models once both have stopped.
	closer := &multiCloser{closers: models.Closers, remaining: 2}

	a.meshEngine, err = inference.NewEngine(inference.ServiceMesh, models.Mesh, inference.WithCloser(closer))
	if err != nil {
		closer.closeAll()
		return err
	}
	a.detEngine, err = inference.NewEngine(inference.ServiceDetection, models.Detection, inference.WithCloser(closer))
	if err != nil {
		a.meshEngine.Close()
		closer.closeAll()
		return err
	}
	a.logger.Info("🧠 inference ready", "engine", a.config.Engine)
	return nil
}

func (a *App) initSource(ctx context.Context, cam camera.Config) error {
	factory, ok := a.sources[a.config.Source]
	if !ok {
		return fmt.Errorf("%w: source %q", ErrNoBackend, a.config.Source)
	}
	src, err := factory(ctx, a.config, cam)
	if err != nil {
		return err
	}
	a.source = src

	a.camera.OnConfigChange = func(cfg camera.Config) error {
		r, ok := a.source.(capture.Reconfigurer)
		if !ok {
			a.logger.Warn("source does not support reconfiguration", "source", a.config.Source)
			return nil
		}
		return r.Reconfigure(cfg)
	}
	a.logger.Info("📷 capture opened", "source", a.config.Source, "size", src.VideoSize())
	return nil
}

func (a *App) initPipeline() {
	meshSurface := render.NewSurface(web.LayerMesh, a.source, nil)
	detSurface := render.NewSurface(web.LayerDetection, a.source, nil)
	meshSurface.OnUpdate(a.onSurface)
	detSurface.OnUpdate(a.onSurface)

	a.meshRenderer = render.NewMeshRenderer(meshSurface,
		render.WithTrail(a.config.MeshTrail),
		render.WithTopology(a.topology),
	)
	a.detRenderer = render.NewDetectionRenderer(detSurface)

	a.pump = pump.New(a.source, a.meshEngine, a.detEngine, pump.WithTap(a.publishVideo))
	a.ended = make(chan struct{})
}

// captureEnded records that the source stopped producing frames. The page
// keeps serving the last layers.
func (a *App) captureEnded(err error) {
	a.mu.Lock()
	a.sourceErr = err
	a.mu.Unlock()
	a.endOnce.Do(func() { close(a.ended) })
	a.logger.Warn("📷 capture ended, overlay stopped", "error", err)
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.startedAt = time.Now()
	a.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	if a.web != nil {
		g.Go(func() error { return a.web.Run(ctx) })
	}
	if a.pump != nil {
		g.Go(func() error { return a.meshRenderer.Run(ctx, a.meshEngine.Results()) })
		g.Go(func() error { return a.detRenderer.Run(ctx, a.detEngine.Results()) })
		g.Go(func() error {
			err := a.pump.Run(ctx)
			if errors.Is(err, pump.ErrSourceEnded) {
				a.captureEnded(err)
				return nil
			}
			return err
		})
	}

	a.logger.Info("✨ overlay running", "addr", a.config.Addr(), "source", a.config.Source, "engine", a.config.Engine)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown stops the pump, closes the engines and the source and stops the
// web server. Safe to call more than once.
func (a *App) Shutdown() error {
	var errs []error
	a.shutdownOnce.Do(func() {
		if a.pump != nil {
			a.pump.Stop()
		}
		if a.meshEngine != nil {
			errs = append(errs, a.meshEngine.Close())
		}
		if a.detEngine != nil {
			errs = append(errs, a.detEngine.Close())
		}
		if a.source != nil {
			errs = append(errs, a.source.Close())
		}
		if a.web != nil {
			errs = append(errs, a.web.Shutdown())
		}
		a.logger.Info("👋 stopped")
	})
	return errors.Join(errs...)
}

// publishVideo streams the frame being dispatched as the video layer.
func (a *App) publishVideo(f *frame.Frame) {
	if a.web == nil || a.web.Hub(web.LayerVideo).ClientCount() == 0 {
		return
	}
	data, err := f.JPEG(a.config.StreamQuality)
	if err != nil {
		a.logger.Warn("video frame encode failed", "seq", f.Seq, "error", err)
		return
	}
	a.web.Publish(web.LayerVideo, data)
}

var pngEncoder = png.Encoder{CompressionLevel: png.BestSpeed}

// onSurface publishes a rendered overlay and feeds the recorder.
func (a *App) onSurface(name string, img *image.RGBA) {
	if name == web.LayerMesh {
		a.mu.Lock()
		ch := a.composites
		a.mu.Unlock()
		if ch != nil {
			composite := render.Composite(a.detRenderer.Surface().Snapshot(), img)
			select {
			case ch <- composite:
			default:
			}
		}
	}

	if a.web == nil {
		return
	}
	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, img); err != nil {
		a.logger.Warn("overlay encode failed", "layer", name, "error", err)
		return
	}
	a.web.Publish(name, buf.Bytes())
}

// multiCloser closes its closers when Close has been called remaining times.
type multiCloser struct {
	mu        sync.Mutex
	closers   []io.Closer
	remaining int
}

func (m *multiCloser) Close() error {
	m.mu.Lock()
	m.remaining--
	last := m.remaining == 0
	m.mu.Unlock()
	if !last {
		return nil
	}
	return m.closeAll()
}

func (m *multiCloser) closeAll() error {
	var errs []error
	for _, c := range m.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
