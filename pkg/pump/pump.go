// Package pump fans captured frames out to the inference services.
//
// The pump owns the camera trigger. It starts it the first time a
// readiness signal arrives while the source reports a non-zero video size,
// then hands every frame to the mesh service and the detection service,
// back to back, waiting only for each to accept the frame. Completion of
// inference never gates the next frame.
package pump

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-faceoverlay/internal/log"
	"github.com/teslashibe/go-faceoverlay/pkg/capture"
	"github.com/teslashibe/go-faceoverlay/pkg/frame"
	"github.com/teslashibe/go-faceoverlay/pkg/inference"
)

// TapFunc sees every frame before it is dispatched.
type TapFunc func(f *frame.Frame)

// Option configures a Pump.
type Option func(*Pump)

// WithTap registers fn to see every frame, for example to publish the
// video layer.
func WithTap(fn TapFunc) Option {
	return func(p *Pump) { p.tap = fn }
}

// WithLogger sets the pump logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pump) { p.logger = l }
}

// Pump dispatches frames from a source to the mesh and detection services.
type Pump struct {
	source    capture.Source
	mesh      inference.Submitter
	detection inference.Submitter
	trigger   *capture.Trigger
	tap       TapFunc
	logger    *slog.Logger

	cycles          atomic.Uint64
	meshSent        atomic.Uint64
	detectionSent   atomic.Uint64
	submitErrors    atomic.Uint64
	lastSeq         atomic.Uint64
	lastCycleMicros atomic.Int64

	mu        sync.Mutex
	startedAt time.Time
}

// New creates a pump. The camera trigger is built here but not started.
func New(source capture.Source, mesh, detection inference.Submitter, opts ...Option) *Pump {
	p := &Pump{
		source:    source,
		mesh:      mesh,
		detection: detection,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.Component("pump")
	}
	p.trigger = capture.NewTrigger(source, p.dispatch)
	return p
}

// OnReady handles one readiness signal. The trigger starts only if the
// source reports a non-zero size, and at most once. It reports whether this
// call started it.
func (p *Pump) OnReady(ctx context.Context) bool {
	size := p.source.VideoSize()
	if !capture.IsReady(size) {
		p.logger.Debug("ready signal ignored, no video size yet")
		return false
	}
	if !p.trigger.Start(ctx) {
		return false
	}

	p.mu.Lock()
	p.startedAt = time.Now()
	p.mu.Unlock()
	p.logger.Info("pump started", "width", size.X, "height", size.Y)
	return true
}

// ErrSourceEnded is returned by Run when the camera trigger stopped because
// the source ended or failed.
var ErrSourceEnded = errors.New("pump: capture ended")

// Run handles readiness signals until ctx is done, then stops the trigger.
// It returns ErrSourceEnded when the source runs out of frames first.
func (p *Pump) Run(ctx context.Context) error {
	defer p.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.source.Ready():
			p.OnReady(ctx)
		case <-p.trigger.Ended():
			err := p.trigger.Err()
			p.logger.Info("capture ended", "reason", err, "cycles", p.cycles.Load())
			return fmt.Errorf("%w: %w", ErrSourceEnded, err)
		}
	}
}

// Stop stops the camera trigger and waits for the current cycle. Pending
// submissions are cancelled through the context passed to OnReady.
func (p *Pump) Stop() {
	p.trigger.Stop()
}

// dispatch runs one pump cycle.
func (p *Pump) dispatch(ctx context.Context, f *frame.Frame) error {
	start := time.Now()
	if p.tap != nil {
		p.tap(f)
	}

	var errs []error
	if err := p.mesh.Send(ctx, f); err != nil {
		errs = append(errs, fmt.Errorf("mesh: %w", err))
	} else {
		p.meshSent.Add(1)
	}
	if err := p.detection.Send(ctx, f); err != nil {
		errs = append(errs, fmt.Errorf("detection: %w", err))
	} else {
		p.detectionSent.Add(1)
	}

	p.cycles.Add(1)
	p.lastSeq.Store(f.Seq)
	p.lastCycleMicros.Store(time.Since(start).Microseconds())

	if len(errs) > 0 {
		p.submitErrors.Add(uint64(len(errs)))
		return errors.Join(errs...)
	}
	return nil
}
