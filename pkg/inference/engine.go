package inference

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-faceoverlay/internal/log"
	"github.com/teslashibe/go-faceoverlay/pkg/frame"
)

// Stats are engine counters.
type Stats struct {
	Service   Service `json:"service"`
	Submitted uint64  `json:"submitted"`
	Completed uint64  `json:"completed"`
	Failed    uint64  `json:"failed"`
	Dropped   uint64  `json:"dropped"`
	LastError string  `json:"last_error,omitempty"`
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	closer io.Closer
	logger *slog.Logger
}

// WithCloser releases model resources when the engine closes.
func WithCloser(c io.Closer) EngineOption {
	return func(cfg *engineConfig) { cfg.closer = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(cfg *engineConfig) { cfg.logger = l }
}

// Engine runs a Model on one worker goroutine.
//
// Send hands the frame to the worker over an unbuffered channel, so a
// successful Send means the worker took it and at most one frame is in
// flight. Results holds one value; a newer result replaces one nobody
// has read yet.
type Engine[R any] struct {
	service Service
	model   Model[R]
	closer  io.Closer
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	in      chan *frame.Frame
	results chan R

	closeOnce sync.Once
	closeErr  error

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	mu      sync.Mutex
	lastErr error
}

// NewEngine starts an engine for the given service.
func NewEngine[R any](service Service, model Model[R], opts ...EngineOption) (*Engine[R], error) {
	if model == nil {
		return nil, WrapError(service, ErrNoModel)
	}

	cfg := engineConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.Component("inference." + string(service))
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine[R]{
		service: service,
		model:   model,
		closer:  cfg.closer,
		logger:  cfg.logger,
		ctx:     ctx,
		cancel:  cancel,
		in:      make(chan *frame.Frame),
		results: make(chan R, 1),
	}

	e.wg.Add(1)
	go e.worker()
	return e, nil
}

// Service returns the service name.
func (e *Engine[R]) Service() Service {
	return e.service
}

// Send submits a frame and returns once the worker accepted it.
func (e *Engine[R]) Send(ctx context.Context, f *frame.Frame) error {
	if f == nil || f.Image == nil {
		return WrapError(e.service, ErrEmptyFrame)
	}
	if e.ctx.Err() != nil {
		return WrapError(e.service, ErrClosed)
	}

	select {
	case e.in <- f:
		e.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return WrapError(e.service, ctx.Err())
	case <-e.ctx.Done():
		return WrapError(e.service, ErrClosed)
	}
}

// Results returns the single-consumer result channel. It is closed by Close.
func (e *Engine[R]) Results() <-chan R {
	return e.results
}

// Stats returns a snapshot of the engine counters.
func (e *Engine[R]) Stats() Stats {
	s := Stats{
		Service:   e.service,
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Dropped:   e.dropped.Load(),
	}
	e.mu.Lock()
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	e.mu.Unlock()
	return s
}

// Close cancels in-flight inference, waits for the worker and closes the
// results channel. It is safe to call more than once.
func (e *Engine[R]) Close() error {
	e.closeOnce.Do(func() {
		e.cancel()
		e.wg.Wait()
		close(e.results)
		if e.closer != nil {
			e.closeErr = e.closer.Close()
		}
	})
	return e.closeErr
}

func (e *Engine[R]) worker() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case f := <-e.in:
			r, err := e.model(e.ctx, f)
			if err != nil {
				if errors.Is(err, context.Canceled) && e.ctx.Err() != nil {
					return
				}
				e.failed.Add(1)
				e.mu.Lock()
				e.lastErr = err
				e.mu.Unlock()
				e.logger.Warn("inference failed, result skipped", "seq", f.Seq, "error", err)
				continue
			}
			e.completed.Add(1)
			e.deliver(r)
		}
	}
}

// deliver publishes r, replacing an unread older result.
func (e *Engine[R]) deliver(r R) {
	select {
	case e.results <- r:
		return
	default:
	}

	select {
	case <-e.results:
		e.dropped.Add(1)
	default:
	}

	select {
	case e.results <- r:
	default:
		e.dropped.Add(1)
	}
}
