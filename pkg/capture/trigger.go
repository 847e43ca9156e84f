package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-faceoverlay/internal/log"
	"github.com/teslashibe/go-faceoverlay/pkg/frame"
)

// FrameHandler is called once per captured frame. The trigger does not read
// the next frame until the handler returns.
type FrameHandler func(ctx context.Context, f *frame.Frame) error

// retryDelay is how long the trigger waits after an empty read.
const retryDelay = 10 * time.Millisecond

// Trigger drives a FrameHandler from a Source at the source's native rate.
// It stamps each frame with a monotonically increasing sequence id.
type Trigger struct {
	source  Source
	handler FrameHandler
	logger  *slog.Logger

	seq     atomic.Uint64
	started atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	ended chan struct{}
}

// NewTrigger creates a trigger. It does nothing until Start.
func NewTrigger(source Source, handler FrameHandler) *Trigger {
	return &Trigger{
		source:  source,
		handler: handler,
		logger:  log.Component("capture.trigger"),
		ended:   make(chan struct{}),
	}
}

// Ended is closed when the read loop stops on its own because the source
// ended, was closed or failed. It is not closed by Stop.
func (t *Trigger) Ended() <-chan struct{} {
	return t.ended
}

// Err returns why the read loop ended, once Ended is closed.
func (t *Trigger) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Trigger) end(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	close(t.ended)
}

// Start launches the read loop. Only the first call has any effect; it
// returns false when the trigger was already started.
func (t *Trigger) Start(ctx context.Context) bool {
	if !t.started.CompareAndSwap(false, true) {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		t.loop(ctx)
	}()
	return true
}

// Started reports whether Start has been called.
func (t *Trigger) Started() bool {
	return t.started.Load()
}

// Seq returns the sequence id of the most recent frame.
func (t *Trigger) Seq() uint64 {
	return t.seq.Load()
}

// Stop cancels the read loop and waits for the current handler to return.
func (t *Trigger) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Trigger) loop(ctx context.Context) {
	for {
		img, err := t.source.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return
			case errors.Is(err, ErrClosed), errors.Is(err, ErrEnded):
				t.logger.Info("source finished, trigger stopping", "reason", err)
				t.end(err)
				return
			case errors.Is(err, ErrNoFrame):
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryDelay):
				}
				continue
			default:
				t.logger.Warn("read failed, trigger stopping", "error", err)
				t.end(err)
				return
			}
		}

		f := frame.New(t.seq.Add(1), img)
		if err := t.handler(ctx, f); err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Debug("frame handler failed", "seq", f.Seq, "error", err)
		}
	}
}
