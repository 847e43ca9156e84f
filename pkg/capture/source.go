// Package capture produces live video frames for the frame pump.
//
// A Source delivers images at the device's native rate and reports the
// currently negotiated video size, which may change after a device switch or
// a reconfiguration. A Trigger reads from a Source and hands every frame to a
// handler, one at a time.
package capture

import (
	"context"
	"errors"
	"image"

	"github.com/teslashibe/go-faceoverlay/pkg/camera"
)

// Sentinel errors for capture sources.
var (
	// ErrClosed is returned by Read after the source was closed.
	ErrClosed = errors.New("capture: source closed")

	// ErrNoFrame is returned when the device produced an empty read.
	// Callers may try again.
	ErrNoFrame = errors.New("capture: no frame")

	// ErrEnded is returned when a finite source, such as a video file, has
	// no more frames.
	ErrEnded = errors.New("capture: stream ended")

	// ErrUnavailable is returned when the device cannot be opened.
	ErrUnavailable = errors.New("capture: device unavailable")
)

// Display reports the current video dimensions. Renderers size their
// surfaces from it on every result.
type Display interface {
	VideoSize() image.Point
}

// Source is a live camera feed.
type Source interface {
	Display

	// Read blocks until the next frame is available.
	Read(ctx context.Context) (image.Image, error)

	// Ready delivers a signal whenever the source's readiness may have
	// changed (first frame, renegotiated size). Signals are coalesced.
	Ready() <-chan struct{}

	// Close releases the device. Read returns ErrClosed afterwards.
	Close() error
}

// Reconfigurer is implemented by sources that accept a new capture request
// at runtime.
type Reconfigurer interface {
	Reconfigure(cfg camera.Config) error
}

// IsReady reports whether a size has both dimensions non-zero.
func IsReady(size image.Point) bool {
	return size.X > 0 && size.Y > 0
}

// Notify does a coalescing, non-blocking send on a readiness channel.
func Notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
