// Package device captures frames from a local camera through OpenCV.
package device

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"

	"github.com/teslashibe/go-faceoverlay/internal/log"
	"github.com/teslashibe/go-faceoverlay/pkg/camera"
	"github.com/teslashibe/go-faceoverlay/pkg/capture"
	"gocv.io/x/gocv"
)

// maxEmptyReads is how many empty reads in a row end a file or stream.
const maxEmptyReads = 100

// emptyReads counts consecutive empty reads. A zero limit never ends.
type emptyReads struct {
	n, limit int
}

// endLimit returns the empty read limit for device: cameras, given by
// index, never end; files and URLs do.
func endLimit(device string) int {
	if _, err := strconv.Atoi(device); err == nil {
		return 0
	}
	return maxEmptyReads
}

// miss records an empty read and reports whether the stream has ended.
func (e *emptyReads) miss() bool {
	e.n++
	return e.limit > 0 && e.n >= e.limit
}

func (e *emptyReads) hit() {
	e.n = 0
}

// Source reads frames from a local camera, video file or stream URL
// through OpenCV.
type Source struct {
	device string
	logger *slog.Logger

	mu     sync.Mutex // Protects vc, mat and empty
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	empty  emptyReads
	closed bool

	sizeMu sync.RWMutex
	size   image.Point

	ready chan struct{}
}

// Open opens device (an index such as "0", a file path or a URL) and
// applies cfg as the capture request. It reads one frame to learn the
// negotiated size.
func Open(device string, cfg camera.Config) (*Source, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", capture.ErrUnavailable, device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", capture.ErrUnavailable, device)
	}

	s := &Source{
		device: device,
		logger: log.Component("capture.device").With("device", device),
		vc:     vc,
		mat:    gocv.NewMat(),
		empty:  emptyReads{limit: endLimit(device)},
		ready:  make(chan struct{}, 1),
	}
	s.apply(cfg)

	if _, err := s.Read(context.Background()); err != nil {
		// Fall back to what the driver claims until a frame arrives.
		s.setSize(image.Pt(int(vc.Get(gocv.VideoCaptureFrameWidth)), int(vc.Get(gocv.VideoCaptureFrameHeight))))
	}

	s.logger.Info("camera opened",
		"requested", fmt.Sprintf("%dx%d@%d", cfg.Width, cfg.Height, cfg.Framerate),
		"negotiated", s.VideoSize(),
	)
	return s, nil
}

// apply sends the capture request to the driver. Caller need not hold mu
// during construction.
func (s *Source) apply(cfg camera.Config) {
	if cfg.Width > 0 {
		s.vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		s.vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.Framerate > 0 {
		s.vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}
	if cfg.FacingMode == camera.FacingEnvironment {
		s.logger.Debug("facing mode is advisory for local devices", "facing_mode", cfg.FacingMode)
	}
}

// Reconfigure applies a new capture request. The new size is picked up on
// the next read and announced on Ready.
func (s *Source) Reconfigure(cfg camera.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return capture.ErrClosed
	}
	s.apply(cfg)
	return nil
}

// Read grabs the next frame from the device.
func (s *Source) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, capture.ErrClosed
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		if s.empty.miss() {
			return nil, fmt.Errorf("%w: %s after %d empty reads", capture.ErrEnded, s.device, s.empty.n)
		}
		return nil, capture.ErrNoFrame
	}
	s.empty.hit()

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	s.setSize(img.Bounds().Size())
	return img, nil
}

func (s *Source) setSize(size image.Point) {
	s.sizeMu.Lock()
	changed := size != s.size
	s.size = size
	s.sizeMu.Unlock()

	if changed && capture.IsReady(size) {
		s.logger.Info("video size negotiated", "width", size.X, "height", size.Y)
		capture.Notify(s.ready)
	}
}

// VideoSize returns the size of the most recent frame.
func (s *Source) VideoSize() image.Point {
	s.sizeMu.RLock()
	defer s.sizeMu.RUnlock()
	return s.size
}

// Ready returns the readiness signal channel.
func (s *Source) Ready() <-chan struct{} {
	return s.ready
}

// Close releases the device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.vc.Close()
}

var (
	_ capture.Source       = (*Source)(nil)
	_ capture.Reconfigurer = (*Source)(nil)
)
