package render

import (
	"image"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-faceoverlay/internal/log"
	"github.com/teslashibe/go-faceoverlay/pkg/canvas"
	"github.com/teslashibe/go-faceoverlay/pkg/capture"
)

// SurfaceStats are surface counters.
type SurfaceStats struct {
	Name     string      `json:"name"`
	Rendered uint64      `json:"rendered"`
	Stale    uint64      `json:"stale"`
	Skipped  uint64      `json:"skipped"`
	LastSeq  uint64      `json:"last_seq"`
	Size     image.Point `json:"size"`
}

// UpdateFunc receives a copy of the surface after every render.
type UpdateFunc func(name string, img *image.RGBA)

// Surface is one overlay layer. It owns a canvas and sizes it from the
// display on every render. Renders are serialized, and a result older than
// the newest one rendered is discarded.
type Surface struct {
	name    string
	display capture.Display
	logger  *slog.Logger

	mu       sync.Mutex
	canvas   canvas.Canvas
	onUpdate UpdateFunc
	lastSeq  uint64
	rendered uint64
	stale    uint64
	skipped  uint64
}

// NewSurface creates a surface drawing onto c. A nil canvas gets an empty
// canvas.RGBA.
func NewSurface(name string, display capture.Display, c canvas.Canvas) *Surface {
	if c == nil {
		c = canvas.New(0, 0)
	}
	return &Surface{
		name:    name,
		display: display,
		canvas:  c,
		logger:  log.Component("render").With("surface", name),
	}
}

// Name returns the layer name.
func (s *Surface) Name() string {
	return s.name
}

// OnUpdate registers fn to receive every rendered image.
func (s *Surface) OnUpdate(fn UpdateFunc) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// Snapshot returns a copy of the current surface.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return canvas.Clone(s.canvas.Image())
}

// Stats returns a snapshot of the surface counters.
func (s *Surface) Stats() SurfaceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SurfaceStats{
		Name:     s.name,
		Rendered: s.rendered,
		Stale:    s.stale,
		Skipped:  s.skipped,
		LastSeq:  s.lastSeq,
		Size:     s.canvas.Size(),
	}
}

// render runs draw with the canvas and the display's current video size.
// draw returns how many items it skipped. It reports false when the
// result was stale.
func (s *Surface) render(seq uint64, draw func(c canvas.Canvas, size image.Point) (skipped int)) bool {
	s.mu.Lock()
	if seq != 0 && seq < s.lastSeq {
		s.stale++
		last := s.lastSeq
		s.mu.Unlock()
		s.logger.Debug("stale result discarded", "seq", seq, "last_seq", last)
		return false
	}
	if seq > s.lastSeq {
		s.lastSeq = seq
	}

	skipped := draw(s.canvas, s.display.VideoSize())
	s.skipped += uint64(skipped)
	s.rendered++

	var snap *image.RGBA
	fn := s.onUpdate
	if fn != nil {
		snap = canvas.Clone(s.canvas.Image())
	}
	s.mu.Unlock()

	if fn != nil {
		fn(s.name, snap)
	}
	return true
}
