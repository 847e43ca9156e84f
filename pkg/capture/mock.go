package capture

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"
)

// Mock is a scripted Source for testing. It produces solid frames at the
// size set with SetSize.
type Mock struct {
	// Interval is the delay before each frame, emulating a frame rate.
	Interval time.Duration

	// Color fills every produced frame.
	Color color.Color

	// Limit, when positive, ends the stream after that many frames.
	Limit int

	mu     sync.Mutex
	size   image.Point
	reads  int
	closed bool

	ready  chan struct{}
	closeC chan struct{}
}

// NewMock creates a mock source reporting the given size. A zero size means
// the source is not ready yet.
func NewMock(width, height int) *Mock {
	return &Mock{
		Color:  color.RGBA{40, 80, 120, 255},
		size:   image.Pt(width, height),
		ready:  make(chan struct{}, 1),
		closeC: make(chan struct{}),
	}
}

// SetSize changes the reported video size and emits a readiness signal.
func (m *Mock) SetSize(width, height int) {
	m.mu.Lock()
	m.size = image.Pt(width, height)
	m.mu.Unlock()
	Notify(m.ready)
}

// Signal emits a readiness signal without changing the size.
func (m *Mock) Signal() {
	Notify(m.ready)
}

// VideoSize returns the current size.
func (m *Mock) VideoSize() image.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Ready returns the readiness signal channel.
func (m *Mock) Ready() <-chan struct{} {
	return m.ready
}

// Read returns a solid frame at the current size.
func (m *Mock) Read(ctx context.Context) (image.Image, error) {
	if m.Interval > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.closeC:
			return nil, ErrClosed
		case <-time.After(m.Interval):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !IsReady(m.size) {
		return nil, ErrNoFrame
	}
	if m.Limit > 0 && m.reads >= m.Limit {
		return nil, ErrEnded
	}

	m.reads++
	img := image.NewRGBA(image.Rectangle{Max: m.size})
	draw.Draw(img, img.Bounds(), image.NewUniform(m.Color), image.Point{}, draw.Src)
	return img, nil
}

// Reads returns how many frames were produced.
func (m *Mock) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Close marks the source closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closeC)
	}
	return nil
}

// Verify Mock implements Source at compile time.
var _ Source = (*Mock)(nil)
