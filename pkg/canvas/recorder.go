package canvas

import (
	"image"
	"image/color"
	"sync"
)

// OpKind identifies a recorded drawing call.
type OpKind string

const (
	OpResize OpKind = "resize"
	OpClear  OpKind = "clear"
	OpImage  OpKind = "image"
	OpLine   OpKind = "line"
	OpRect   OpKind = "rect"
)

// Op is one recorded drawing call.
type Op struct {
	Kind OpKind

	Size image.Point // OpResize
	From Point       // OpLine
	To   Point       // OpLine
	Rect Rect        // OpRect

	Color color.Color // OpLine, OpRect
	Fill  color.Color // OpRect
	Width float64     // OpLine, OpRect

	Image image.Image // OpImage
}

// Recorder is a canvas that records every call and still rasterizes.
type Recorder struct {
	*RGBA

	mu  sync.Mutex
	ops []Op
}

// NewRecorder creates a recording canvas. The initial allocation is not
// recorded.
func NewRecorder(w, h int) *Recorder {
	return &Recorder{RGBA: New(w, h)}
}

func (r *Recorder) record(op Op) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

// Resize records and resizes.
func (r *Recorder) Resize(w, h int) {
	r.record(Op{Kind: OpResize, Size: image.Pt(w, h)})
	r.RGBA.Resize(w, h)
}

// Clear records and clears.
func (r *Recorder) Clear() {
	r.record(Op{Kind: OpClear})
	r.RGBA.Clear()
}

// DrawImage records and draws.
func (r *Recorder) DrawImage(img image.Image) {
	r.record(Op{Kind: OpImage, Image: img})
	r.RGBA.DrawImage(img)
}

// StrokeLine records and strokes.
func (r *Recorder) StrokeLine(a, b Point, style LineStyle) {
	r.record(Op{Kind: OpLine, From: a, To: b, Color: style.Color, Width: style.Width})
	r.RGBA.StrokeLine(a, b, style)
}

// StrokeRect records and strokes.
func (r *Recorder) StrokeRect(rect Rect, style RectStyle) {
	r.record(Op{Kind: OpRect, Rect: rect, Color: style.Color, Fill: style.Fill, Width: style.Width})
	r.RGBA.StrokeRect(rect, style)
}

// Ops returns the recorded calls.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Op, len(r.ops))
	copy(out, r.ops)
	return out
}

// Count returns how many calls of kind were recorded.
func (r *Recorder) Count(kind OpKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, op := range r.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Filter returns the recorded calls of kind.
func (r *Recorder) Filter(kind OpKind) []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Op
	for _, op := range r.ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// Reset forgets the recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.ops = nil
	r.mu.Unlock()
}

var _ Canvas = (*Recorder)(nil)
