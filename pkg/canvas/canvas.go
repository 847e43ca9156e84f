// Package canvas is a small 2D drawing surface with the semantics of an
// HTML canvas: setting the size always clears it, images are drawn scaled
// to a destination, and strokes are centered on their path.
package canvas

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// Point is a position in surface pixels.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle in surface pixels.
type Rect struct {
	X, Y, W, H float64
}

// LineStyle describes a stroked line.
type LineStyle struct {
	Color color.Color
	Width float64
}

// RectStyle describes a rectangle. A nil Fill leaves the inside untouched.
type RectStyle struct {
	Color color.Color
	Width float64
	Fill  color.Color
}

// Canvas is a drawing surface.
type Canvas interface {
	// Size returns the pixel size.
	Size() image.Point

	// Resize sets the pixel size and clears the surface, even when the
	// size is unchanged.
	Resize(w, h int)

	// Clear makes every pixel transparent.
	Clear()

	// DrawImage draws img scaled to cover the whole surface.
	DrawImage(img image.Image)

	// StrokeLine draws a line segment.
	StrokeLine(a, b Point, style LineStyle)

	// StrokeRect draws a rectangle outline, filling it first when the
	// style has a fill.
	StrokeRect(r Rect, style RectStyle)

	// Image returns the backing image. Callers must not retain it across
	// further drawing.
	Image() *image.RGBA
}

// RGBA is a Canvas rasterizing into an *image.RGBA.
type RGBA struct {
	img *image.RGBA
}

// New creates a transparent canvas of the given size.
func New(w, h int) *RGBA {
	c := &RGBA{}
	c.Resize(w, h)
	return c
}

// Size returns the pixel size.
func (c *RGBA) Size() image.Point {
	return c.img.Rect.Size()
}

// Resize replaces the backing image with a transparent one.
func (c *RGBA) Resize(w, h int) {
	c.img = image.NewRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
}

// Clear makes every pixel transparent.
func (c *RGBA) Clear() {
	clear(c.img.Pix)
}

// DrawImage draws img scaled to the surface.
func (c *RGBA) DrawImage(img image.Image) {
	if img == nil || c.img.Rect.Empty() {
		return
	}
	draw.ApproxBiLinear.Scale(c.img, c.img.Rect, img, img.Bounds(), draw.Over, nil)
}

// StrokeLine draws the segment as a quad of the style's width.
func (c *RGBA) StrokeLine(a, b Point, style LineStyle) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 || c.img.Rect.Empty() {
		return
	}
	half := width(style.Width) / 2
	nx, ny := -dy/length*half, dx/length*half

	z := c.rasterizer()
	z.MoveTo(f32(a.X+nx), f32(a.Y+ny))
	z.LineTo(f32(b.X+nx), f32(b.Y+ny))
	z.LineTo(f32(b.X-nx), f32(b.Y-ny))
	z.LineTo(f32(a.X-nx), f32(a.Y-ny))
	z.ClosePath()
	c.paint(z, style.Color)
}

// StrokeRect draws the outline as a ring centered on the rectangle edge.
func (c *RGBA) StrokeRect(r Rect, style RectStyle) {
	if c.img.Rect.Empty() {
		return
	}
	if style.Fill != nil {
		z := c.rasterizer()
		addRect(z, r.X, r.Y, r.X+r.W, r.Y+r.H, false)
		c.paint(z, style.Fill)
	}

	w := width(style.Width)
	lo, hi := -w/2, w/2

	z := c.rasterizer()
	addRect(z, r.X+lo, r.Y+lo, r.X+r.W+hi, r.Y+r.H+hi, false)
	if r.W > w && r.H > w {
		// inner edge wound the other way leaves a hole
		addRect(z, r.X+hi, r.Y+hi, r.X+r.W+lo, r.Y+r.H+lo, true)
	}
	c.paint(z, style.Color)
}

// Image returns the backing image.
func (c *RGBA) Image() *image.RGBA {
	return c.img
}

func (c *RGBA) rasterizer() *vector.Rasterizer {
	size := c.img.Rect.Size()
	return vector.NewRasterizer(size.X, size.Y)
}

func (c *RGBA) paint(z *vector.Rasterizer, col color.Color) {
	if col == nil {
		col = color.Black
	}
	z.DrawOp = draw.Over
	z.Draw(c.img, c.img.Rect, image.NewUniform(col), image.Point{})
}

func addRect(z *vector.Rasterizer, x0, y0, x1, y1 float64, reverse bool) {
	z.MoveTo(f32(x0), f32(y0))
	if reverse {
		z.LineTo(f32(x0), f32(y1))
		z.LineTo(f32(x1), f32(y1))
		z.LineTo(f32(x1), f32(y0))
	} else {
		z.LineTo(f32(x1), f32(y0))
		z.LineTo(f32(x1), f32(y1))
		z.LineTo(f32(x0), f32(y1))
	}
	z.ClosePath()
}

func width(w float64) float64 {
	if w <= 0 {
		return 1
	}
	return w
}

func f32(v float64) float32 {
	return float32(v)
}

// Clone returns a copy of img.
func Clone(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Rect)
	copy(out.Pix, img.Pix)
	return out
}

var _ Canvas = (*RGBA)(nil)
