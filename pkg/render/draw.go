// Package render draws inference results onto overlay surfaces.
//
// Landmarks and boxes arrive normalized to [0,1]; they are mapped to the
// surface's pixel size at draw time, so a surface resized to the current
// video size always lines up with the video.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"github.com/teslashibe/go-faceoverlay/pkg/canvas"
	"github.com/teslashibe/go-faceoverlay/pkg/inference"
)

// ErrMalformed is returned for a landmark set or box that cannot be drawn.
var ErrMalformed = errors.New("render: malformed input")

// Overlay colors.
var (
	Teal = color.RGBA{0, 128, 128, 255}
	Red  = color.RGBA{255, 0, 0, 255}
)

// MeshStyle is the default connector style: teal, 1px.
var MeshStyle = canvas.LineStyle{Color: Teal, Width: 1}

// DetectionStyle is the default box style: red 2px outline with a
// transparent fill.
var DetectionStyle = canvas.RectStyle{Color: Red, Width: 2}

// DrawConnectors strokes one line per topology edge between the landmarks
// it connects. The whole set is validated first, so a malformed set draws
// nothing.
func DrawConnectors(c canvas.Canvas, landmarks inference.LandmarkSet, topology Topology, style canvas.LineStyle) error {
	for _, conn := range topology {
		if conn.From < 0 || conn.To < 0 || conn.From >= len(landmarks) || conn.To >= len(landmarks) {
			return fmt.Errorf("%w: edge %d-%d outside %d landmarks", ErrMalformed, conn.From, conn.To, len(landmarks))
		}
	}
	for i, lm := range landmarks {
		if !finite(lm.X) || !finite(lm.Y) {
			return fmt.Errorf("%w: landmark %d is not finite", ErrMalformed, i)
		}
	}

	size := c.Size()
	w, h := float64(size.X), float64(size.Y)
	for _, conn := range topology {
		a, b := landmarks[conn.From], landmarks[conn.To]
		c.StrokeLine(
			canvas.Point{X: a.X * w, Y: a.Y * h},
			canvas.Point{X: b.X * w, Y: b.Y * h},
			style,
		)
	}
	return nil
}

// DrawRectangle draws a normalized top-left box.
func DrawRectangle(c canvas.Canvas, box inference.BoundingBox, style canvas.RectStyle) error {
	if !finite(box.X) || !finite(box.Y) || !finite(box.Width) || !finite(box.Height) {
		return fmt.Errorf("%w: box %+v is not finite", ErrMalformed, box)
	}
	if box.Width < 0 || box.Height < 0 {
		return fmt.Errorf("%w: box %+v has negative size", ErrMalformed, box)
	}

	size := c.Size()
	w, h := float64(size.X), float64(size.Y)
	c.StrokeRect(canvas.Rect{X: box.X * w, Y: box.Y * h, W: box.Width * w, H: box.Height * h}, style)
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
