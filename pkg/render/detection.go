package render

import (
	"context"
	"image"

	"github.com/teslashibe/go-faceoverlay/pkg/canvas"
	"github.com/teslashibe/go-faceoverlay/pkg/inference"
)

// DetectionRenderer redraws the detector's image with a box per face,
// replacing the whole surface each time.
type DetectionRenderer struct {
	surface *Surface
	style   canvas.RectStyle
}

// NewDetectionRenderer creates a renderer for surface using DetectionStyle.
func NewDetectionRenderer(surface *Surface) *DetectionRenderer {
	return &DetectionRenderer{surface: surface, style: DetectionStyle}
}

// WithRectStyle overrides the box style.
func (r *DetectionRenderer) WithRectStyle(style canvas.RectStyle) *DetectionRenderer {
	r.style = style
	return r
}

// Surface returns the surface the renderer draws on.
func (r *DetectionRenderer) Surface() *Surface {
	return r.surface
}

// Render sizes and clears the surface, draws the result image scaled to
// it and outlines every detection. It reports false when the result was
// stale.
func (r *DetectionRenderer) Render(res inference.DetectionResults) bool {
	return r.surface.render(res.Seq, func(c canvas.Canvas, size image.Point) int {
		c.Resize(size.X, size.Y)
		c.Clear()
		if res.Image != nil {
			c.DrawImage(res.Image)
		}

		skipped := 0
		for i, det := range res.Detections {
			if err := DrawRectangle(c, det.Box, r.style); err != nil {
				skipped++
				r.surface.logger.Warn("detection skipped", "seq", res.Seq, "detection", i, "error", err)
			}
		}
		return skipped
	})
}

// Run renders results until the channel closes or ctx is done.
func (r *DetectionRenderer) Run(ctx context.Context, results <-chan inference.DetectionResults) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				return nil
			}
			r.Render(res)
		}
	}
}
