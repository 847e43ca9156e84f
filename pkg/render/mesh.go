package render

import (
	"context"
	"image"

	"github.com/teslashibe/go-faceoverlay/pkg/canvas"
	"github.com/teslashibe/go-faceoverlay/pkg/inference"
)

// MeshOption configures a MeshRenderer.
type MeshOption func(*MeshRenderer)

// WithTopology draws every face with t. By default the topology is picked
// per face by ForFace. A nil t keeps the default.
func WithTopology(t Topology) MeshOption {
	return func(r *MeshRenderer) { r.topology = t }
}

// WithLineStyle overrides the connector style.
func WithLineStyle(style canvas.LineStyle) MeshOption {
	return func(r *MeshRenderer) { r.style = style }
}

// WithTrail keeps earlier drawings while the video size is unchanged, so
// faces leave a trail. The surface is still cleared when the size changes.
func WithTrail(trail bool) MeshOption {
	return func(r *MeshRenderer) { r.trail = trail }
}

// MeshRenderer draws mesh results as connector lines on a transparent
// surface.
type MeshRenderer struct {
	surface  *Surface
	topology Topology
	style    canvas.LineStyle
	trail    bool
}

// NewMeshRenderer creates a renderer for surface.
func NewMeshRenderer(surface *Surface, opts ...MeshOption) *MeshRenderer {
	r := &MeshRenderer{
		surface: surface,
		style:   MeshStyle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Surface returns the surface the renderer draws on.
func (r *MeshRenderer) Surface() *Surface {
	return r.surface
}

// Render sizes the surface to the current video and draws every face. A
// malformed face is skipped; the others are still drawn. It reports false
// when the result was stale.
func (r *MeshRenderer) Render(res inference.MeshResults) bool {
	return r.surface.render(res.Seq, func(c canvas.Canvas, size image.Point) int {
		if !r.trail || c.Size() != size {
			c.Resize(size.X, size.Y)
		}

		skipped := 0
		for i, face := range res.Faces {
			topology := r.topology
			if topology == nil {
				topology = ForFace(face)
			}
			if err := DrawConnectors(c, face, topology, r.style); err != nil {
				skipped++
				r.surface.logger.Warn("face skipped", "seq", res.Seq, "face", i, "error", err)
			}
		}
		return skipped
	})
}

// Run renders results until the channel closes or ctx is done.
func (r *MeshRenderer) Run(ctx context.Context, results <-chan inference.MeshResults) error {
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
