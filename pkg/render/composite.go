package render

import (
	"image"

	"golang.org/x/image/draw"
)

// Composite stacks layers bottom to top into a new image the size of the
// first non-empty layer, scaling layers of a different size to fit. Nil
// and empty layers are ignored.
func Composite(layers ...*image.RGBA) *image.RGBA {
	var base image.Rectangle
	for _, l := range layers {
		if l != nil && !l.Rect.Empty() {
			base = image.Rect(0, 0, l.Rect.Dx(), l.Rect.Dy())
			break
		}
	}

	out := image.NewRGBA(base)
	if base.Empty() {
		return out
	}
	for _, l := range layers {
		if l == nil || l.Rect.Empty() {
			continue
		}
		if l.Rect.Size() == base.Size() {
			draw.Draw(out, base, l, l.Rect.Min, draw.Over)
		} else {
			draw.ApproxBiLinear.Scale(out, base, l, l.Rect, draw.Over, nil)
		}
	}
	return out
}
