package canvas

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var red = color.RGBA{255, 0, 0, 255}

func solid(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func alphaAt(img *image.RGBA, x, y int) uint8 {
	return img.RGBAAt(x, y).A
}

func TestResize_AlwaysClears(t *testing.T) {
	c := New(10, 10)
	c.StrokeLine(Point{0, 5}, Point{10, 5}, LineStyle{Color: red, Width: 2})
	require.NotZero(t, alphaAt(c.Image(), 5, 5))

	c.Resize(10, 10)
	assert.Zero(t, alphaAt(c.Image(), 5, 5), "same-size resize must clear")

	c.Resize(20, 8)
	assert.Equal(t, image.Pt(20, 8), c.Size())
}

func TestClear(t *testing.T) {
	c := New(4, 4)
	c.DrawImage(solid(red))
	require.Equal(t, uint8(255), alphaAt(c.Image(), 0, 0))

	c.Clear()
	for _, v := range c.Image().Pix {
		if v != 0 {
			t.Fatal("clear left pixels behind")
		}
	}
}

func TestDrawImage_Scales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range src.Pix {
		src.Pix[i] = 255
	}

	c := New(40, 30)
	c.DrawImage(src)
	assert.Equal(t, uint8(255), alphaAt(c.Image(), 0, 0))
	assert.Equal(t, uint8(255), alphaAt(c.Image(), 39, 29))
}

func TestStrokeLine(t *testing.T) {
	c := New(20, 20)
	c.StrokeLine(Point{2, 10}, Point{18, 10}, LineStyle{Color: red, Width: 2})

	assert.Equal(t, red, c.Image().RGBAAt(10, 10))
	assert.Zero(t, alphaAt(c.Image(), 10, 2))

	// zero-length lines draw nothing
	c.Clear()
	c.StrokeLine(Point{5, 5}, Point{5, 5}, LineStyle{Color: red, Width: 3})
	assert.Zero(t, alphaAt(c.Image(), 5, 5))
}

func TestStrokeRect_Unfilled(t *testing.T) {
	c := New(100, 100)
	c.StrokeRect(Rect{X: 10, Y: 10, W: 50, H: 50}, RectStyle{Color: red, Width: 2})

	img := c.Image()
	// edges are painted
	assert.Equal(t, red, img.RGBAAt(30, 10))
	assert.Equal(t, red, img.RGBAAt(10, 30))
	assert.Equal(t, red, img.RGBAAt(59, 30))
	assert.Equal(t, red, img.RGBAAt(30, 59))
	// inside and outside are transparent
	assert.Zero(t, alphaAt(img, 35, 35))
	assert.Zero(t, alphaAt(img, 5, 5))
	assert.Zero(t, alphaAt(img, 70, 70))
}

func TestStrokeRect_Filled(t *testing.T) {
	c := New(100, 100)
	blue := color.RGBA{0, 0, 255, 255}
	c.StrokeRect(Rect{X: 10, Y: 10, W: 50, H: 50}, RectStyle{Color: red, Width: 2, Fill: blue})
	assert.Equal(t, blue, c.Image().RGBAAt(35, 35))
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(0, 0)
	assert.Empty(t, r.Ops())

	r.Resize(100, 50)
	r.Clear()
	r.DrawImage(solid(red))
	r.StrokeLine(Point{1, 1}, Point{9, 9}, LineStyle{Color: red, Width: 1})
	r.StrokeRect(Rect{X: 1, Y: 2, W: 3, H: 4}, RectStyle{Color: red, Width: 2})

	kinds := []OpKind{}
	for _, op := range r.Ops() {
		kinds = append(kinds, op.Kind)
	}
	assert.Equal(t, []OpKind{OpResize, OpClear, OpImage, OpLine, OpRect}, kinds)
	assert.Equal(t, image.Pt(100, 50), r.Size())
	assert.Equal(t, 1, r.Count(OpRect))
	assert.Equal(t, Rect{X: 1, Y: 2, W: 3, H: 4}, r.Filter(OpRect)[0].Rect)

	r.Reset()
	assert.Empty(t, r.Ops())
}

func TestClone(t *testing.T) {
	c := New(3, 3)
	c.DrawImage(solid(red))
	cp := Clone(c.Image())
	c.Clear()
	assert.Equal(t, red, cp.RGBAAt(1, 1))
}
