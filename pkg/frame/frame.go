// Package frame defines the unit of work passed from the capture source to the
// inference services.
package frame

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	"time"
)

// Frame is one captured image. Frames are not retained beyond one pump cycle.
type Frame struct {
	// Seq is a monotonically increasing id assigned by the camera trigger.
	// Zero means untagged.
	Seq uint64

	// Image is the captured picture at its intrinsic resolution.
	Image image.Image

	// Captured is when the frame was read from the device.
	Captured time.Time
}

// New wraps img as a frame with the given sequence id.
func New(seq uint64, img image.Image) *Frame {
	return &Frame{Seq: seq, Image: img, Captured: time.Now()}
}

// Size returns the intrinsic dimensions of the frame.
func (f *Frame) Size() image.Point {
	if f == nil || f.Image == nil {
		return image.Point{}
	}
	return f.Image.Bounds().Size()
}

// JPEG encodes the frame image.
func (f *Frame) JPEG(quality int) ([]byte, error) {
	return EncodeJPEG(f.Image, quality)
}

// EncodeJPEG converts an image to JPEG bytes.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Mirror returns a horizontally flipped RGBA copy of img, the way a selfie
// view shows the camera.
func Mirror(img image.Image) *image.RGBA {
	b := img.Bounds()
	src := ToRGBA(img)
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	w := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+w*4]
		dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for x := 0; x < w; x++ {
			copy(dstRow[(w-1-x)*4:(w-x)*4], srcRow[x*4:x*4+4])
		}
	}
	return dst
}

// ToRGBA returns img as an *image.RGBA anchored at the origin, copying only
// when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
