package inference

import (
	"fmt"
	"image"

	"github.com/teslashibe/go-faceoverlay/pkg/frame"
	"golang.org/x/image/draw"
)

// Detection model variants.
const (
	// ModelShort is tuned for faces close to the camera and runs on a
	// downsampled image.
	ModelShort = "short"

	// ModelFull runs at the native frame resolution.
	ModelFull = "full"
)

// ShortRangeSide is the long side of the image fed to the short-range model.
const ShortRangeSide = 320

// MeshOptions configures the mesh service. Options are fixed at construction.
type MeshOptions struct {
	MaxNumFaces            int     `json:"maxNumFaces"`
	SelfieMode             bool    `json:"selfieMode"`
	MinDetectionConfidence float64 `json:"minDetectionConfidence"`
	MinTrackingConfidence  float64 `json:"minTrackingConfidence"`
	RefineLandmarks        bool    `json:"refineLandmarks"`
}

// DefaultMeshOptions returns the options the overlay ships with.
func DefaultMeshOptions() MeshOptions {
	return MeshOptions{
		MaxNumFaces:            10,
		SelfieMode:             true,
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
		RefineLandmarks:        false,
	}
}

// Validate checks the option ranges.
func (o MeshOptions) Validate() error {
	if o.MaxNumFaces < 1 {
		return fmt.Errorf("%w: maxNumFaces must be at least 1, got %d", ErrBadOptions, o.MaxNumFaces)
	}
	if err := checkUnit("minDetectionConfidence", o.MinDetectionConfidence); err != nil {
		return err
	}
	return checkUnit("minTrackingConfidence", o.MinTrackingConfidence)
}

// Prepare returns the image the mesh model should see.
func (o MeshOptions) Prepare(img image.Image) image.Image {
	if o.SelfieMode {
		return frame.Mirror(img)
	}
	return img
}

// DetectionOptions configures the detection service. Options are fixed at
// construction.
type DetectionOptions struct {
	Model                  string  `json:"model"`
	SelfieMode             bool    `json:"selfieMode"`
	MinDetectionConfidence float64 `json:"minDetectionConfidence"`
}

// DefaultDetectionOptions returns the options the overlay ships with.
func DefaultDetectionOptions() DetectionOptions {
	return DetectionOptions{
		Model:                  ModelShort,
		SelfieMode:             true,
		MinDetectionConfidence: 0.5,
	}
}

// Validate checks the option ranges.
func (o DetectionOptions) Validate() error {
	if o.Model != ModelShort && o.Model != ModelFull {
		return fmt.Errorf("%w: model must be %q or %q, got %q", ErrBadOptions, ModelShort, ModelFull, o.Model)
	}
	return checkUnit("minDetectionConfidence", o.MinDetectionConfidence)
}

// Prepare returns the image the detection model should see: mirrored in
// selfie mode, and downsampled for the short-range model.
func (o DetectionOptions) Prepare(img image.Image) image.Image {
	return o.Input(o.Display(img))
}

// Display returns the full resolution image detection results carry,
// mirrored in selfie mode.
func (o DetectionOptions) Display(img image.Image) image.Image {
	if o.SelfieMode {
		return frame.Mirror(img)
	}
	return img
}

// Input scales a display image down to the model's input resolution.
func (o DetectionOptions) Input(display image.Image) image.Image {
	if o.Model == ModelShort {
		return Downsample(display, ShortRangeSide)
	}
	return display
}

// Downsample scales img so its long side is at most side pixels, keeping
// the aspect ratio. Smaller images are returned unchanged.
func Downsample(img image.Image, side int) image.Image {
	b := img.Bounds()
	long := b.Dx()
	if b.Dy() > long {
		long = b.Dy()
	}
	if long <= side || long == 0 {
		return img
	}

	w := max(1, b.Dx()*side/long)
	h := max(1, b.Dy()*side/long)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func checkUnit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: %s must be in [0,1], got %v", ErrBadOptions, name, v)
	}
	return nil
}
