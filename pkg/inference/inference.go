// Package inference runs face models asynchronously, one frame at a time.
//
// Two services feed the overlay: the mesh service produces a landmark set per
// face, the detection service produces scored bounding boxes. Each service is
// an Engine wrapping an opaque Model: Send resolves once the engine accepted
// the frame and the result arrives later on the Results channel.
//
// Example usage:
//
//	mesh, _ := inference.NewEngine(inference.ServiceMesh, detector.MeshModel(inference.DefaultMeshOptions()))
//	defer mesh.Close()
//
//	if err := mesh.Send(ctx, f); err != nil {
//	    return err
//	}
//	res := <-mesh.Results()
package inference

import (
	"context"
	"image"

	"github.com/teslashibe/go-faceoverlay/pkg/frame"
)

// Service names an inference pipeline.
type Service string

const (
	ServiceMesh      Service = "mesh"
	ServiceDetection Service = "detection"
)

// Model runs one inference on a frame. It is called from a single
// goroutine per engine and should honour ctx.
type Model[R any] func(ctx context.Context, f *frame.Frame) (R, error)

// Submitter accepts frames for inference. Send returns once the frame was
// accepted, not when inference completed.
type Submitter interface {
	Send(ctx context.Context, f *frame.Frame) error
}

// Landmark is one normalized point. X and Y are in [0,1] relative to the
// image width and height; Z is relative depth.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LandmarkSet is the ordered landmarks of one face.
type LandmarkSet []Landmark

// MeshResults is the output of the mesh service for one frame.
type MeshResults struct {
	// Seq is the originating frame's sequence id. Zero means untagged.
	Seq uint64

	// Faces holds one landmark set per detected face, possibly none.
	Faces []LandmarkSet
}

// BoundingBox is a normalized axis-aligned box with a top-left origin.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one detected face.
type Detection struct {
	Box   BoundingBox `json:"box"`
	Score float64     `json:"score"`

	// Landmarks are the key points some detectors report (eyes, nose,
	// mouth corners). May be empty.
	Landmarks LandmarkSet `json:"landmarks,omitempty"`
}

// DetectionResults is the output of the detection service for one frame.
type DetectionResults struct {
	// Seq is the originating frame's sequence id. Zero means untagged.
	Seq uint64

	// Image is the frame at full resolution, mirrored in selfie mode. The
	// short-range model sees a downsampled copy; boxes are normalized so
	// they apply to either.
	Image image.Image

	Detections []Detection
}
