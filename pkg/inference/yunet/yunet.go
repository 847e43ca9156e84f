// Package yunet runs OpenCV's YuNet face detector as a local inference
// engine for both overlay services.
//
// YuNet reports a box and five key points per face. The detection service
// uses the boxes; the mesh service uses the key points as a sparse landmark
// set drawn with render.FivePointTopology.
package yunet

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/teslashibe/go-faceoverlay/internal/log"
	"github.com/teslashibe/go-faceoverlay/pkg/frame"
	"github.com/teslashibe/go-faceoverlay/pkg/inference"
	"gocv.io/x/gocv"
)

// Config holds detector configuration.
type Config struct {
	ModelPath      string  // Path to the ONNX model
	ScoreThreshold float64 // Minimum raw score kept by the network
	NMSThreshold   float64 // Non-maximum suppression IoU threshold
	TopK           int     // Candidates kept before NMS
	InputWidth     int     // Initial input width, updated per image
	InputHeight    int     // Initial input height, updated per image
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ModelPath:      "models/face_detection_yunet.onnx",
		ScoreThreshold: 0.3,
		NMSThreshold:   0.3,
		TopK:           5000,
		InputWidth:     320,
		InputHeight:    320,
	}
}

// Detector wraps gocv's FaceDetectorYN. It is safe for concurrent use;
// inference calls are serialized.
type Detector struct {
	detector gocv.FaceDetectorYN
	config   Config
	logger   *slog.Logger

	mu     sync.Mutex // Protects inference
	closed bool
}

// New loads the YuNet model.
func New(cfg Config) (*Detector, error) {
	if cfg.ModelPath == "" {
		return nil, inference.ErrNoModel
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: model file not found: %s", inference.ErrNoModel, cfg.ModelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ScoreThreshold),
		float32(cfg.NMSThreshold),
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &Detector{
		detector: detector,
		config:   cfg,
		logger:   log.Component("inference.yunet"),
	}, nil
}

// Detect finds faces in img. Boxes and key points are normalized to the
// image size.
func (d *Detector) Detect(img image.Image) ([]inference.Detection, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, inference.ErrEmptyFrame
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, inference.ErrClosed
	}

	imgW := float64(mat.Cols())
	imgH := float64(mat.Rows())

	// Update detector input size to match image
	d.detector.SetInputSize(image.Pt(mat.Cols(), mat.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(mat, &faces)

	detections := make([]inference.Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		// YuNet output format (15 columns):
		// 0-3: x, y, w, h (bounding box in pixels)
		// 4-13: 5 facial landmarks (x,y pairs)
		// 14: face score
		det := inference.Detection{
			Box: inference.BoundingBox{
				X:      float64(faces.GetFloatAt(r, 0)) / imgW,
				Y:      float64(faces.GetFloatAt(r, 1)) / imgH,
				Width:  float64(faces.GetFloatAt(r, 2)) / imgW,
				Height: float64(faces.GetFloatAt(r, 3)) / imgH,
			},
			Score:     float64(faces.GetFloatAt(r, 14)),
			Landmarks: make(inference.LandmarkSet, 5),
		}
		for i := 0; i < 5; i++ {
			det.Landmarks[i] = inference.Landmark{
				X: float64(faces.GetFloatAt(r, 4+2*i)) / imgW,
				Y: float64(faces.GetFloatAt(r, 5+2*i)) / imgH,
			}
		}
		detections = append(detections, det)
	}

	if len(detections) > 0 {
		d.logger.Debug("faces found", "count", len(detections))
	}
	return detections, nil
}

// MeshModel returns a mesh model that reports the five key points of each
// face, best faces first.
func (d *Detector) MeshModel(opts inference.MeshOptions) inference.Model[inference.MeshResults] {
	return func(ctx context.Context, f *frame.Frame) (inference.MeshResults, error) {
		if err := ctx.Err(); err != nil {
			return inference.MeshResults{}, err
		}
		dets, err := d.Detect(opts.Prepare(f.Image))
		if err != nil {
			return inference.MeshResults{}, err
		}

		dets = Filter(dets, opts.MinDetectionConfidence)
		if len(dets) > opts.MaxNumFaces {
			dets = dets[:opts.MaxNumFaces]
		}

		res := inference.MeshResults{Seq: f.Seq, Faces: make([]inference.LandmarkSet, 0, len(dets))}
		for _, det := range dets {
			res.Faces = append(res.Faces, det.Landmarks)
		}
		return res, nil
	}
}

// DetectionModel returns a detection model. The result carries the full
// resolution display image; only the model input is downsampled.
func (d *Detector) DetectionModel(opts inference.DetectionOptions) inference.Model[inference.DetectionResults] {
	return func(ctx context.Context, f *frame.Frame) (inference.DetectionResults, error) {
		if err := ctx.Err(); err != nil {
			return inference.DetectionResults{}, err
		}
		display := opts.Display(f.Image)
		dets, err := d.Detect(opts.Input(display))
		if err != nil {
			return inference.DetectionResults{}, err
		}
		return inference.DetectionResults{
			Seq:        f.Seq,
			Image:      display,
			Detections: Filter(dets, opts.MinDetectionConfidence),
		}, nil
	}
}

// Close releases the detector resources.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.detector.Close()
	return nil
}

// Filter drops detections scoring below minScore and orders the rest by
// score, best first.
func Filter(dets []inference.Detection, minScore float64) []inference.Detection {
	out := make([]inference.Detection, 0, len(dets))
	for _, det := range dets {
		if det.Score >= minScore {
			out = append(out, det)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
