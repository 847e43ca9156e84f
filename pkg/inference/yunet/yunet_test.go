package yunet

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-faceoverlay/pkg/frame"
	"github.com/teslashibe/go-faceoverlay/pkg/inference"
)

// TestNew_InvalidPath tests error handling for a missing model
func TestNew_InvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	_, err := New(cfg)
	if !errors.Is(err, inference.ErrNoModel) {
		t.Errorf("expected ErrNoModel, got %v", err)
	}

	cfg.ModelPath = ""
	if _, err := New(cfg); !errors.Is(err, inference.ErrNoModel) {
		t.Errorf("expected ErrNoModel for empty path, got %v", err)
	}
}

func TestFilter(t *testing.T) {
	dets := []inference.Detection{
		{Score: 0.4},
		{Score: 0.9},
		{Score: 0.6},
	}

	got := Filter(dets, 0.5)
	if len(got) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(got))
	}
	if got[0].Score != 0.9 || got[1].Score != 0.6 {
		t.Errorf("expected best first, got %v then %v", got[0].Score, got[1].Score)
	}
}

// TestDetect_EmptyImage tests detection on an empty image
func TestDetect_EmptyImage(t *testing.T) {
	d := newTestDetector(t)

	if _, err := d.Detect(nil); !errors.Is(err, inference.ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
	if _, err := d.Detect(image.NewRGBA(image.Rectangle{})); !errors.Is(err, inference.ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame for zero-size image, got %v", err)
	}
}

// TestDetect_SolidImage tests detection on a solid color image (no faces)
func TestDetect_SolidImage(t *testing.T) {
	d := newTestDetector(t)

	dets, err := d.Detect(solidImage(320, 240, color.RGBA{0, 0, 255, 255}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) > 0 {
		t.Errorf("expected no detections in solid color image, got %d", len(dets))
	}
}

func TestModels_CarrySequence(t *testing.T) {
	d := newTestDetector(t)
	f := frame.New(42, solidImage(640, 480, color.RGBA{100, 100, 100, 255}))

	mesh, err := d.MeshModel(inference.DefaultMeshOptions())(context.Background(), f)
	if err != nil {
		t.Fatalf("mesh model failed: %v", err)
	}
	if mesh.Seq != 42 {
		t.Errorf("mesh seq: got %d, want 42", mesh.Seq)
	}

	det, err := d.DetectionModel(inference.DefaultDetectionOptions())(context.Background(), f)
	if err != nil {
		t.Fatalf("detection model failed: %v", err)
	}
	if det.Seq != 42 {
		t.Errorf("detection seq: got %d, want 42", det.Seq)
	}
	if got := det.Image.Bounds().Size(); got != image.Pt(640, 480) {
		t.Errorf("result image size: got %v, want the 640x480 frame", got)
	}
}

// TestClose tests proper resource cleanup
func TestClose(t *testing.T) {
	d := newTestDetector(t)

	if err := d.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if _, err := d.Detect(solidImage(10, 10, color.Black)); !errors.Is(err, inference.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

// TestConcurrency tests thread safety
func TestConcurrency(t *testing.T) {
	d := newTestDetector(t)
	img := solidImage(320, 240, color.RGBA{100, 100, 100, 255})

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			if _, err := d.Detect(img); err != nil {
				t.Errorf("concurrent detection failed: %v", err)
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

// Helper functions

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func findModelPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	// Walk up to find models directory
	for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		modelPath := filepath.Join(dir, "models", "face_detection_yunet.onnx")
		if _, err := os.Stat(modelPath); err == nil {
			return modelPath
		}
	}
	return ""
}

func solidImage(width, height int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
