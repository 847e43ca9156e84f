package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"time"
)

// Decoder turns buffered H264 Annex-B data into the newest picture it
// contains, using an ffmpeg subprocess with pipe I/O (no temp files).
type Decoder struct {
	// Binary is the ffmpeg executable.
	Binary string

	// Timeout bounds one decode call.
	Timeout time.Duration
}

// NewDecoder creates a decoder using ffmpeg from PATH.
func NewDecoder() *Decoder {
	return &Decoder{Binary: "ffmpeg", Timeout: 500 * time.Millisecond}
}

// Decode returns the last picture in an H264 Annex-B buffer. The buffer
// should start at a keyframe with its SPS/PPS.
func (d *Decoder) Decode(ctx context.Context, h264 []byte) (image.Image, error) {
	if len(h264) == 0 {
		return nil, ErrNoFrame
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Binary,
		"-loglevel", "error",
		"-f", "h264", // Input format
		"-i", "pipe:0", // Read from stdin
		"-f", "image2pipe", // Output as pipe
		"-vcodec", "mjpeg", // Output as JPEG
		"-q:v", "3", // Quality (1-31, lower is better)
		"pipe:1", // Write to stdout
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(h264)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("ffmpeg timed out after %v", d.Timeout)
		}
		// ffmpeg exits non-zero when the buffer holds no complete picture
		if stdout.Len() == 0 {
			return nil, ErrNoFrame
		}
	}

	last := lastJPEG(stdout.Bytes())
	if last == nil {
		return nil, ErrNoFrame
	}
	img, err := jpeg.Decode(bytes.NewReader(last))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	return img, nil
}

// lastJPEG returns the final JPEG of a concatenated MJPEG stream.
// Entropy-coded data stuffs 0xFF bytes, so SOI only appears at picture starts.
func lastJPEG(stream []byte) []byte {
	soi := []byte{0xFF, 0xD8, 0xFF}
	idx := bytes.LastIndex(stream, soi)
	if idx < 0 {
		return nil
	}
	return stream[idx:]
}
