package app

import (
	"context"
	"fmt"
	"io"

	"github.com/teslashibe/go-faceoverlay/internal/config"
	"github.com/teslashibe/go-faceoverlay/pkg/camera"
	"github.com/teslashibe/go-faceoverlay/pkg/capture"
	"github.com/teslashibe/go-faceoverlay/pkg/inference"
	"github.com/teslashibe/go-faceoverlay/pkg/inference/remote"
)

// openWebRTC connects to the signalling server and waits for the remote
// camera track. The capture request is not negotiable over this path.
func openWebRTC(ctx context.Context, cfg config.Config, _ camera.Config) (capture.Source, error) {
	src, err := capture.DialWebRTC(ctx, cfg.SignallingURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrUnavailable, err)
	}
	return src, nil
}

// dialRemote connects one sidecar session per service.
func dialRemote(ctx context.Context, cfg config.Config, meshOpts inference.MeshOptions, detOpts inference.DetectionOptions) (Models, error) {
	mesh, err := remote.Dial(ctx, remote.Config{
		URL:         cfg.RemoteMeshURL,
		Service:     inference.ServiceMesh,
		Options:     meshOpts,
		JPEGQuality: cfg.StreamQuality,
	})
	if err != nil {
		return Models{}, err
	}

	det, err := remote.Dial(ctx, remote.Config{
		URL:         cfg.RemoteDetectionURL,
		Service:     inference.ServiceDetection,
		Options:     detOpts,
		JPEGQuality: cfg.StreamQuality,
	})
	if err != nil {
		mesh.Close()
		return Models{}, err
	}

	return Models{
		Mesh:      mesh.MeshModel(),
		Detection: det.DetectionModel(detOpts),
		Closers:   []io.Closer{mesh, det},
	}, nil
}
