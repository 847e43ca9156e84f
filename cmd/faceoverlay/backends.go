package main

import (
	"context"
	"io"

	"github.com/teslashibe/go-faceoverlay/internal/app"
	"github.com/teslashibe/go-faceoverlay/internal/config"
	"github.com/teslashibe/go-faceoverlay/pkg/camera"
	"github.com/teslashibe/go-faceoverlay/pkg/capture"
	"github.com/teslashibe/go-faceoverlay/pkg/capture/device"
	"github.com/teslashibe/go-faceoverlay/pkg/inference"
	"github.com/teslashibe/go-faceoverlay/pkg/inference/yunet"
)

// backends registers the OpenCV-backed source and engine.
func backends() []app.Option {
	return []app.Option{
		app.WithSource(config.SourceDevice, openDevice),
		app.WithModels(config.EngineYuNet, loadYuNet),
	}
}

func openDevice(_ context.Context, c config.Config, cam camera.Config) (capture.Source, error) {
	src, err := device.Open(c.Device, cam)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func loadYuNet(_ context.Context, c config.Config, meshOpts inference.MeshOptions, detOpts inference.DetectionOptions) (app.Models, error) {
	ycfg := yunet.DefaultConfig()
	ycfg.ModelPath = c.ModelPath

	d, err := yunet.New(ycfg)
	if err != nil {
		return app.Models{}, err
	}
	return app.Models{
		Mesh:      d.MeshModel(meshOpts),
		Detection: d.DetectionModel(detOpts),
		Closers:   []io.Closer{d},
	}, nil
}
