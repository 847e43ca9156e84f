package app

import (
	"time"

	"github.com/teslashibe/go-faceoverlay/pkg/hub"
	"github.com/teslashibe/go-faceoverlay/pkg/inference"
	"github.com/teslashibe/go-faceoverlay/pkg/pump"
	"github.com/teslashibe/go-faceoverlay/pkg/render"
)

// Status is the body of GET /api/status.
type Status struct {
	Session     string                `json:"session"`
	Uptime      string                `json:"uptime"`
	Source      string                `json:"source"`
	Engine      string                `json:"engine"`
	SourceError string                `json:"source_error,omitempty"`
	VideoWidth  int                   `json:"video_width"`
	VideoHeight int                   `json:"video_height"`
	Pump        *pump.Stats           `json:"pump,omitempty"`
	Engines     []inference.Stats     `json:"engines"`
	Surfaces    []render.SurfaceStats `json:"surfaces"`
	Layers      []hub.Stats           `json:"layers"`
}

// Status collects the counters of every component.
func (a *App) Status() Status {
	s := Status{
		Session: a.session,
		Source:  a.config.Source,
		Engine:  a.config.Engine,
	}

	a.mu.Lock()
	if !a.startedAt.IsZero() {
		s.Uptime = time.Since(a.startedAt).Round(time.Second).String()
	}
	if a.sourceErr != nil {
		s.SourceError = a.sourceErr.Error()
	}
	a.mu.Unlock()

	if a.source != nil {
		size := a.source.VideoSize()
		s.VideoWidth, s.VideoHeight = size.X, size.Y
	}
	if a.pump != nil {
		ps := a.pump.Stats()
		s.Pump = &ps
	}
	if a.meshEngine != nil {
		s.Engines = append(s.Engines, a.meshEngine.Stats())
	}
	if a.detEngine != nil {
		s.Engines = append(s.Engines, a.detEngine.Stats())
	}
	if a.meshRenderer != nil {
		s.Surfaces = append(s.Surfaces, a.meshRenderer.Surface().Stats(), a.detRenderer.Surface().Stats())
	}
	if a.web != nil {
		s.Layers = a.web.HubStats()
	}
	return s
}
