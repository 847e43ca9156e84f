// Package web serves the overlay page and streams its layers.
//
// The page stacks three layers: the camera video, the detection overlay
// and the mesh overlay on top. Each layer has its own hub and websocket
// endpoint; the overlays are PNG frames with a transparent background and
// the video layer is JPEG.
package web

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-faceoverlay/internal/log"
	"github.com/teslashibe/go-faceoverlay/pkg/camera"
	"github.com/teslashibe/go-faceoverlay/pkg/hub"
)

//go:embed static/index.html
var static embed.FS

// Layer names, bottom to top.
const (
	LayerVideo     = "video"
	LayerDetection = "detection"
	LayerMesh      = "mesh"
)

// Layers lists every layer, bottom to top.
var Layers = []string{LayerVideo, LayerDetection, LayerMesh}

// ErrUnknownLayer is returned when publishing to a layer that does not exist.
var ErrUnknownLayer = errors.New("web: unknown layer")

// StatusFunc returns the body of GET /api/status.
type StatusFunc func() any

// Config configures the server.
type Config struct {
	Addr       string
	Camera     *camera.Manager // nil disables PUT /api/camera
	Status     StatusFunc
	SelfieMode bool // mirror the video layer in the page
}

// Server is the overlay web server
type Server struct {
	app    *fiber.App
	cfg    Config
	hubs   map[string]*hub.Hub
	logger *slog.Logger
}

// NewServer creates a new web server
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:    cfg,
		hubs:   make(map[string]*hub.Hub, len(Layers)),
		logger: log.Component("web"),
	}
	for _, name := range Layers {
		s.hubs[name] = hub.New(name)
	}

	app := fiber.New(fiber.Config{
		AppName:               "Face Overlay",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handlePutCamera)
	api.Get("/camera/presets", s.handlePresets)
	api.Get("/layers/:name", s.handleLayer)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/:layer", s.checkLayer, websocket.New(s.handleLayerWS))

	s.app = app
	return s
}

// App returns the fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the hub of a layer, or nil.
func (s *Server) Hub(layer string) *hub.Hub {
	return s.hubs[layer]
}

// Publish sends an encoded frame to every viewer of a layer.
func (s *Server) Publish(layer string, data []byte) error {
	h, ok := s.hubs[layer]
	if !ok {
		return ErrUnknownLayer
	}
	h.BroadcastBinary(data)
	return nil
}

// HubStats returns the counters of every layer hub.
func (s *Server) HubStats() []hub.Stats {
	stats := make([]hub.Stats, 0, len(Layers))
	for _, name := range Layers {
		stats = append(stats, s.hubs[name].Stats())
	}
	return stats
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	for _, h := range s.hubs {
		go h.Run(ctx)
	}

	s.logger.Info("🌐 overlay page", "url", "http://"+ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errc:
		return err
	}
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
