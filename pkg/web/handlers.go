package web

import (
	"html/template"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-faceoverlay/pkg/camera"
	"github.com/teslashibe/go-faceoverlay/pkg/hub"
)

var page = template.Must(template.ParseFS(static, "static/index.html"))

// handleIndex renders the stacked layer page
func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html")
	return page.Execute(c, struct{ Selfie bool }{s.cfg.SelfieMode})
}

// handleStatus returns the pipeline counters
func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.cfg.Status == nil {
		return c.JSON(fiber.Map{"layers": s.HubStats()})
	}
	return c.JSON(s.cfg.Status())
}

// handleGetCamera returns the current camera request
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.cfg.Camera == nil {
		return c.JSON(camera.DefaultConfig())
	}
	return c.JSON(s.cfg.Camera.GetConfigJSON())
}

// handlePutCamera applies a preset and/or individual fields
func (s *Server) handlePutCamera(c *fiber.Ctx) error {
	if s.cfg.Camera == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "camera control not configured",
		})
	}

	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body: " + err.Error(),
		})
	}

	if err := s.cfg.Camera.UpdateConfig(params); err != nil {
		s.logger.Warn("camera update rejected", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.logger.Info("camera updated", "config", s.cfg.Camera.GetConfig())
	return c.JSON(s.cfg.Camera.GetConfigJSON())
}

// handlePresets lists the camera presets
func (s *Server) handlePresets(c *fiber.Ctx) error {
	presets := camera.Presets()
	out := make([]fiber.Map, 0, len(presets))
	for _, name := range camera.PresetNames() {
		out = append(out, fiber.Map{
			"name":   name,
			"config": presets[name],
		})
	}
	return c.JSON(out)
}

// handleLayer returns the latest frame of a layer
func (s *Server) handleLayer(c *fiber.Ctx) error {
	name := c.Params("name")
	h, ok := s.hubs[name]
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown layer: "+name)
	}

	msg, ok := h.Last()
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}

	if name == LayerVideo {
		c.Type("jpeg")
	} else {
		c.Type("png")
	}
	return c.Send(msg.Data)
}

// checkLayer rejects websocket requests for unknown layers before upgrading
func (s *Server) checkLayer(c *fiber.Ctx) error {
	if _, ok := s.hubs[c.Params("layer")]; !ok {
		return fiber.ErrNotFound
	}
	return c.Next()
}

// handleLayerWS streams one layer to a viewer
func (s *Server) handleLayerWS(c *websocket.Conn) {
	h := s.hubs[c.Params("layer")]
	hub.NewClient(h, c).Run() // Blocks until the viewer disconnects
}
