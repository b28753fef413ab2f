package web

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-pantilt/pkg/hub"
)

// handleStatus returns the current tracker snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleHealth reports whether the tracker loops are up.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	st := s.status()
	code := fiber.StatusOK
	if st.State != "running" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"state":  st.State,
		"run_id": st.RunID,
	})
}

// handleStatusWS sends the current snapshot, then periodic updates.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var initial *hub.Message
	if data, err := json.Marshal(s.status()); err == nil {
		msg := hub.JSON(data)
		initial = &msg
	}
	s.statusHub.Serve(c, initial)
}

// handleCameraWS streams annotated JPEG preview frames.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	s.cameraHub.Serve(c, nil)
}
