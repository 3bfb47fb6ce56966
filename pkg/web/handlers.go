package web

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-dronescan/pkg/hub"
)

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(indexHTML)
}

// handleStatus returns the whole session status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.src.Status())
}

// handleMarkers returns the latest marker snapshot
func (s *Server) handleMarkers(c *fiber.Ctx) error {
	return c.JSON(s.src.Status().Markers)
}

// AbortRequest is the optional body of POST /api/abort.
type AbortRequest struct {
	Reason string `json:"reason"`
}

// handleAbort stops the scan; the drone lands.
func (s *Server) handleAbort(c *fiber.Ctx) error {
	var req AbortRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid abort request"})
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "dashboard"
	}

	s.src.Abort(reason)
	s.NotifyStatus()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "aborting", "reason": reason})
}

// handleStatusWS sends the current status, then every update.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	client := hub.NewClient(s.statusHub, conn)
	if client == nil {
		return
	}
	if data, err := json.Marshal(s.src.Status()); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}
	client.Run()
}

// handleCameraWS streams JPEG frames.
func (s *Server) handleCameraWS(conn *websocket.Conn) {
	client := hub.NewClient(s.cameraHub, conn)
	if client == nil {
		return
	}
	client.Run()
}
