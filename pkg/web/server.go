// Package web serves the scan dashboard: JSON status, an operator abort
// button and websocket feeds for status and the drone camera.
package web

import (
	"context"
	_ "embed"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-dronescan/internal/log"
	"github.com/teslashibe/go-dronescan/pkg/frame"
	"github.com/teslashibe/go-dronescan/pkg/hub"
	"github.com/teslashibe/go-dronescan/pkg/scan"
	"github.com/teslashibe/go-dronescan/pkg/vision"
)

//go:embed index.html
var indexHTML []byte

// Source is the session the dashboard reports on.
type Source interface {
	Status() scan.Status
	Abort(reason string)
}

// Server is the web dashboard server
type Server struct {
	app  *fiber.App
	port string
	src  Source
	log  *slog.Logger

	frames  *frame.Cell
	encoder vision.Encoder

	statusHub *hub.Hub
	cameraHub *hub.Hub

	// StatusInterval paces periodic status pushes.
	StatusInterval time.Duration

	// CameraInterval rate-limits camera frames; 100ms is 10 fps.
	CameraInterval time.Duration
}

// NewServer creates the dashboard. frames and enc may be nil to disable the
// camera feed.
func NewServer(port string, src Source, frames *frame.Cell, enc vision.Encoder) *Server {
	s := &Server{
		port:           port,
		src:            src,
		log:            log.Component("web"),
		frames:         frames,
		encoder:        enc,
		statusHub:      hub.New("status"),
		cameraHub:      hub.New("camera"),
		StatusInterval: time.Second,
		CameraInterval: 100 * time.Millisecond,
	}

	app := fiber.New(fiber.Config{
		AppName:               "dronescan",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/markers", s.handleMarkers)
	api.Post("/abort", s.handleAbort)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.cameraHub.Run(ctx)
	go s.pushStatus(ctx)
	go s.pushCamera(ctx)

	errc := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", "url", "http://localhost:"+s.port)
		errc <- s.app.Listen(":" + s.port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			return err
		}
		<-errc
		return nil
	}
}

// NotifyStatus pushes the current status to every status client now.
// Safe to call from any goroutine; it never blocks.
func (s *Server) NotifyStatus() {
	if err := s.statusHub.BroadcastJSON(s.src.Status()); err != nil {
		s.log.Warn("encode status", "error", err)
	}
}

func (s *Server) pushStatus(ctx context.Context) {
	ticker := time.NewTicker(s.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() > 0 {
				s.NotifyStatus()
			}
		}
	}
}

// pushCamera encodes the newest frame for camera clients, skipping frames
// already sent.
func (s *Server) pushCamera(ctx context.Context) {
	if s.frames == nil || s.encoder == nil {
		return
	}
	ticker := time.NewTicker(s.CameraInterval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.cameraHub.ClientCount() == 0 {
			continue
		}
		f := s.frames.Latest()
		if f == nil || f.Seq == lastSeq {
			continue
		}
		lastSeq = f.Seq

		data, err := s.encoder.Encode(f)
		if err != nil {
			s.log.Debug("encode camera frame", "seq", f.Seq, "error", err)
			continue
		}
		s.cameraHub.BroadcastBinary(data)
	}
}
