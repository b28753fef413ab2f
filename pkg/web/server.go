// Package web serves a read-only status surface for a running tracker:
// a JSON snapshot, a websocket feed of snapshots and a JPEG preview feed.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-pantilt/pkg/hub"
	"github.com/teslashibe/go-pantilt/pkg/tracking"
)

// StatusFunc returns the current tracker status.
type StatusFunc func() tracking.Status

// Config holds server settings.
type Config struct {
	Addr           string        // listen address, e.g. ":8080"
	StatusInterval time.Duration // period of /ws/status pushes
	PreviewFPS     int           // max preview frames per second, 0 disables preview
	PreviewQuality int           // JPEG quality 1-100
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		StatusInterval: 200 * time.Millisecond,
		PreviewFPS:     10,
		PreviewQuality: 70,
	}
}

// Server is the status dashboard.
type Server struct {
	app    *fiber.App
	config Config
	status StatusFunc
	log    *slog.Logger

	statusHub *hub.Hub
	cameraHub *hub.Hub
	preview   *Preview

	mu      sync.Mutex
	started bool
}

// NewServer wires the routes. status must be safe to call concurrently.
func NewServer(cfg Config, status StatusFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		config:    cfg,
		status:    status,
		log:       logger,
		statusHub: hub.New("status", logger),
		cameraHub: hub.New("camera", logger),
	}
	s.preview = NewPreview(s.cameraHub, cfg.PreviewFPS, cfg.PreviewQuality, logger)

	app := fiber.New(fiber.Config{
		AppName:               "pantilt",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/health", s.handleHealth)

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

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Preview returns the frame observer that feeds /ws/camera.
func (s *Server) Preview() *Preview {
	return s.preview
}

// Serve handles requests on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		ln.Close()
		return errors.New("web server already started")
	}
	s.started = true
	s.mu.Unlock()

	go s.statusHub.Run(ctx)
	go s.cameraHub.Run(ctx)
	go s.pushStatus(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listener(ln) }()
	s.log.Info("status server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownErr := s.app.ShutdownWithTimeout(5 * time.Second)
	<-errCh
	s.log.Info("status server stopped")
	return shutdownErr
}

// pushStatus broadcasts a snapshot every interval while someone listens.
func (s *Server) pushStatus(ctx context.Context) {
	interval := s.config.StatusInterval
	if interval <= 0 {
		interval = DefaultConfig().StatusInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			if err := s.statusHub.BroadcastJSON(s.status()); err != nil {
				s.log.Warn("encode status", "error", err)
			}
		}
	}
}
