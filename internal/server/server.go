// Package server exposes the engine over HTTP: a server-sent event stream, a
// websocket stream and a health check.
package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ShayCichocki/recursor/internal/config"
	"github.com/ShayCichocki/recursor/internal/logging"
)

const shutdownTimeout = 30 * time.Second

// Server wraps the fiber app and the engine settings shared by its handlers.
type Server struct {
	app      *fiber.App
	cfg      config.ServerConfig
	log      *logging.Logger
	settings *settingsHolder

	// runCtx is handed to every run and canceled on shutdown.
	runCtx    context.Context
	cancelRun context.CancelFunc
}

// New builds a Server from configuration.
func New(cfg *config.Config, log *logging.Logger) (*Server, error) {
	settings, err := NewSettings(cfg.Engine)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg.Server,
		log:       log,
		settings:  &settingsHolder{},
		runCtx:    runCtx,
		cancelRun: cancel,
	}
	s.settings.Store(settings)

	s.app = fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ErrorHandler:          globalErrorHandler(log),
		DisableStartupMessage: true,
	})
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	allowedOrigins := "*"
	if len(s.cfg.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(s.cfg.AllowedOrigins, ",")
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, " + s.cfg.RequestIDHeader,
		AllowMethods: "GET, POST, HEAD",
	}))

	s.app.Use(requestID(s.cfg.RequestIDHeader))
	if s.cfg.AccessLog {
		s.app.Use(accessLog(s.log))
	}

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	agent := newAgentHandler(s.runCtx, s.settings, s.log.Named("agent"))

	api := s.app.Group("/api")
	api.Post("/agent", agent.Stream)
	api.Use("/agent/ws", upgradeOnly)
	api.Get("/agent/ws", websocket.New(agent.Socket))
}

// App returns the underlying fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Settings returns the engine settings new requests will use.
func (s *Server) Settings() *Settings {
	return s.settings.Load()
}

// Reload swaps in engine settings built from cfg. Runs already streaming keep
// the settings they started with. On error the current settings stay.
func (s *Server) Reload(cfg config.EngineConfig) error {
	settings, err := NewSettings(cfg)
	if err != nil {
		return err
	}
	s.settings.Store(settings)
	s.log.Infow("engine_settings_reloaded",
		"default_max_depth", settings.DefaultMaxDepth,
		"max_depth_limit", settings.MaxDepthLimit,
		"min_latency", cfg.MinLatency,
		"max_latency", cfg.MaxLatency,
		"rules_file", cfg.RulesFile,
	)
	return nil
}

// Run listens until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Address()
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr)
	}()
	s.log.Infof("server started on %s", addr)

	select {
	case err := <-errCh:
		s.cancelRun()
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server...")
	s.cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
