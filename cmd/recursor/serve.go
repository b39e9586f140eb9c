package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/recursor/internal/config"
	"github.com/ShayCichocki/recursor/internal/logging"
	"github.com/ShayCichocki/recursor/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over HTTP",
	Long: `Start the HTTP server.

Endpoints:
  POST /api/agent     {"task": "...", "maxDepth": 3} streamed as server-sent events
  GET  /api/agent/ws  the same request and stream over a websocket
  GET  /health        liveness check

When a config file is in use, changes to its engine section are picked
up without a restart. Runs already streaming keep their settings.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	srv, err := server.New(cfg, log)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	if path := config.Locate(configPath); path != "" {
		if err := config.Watch(path, reloadHandler(srv, log)); err != nil {
			log.Warnw("config_watch_failed", "path", path, "error", err)
		} else {
			log.Infow("config_watch_started", "path", path)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

// reloadHandler applies engine settings from a reloaded config file. Server
// and logger settings need a restart.
func reloadHandler(srv *server.Server, log *logging.Logger) func(*config.Config, error) {
	return func(cfg *config.Config, err error) {
		if err != nil {
			log.Warnw("config_reload_failed", "error", err)
			return
		}
		if err := srv.Reload(cfg.Engine); err != nil {
			log.Warnw("config_reload_failed", "error", err)
		}
	}
}
