package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/recursor/internal/config"
	"github.com/ShayCichocki/recursor/internal/logging"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "recursor",
	Short: "Recursive task decomposition engine",
	Long: `Recursor breaks a task into sub-tasks, recursively, up to a depth
ceiling, and streams the growing tree as every node is processed.

Each node is executed, then split when its text calls for it. A parent
finishes only after all of its children have settled, and reports how
many of them succeeded.

Run a task locally with 'recursor run', inspect a single classification
with 'recursor classify', or serve the engine over HTTP with
'recursor serve'.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: .recursor.yaml or ~/.config/recursor/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads configuration honouring --config and --verbose.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logger.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	log, err := logging.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log, nil
}
