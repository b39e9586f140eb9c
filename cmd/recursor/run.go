package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/recursor/internal/classify"
	"github.com/ShayCichocki/recursor/internal/config"
	"github.com/ShayCichocki/recursor/internal/engine"
	"github.com/ShayCichocki/recursor/internal/logging"
	"github.com/ShayCichocki/recursor/internal/stream"
	"github.com/ShayCichocki/recursor/internal/tui"
	"github.com/ShayCichocki/recursor/pkg/models"
)

var (
	runMaxDepth  int
	runJSON      bool
	runTUI       bool
	runNoLatency bool
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Decompose and process a task locally",
	Long: `Run a task through the decomposition engine and stream its progress.

The task is executed, then split into sub-tasks when it contains a
complexity keyword (plan, research, organize, ...). Sub-tasks are
processed one after another, each split again until --max-depth.

Output modes:
  (default)  One coloured line per state change, then the result tree
  --json     One JSON snapshot per line on stdout
  --tui      Live terminal view`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().IntVar(&runMaxDepth, "max-depth", 0, "Depth ceiling (default: engine.default_max_depth)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Write snapshots as JSON lines")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the live terminal view")
	runCmd.Flags().BoolVar(&runNoLatency, "no-latency", false, "Skip the simulated processing wait")
}

func runTask(cmd *cobra.Command, args []string) error {
	task := strings.TrimSpace(strings.Join(args, " "))
	if task == "" {
		return errors.New("task must not be empty")
	}
	if runJSON && runTUI {
		return errors.New("--json and --tui are mutually exclusive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	maxDepth, err := resolveMaxDepth(runMaxDepth, cfg.Engine)
	if err != nil {
		return err
	}

	classifier, err := newClassifier(cfg.Engine, runNoLatency)
	if err != nil {
		return err
	}

	// Create context with cancellation for all modes
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if runTUI {
		return runWithTUI(ctx, cancel, classifier, cfg, task, maxDepth)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	out := cmd.OutOrStdout()
	root := runHeadless(ctx, classifier, log, cfg.Engine.PatchBuffer, out, task, maxDepth)
	if !runJSON {
		printTree(out, root)
	}
	if root.State == models.UnitStateFailed {
		return fmt.Errorf("run failed: %s", firstLine(root.Result))
	}
	return nil
}

// runHeadless runs task and streams snapshots to out as status lines or JSON.
func runHeadless(ctx context.Context, classifier classify.Classifier, log *logging.Logger, patchBuffer int, out io.Writer, task string, maxDepth int) *models.WorkUnit {
	var sink stream.Sink
	if runJSON {
		sink = stream.NewJSONLines(out)
	} else {
		sink = newStatusPrinter(out)
	}
	if verbose {
		sink = stream.NewMulti(sink, stream.NewLogSink(log))
	}

	return engine.New(classifier, sink,
		engine.WithLogger(log),
		engine.WithBufferSize(patchBuffer),
	).Run(ctx, task, maxDepth)
}

// runWithTUI runs task behind the terminal view. Quitting the view cancels
// the run and waits for it to settle.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, classifier classify.Classifier, cfg *config.Config, task string, maxDepth int) error {
	program, app := tui.NewRunProgram(task)

	done := make(chan struct{})
	go func() {
		defer close(done)
		root := engine.New(classifier, tui.Sink(program),
			engine.WithLogger(logging.NewNop()),
			engine.WithBufferSize(cfg.Engine.PatchBuffer),
		).Run(ctx, task, maxDepth)
		program.Send(tui.RunDoneMsg{Root: root})
	}()

	_, err := program.Run()
	cancel()
	<-done
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	if root := app.Tree(); app.Done() && root != nil && root.State == models.UnitStateFailed {
		return fmt.Errorf("run failed: %s", firstLine(root.Result))
	}
	return nil
}

// resolveMaxDepth applies the configured default and limit to a --max-depth value.
func resolveMaxDepth(requested int, cfg config.EngineConfig) (int, error) {
	if requested == 0 {
		return cfg.DefaultMaxDepth, nil
	}
	if requested < 1 || requested > cfg.MaxDepthLimit {
		return 0, fmt.Errorf("--max-depth must be between 1 and %d, got %d", cfg.MaxDepthLimit, requested)
	}
	return requested, nil
}

// newClassifier builds the keyword classifier from engine settings.
func newClassifier(cfg config.EngineConfig, noLatency bool) (*classify.KeywordClassifier, error) {
	latency := classify.Latency{Min: cfg.MinLatency, Max: cfg.MaxLatency}
	if noLatency {
		latency = classify.Latency{}
	}
	classifier, err := classify.NewFromRules(cfg.RulesFile, latency)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return classifier, nil
}
