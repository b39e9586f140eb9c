package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/recursor/internal/classify"
)

var (
	classifyDepth    int
	classifyMaxDepth int
)

var classifyCmd = &cobra.Command{
	Use:   "classify <task>",
	Short: "Show how a task would be split, without running it",
	Long: `Dry-run the decomposition policy for one task.

Prints whether the task would be split at the given depth, which rule
matched, the sub-tasks it would produce and the result it would report.
No latency is simulated and nothing recurses.`,
	Args: cobra.MinimumNArgs(1),
	RunE: classifyTask,
}

func init() {
	classifyCmd.Flags().IntVar(&classifyDepth, "depth", 0, "Depth the task sits at")
	classifyCmd.Flags().IntVar(&classifyMaxDepth, "max-depth", 0, "Depth ceiling (default: engine.default_max_depth)")
}

func classifyTask(cmd *cobra.Command, args []string) error {
	task := strings.TrimSpace(strings.Join(args, " "))
	if task == "" {
		return errors.New("task must not be empty")
	}
	if classifyDepth < 0 {
		return fmt.Errorf("--depth must not be negative, got %d", classifyDepth)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	maxDepth, err := resolveMaxDepth(classifyMaxDepth, cfg.Engine)
	if err != nil {
		return err
	}

	classifier, err := newClassifier(cfg.Engine, true)
	if err != nil {
		return err
	}

	printDecision(cmd.OutOrStdout(), classifier.Explain(task, classifyDepth, maxDepth))
	return nil
}

// printDecision writes a human-readable dry-run report.
func printDecision(out io.Writer, d classify.Decision) {
	label := color.New(color.Faint)

	fmt.Fprintf(out, "%s %s\n", label.Sprint("Task:       "), d.Task)
	fmt.Fprintf(out, "%s %d of %d\n", label.Sprint("Depth:      "), d.Depth, d.MaxDepth)

	var decision string
	switch {
	case d.Split:
		decision = color.GreenString("split") + fmt.Sprintf(" (keyword %q)", d.ComplexKeyword)
	case d.Depth >= d.MaxDepth:
		decision = color.YellowString("leaf") + " (depth ceiling reached)"
	default:
		decision = color.YellowString("leaf") + " (no complexity keyword)"
	}
	fmt.Fprintf(out, "%s %s\n", label.Sprint("Decision:   "), decision)

	if d.Split {
		fmt.Fprintf(out, "%s %s\n", label.Sprint("Split rule: "), d.SplitCategory)
		fmt.Fprintln(out, label.Sprint("Sub-tasks:"))
		for i, sub := range d.Subtasks {
			fmt.Fprintf(out, "  %d. %s\n", i+1, sub)
		}
	}

	fmt.Fprintf(out, "%s %s\n", label.Sprint("Result rule:"), d.ResultCategory)
	fmt.Fprintf(out, "%s %s\n", label.Sprint("Result:     "), d.Result)
}
