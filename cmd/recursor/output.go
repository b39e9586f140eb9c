package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ShayCichocki/recursor/internal/stream"
	"github.com/ShayCichocki/recursor/pkg/models"
)

// unitMark is what statusPrinter remembers about a unit between snapshots.
type unitMark struct {
	state     models.UnitState
	hasResult bool
}

// statusPrinter prints one coloured line whenever a unit appears, gets its
// result or settles.
type statusPrinter struct {
	out  io.Writer
	seen map[string]unitMark
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	return &statusPrinter{out: out, seen: make(map[string]unitMark)}
}

// Send implements stream.Sink.
func (p *statusPrinter) Send(_ context.Context, snap models.Snapshot) error {
	if snap.Tree == nil {
		return nil
	}

	var writeErr error
	snap.Tree.Walk(func(u *models.WorkUnit) bool {
		if writeErr != nil {
			return false
		}
		mark := unitMark{state: u.State, hasResult: u.Result != ""}
		if prev, ok := p.seen[u.ID]; ok && prev == mark {
			return true
		}
		p.seen[u.ID] = mark
		if err := p.printUnit(u); err != nil {
			writeErr = fmt.Errorf("%w: %w", stream.ErrTransport, err)
			return false
		}
		return true
	})
	return writeErr
}

func (p *statusPrinter) printUnit(u *models.WorkUnit) error {
	indent := strings.Repeat("  ", u.Depth)

	var symbol, detail string
	var attr color.Attribute
	switch {
	case u.State == models.UnitStateDone:
		symbol, attr = "✓", color.FgGreen
		detail = "done"
	case u.State == models.UnitStateFailed:
		symbol, attr = "✗", color.FgRed
		detail = firstLine(u.Result)
	case u.Result != "":
		symbol, attr = "•", color.FgCyan
		detail = "executed"
	default:
		symbol, attr = "…", color.FgYellow
		detail = "thinking"
	}

	_, err := fmt.Fprintf(p.out, "%s%s Depth %d: %s %s\n",
		indent,
		color.New(attr).Sprint(symbol),
		u.Depth,
		u.Task,
		color.New(color.Faint).Sprintf("(%s)", detail),
	)
	return err
}

// printTree writes the settled tree with each unit's result and a summary line.
func printTree(out io.Writer, root *models.WorkUnit) {
	if root == nil {
		return
	}

	fmt.Fprintln(out)
	color.New(color.Bold).Fprintln(out, "Result tree")
	root.Walk(func(u *models.WorkUnit) bool {
		indent := strings.Repeat("  ", u.Depth)
		symbol := color.GreenString("✓")
		if u.State == models.UnitStateFailed {
			symbol = color.RedString("✗")
		}
		fmt.Fprintf(out, "%s%s %s\n", indent, symbol, u.Task)
		for _, line := range strings.Split(u.Result, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			fmt.Fprintf(out, "%s    %s\n", indent, line)
		}
		return true
	})

	counts := root.StateCounts()
	summary := fmt.Sprintf("%d units, %d done, %d failed, max depth %d",
		root.Count(), counts[models.UnitStateDone], counts[models.UnitStateFailed], root.MaxDepth())
	fmt.Fprintln(out)
	if counts[models.UnitStateFailed] > 0 {
		color.New(color.FgYellow).Fprintln(out, summary)
	} else {
		color.New(color.FgGreen).Fprintln(out, summary)
	}
}

// firstLine returns s up to its first newline.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
