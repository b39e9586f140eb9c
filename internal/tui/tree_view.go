package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/recursor/pkg/models"
)

const (
	iconDone    = "✓"
	iconFailed  = "✗"
	iconPending = "○"

	processingText  = "Processing..."
	timestampLayout = "15:04:05"
)

// TreeView renders a work unit tree, one block per unit, indented by depth.
type TreeView struct {
	width int

	taskStyle     lipgloss.Style
	depthStyle    lipgloss.Style
	resultStyle   lipgloss.Style
	pendingStyle  lipgloss.Style
	timeStyle     lipgloss.Style
	statusDone    lipgloss.Style
	statusFailed  lipgloss.Style
	statusPending lipgloss.Style
}

// NewTreeView creates a TreeView with the default styles.
func NewTreeView() *TreeView {
	return &TreeView{
		taskStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		depthStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")),

		resultStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")),

		pendingStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true),

		timeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		statusDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		statusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		statusPending: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// SetWidth sets the width results are truncated to. 0 disables truncation.
func (v *TreeView) SetWidth(width int) {
	v.width = width
}

// Render returns the tree rooted at root. thinking is the icon drawn for
// units still in progress, normally the current spinner frame.
func (v *TreeView) Render(root *models.WorkUnit, thinking string) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	v.renderUnit(&b, root, thinking)
	return b.String()
}

func (v *TreeView) renderUnit(b *strings.Builder, unit *models.WorkUnit, thinking string) {
	indent := strings.Repeat("  ", unit.Depth)

	b.WriteString(fmt.Sprintf("%s%s %s %s\n",
		indent,
		v.statusIcon(unit.State, thinking),
		v.depthStyle.Render(fmt.Sprintf("Depth %d:", unit.Depth)),
		v.taskStyle.Render(unit.Task),
	))

	if unit.Result == "" {
		b.WriteString(indent + "    " + v.pendingStyle.Render(processingText) + "\n")
	} else {
		for _, line := range strings.Split(unit.Result, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			b.WriteString(indent + "    " + v.resultStyle.Render(v.truncate(line, len(indent)+4)) + "\n")
		}
	}

	if !unit.CreatedAt.IsZero() {
		b.WriteString(indent + "    " + v.timeStyle.Render(unit.CreatedAt.Format(timestampLayout)) + "\n")
	}

	for _, child := range unit.Children {
		v.renderUnit(b, child, thinking)
	}
}

// statusIcon returns the styled icon for a unit state.
func (v *TreeView) statusIcon(state models.UnitState, thinking string) string {
	switch state {
	case models.UnitStateDone:
		return v.statusDone.Render(iconDone)
	case models.UnitStateFailed:
		return v.statusFailed.Render(iconFailed)
	case models.UnitStateThinking:
		return thinking
	default:
		return v.statusPending.Render(iconPending)
	}
}

// truncate shortens line so that it fits after an indent of used columns.
func (v *TreeView) truncate(line string, used int) string {
	if v.width <= 0 {
		return line
	}
	limit := v.width - used
	if limit < 4 {
		return line
	}
	runes := []rune(line)
	if len(runes) <= limit {
		return line
	}
	return string(runes[:limit-3]) + "..."
}
