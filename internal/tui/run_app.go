package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/recursor/internal/stream"
	"github.com/ShayCichocki/recursor/pkg/models"
)

// SnapshotMsg carries the latest tree. Each one replaces the previous tree
// entirely, so repeated or skipped snapshots render correctly.
type SnapshotMsg struct {
	Snapshot models.Snapshot
}

// RunDoneMsg is sent once the run has returned its settled root.
type RunDoneMsg struct {
	Root *models.WorkUnit
}

// RunApp is the bubbletea model for `recursor run --tui`.
type RunApp struct {
	task     string
	tree     *models.WorkUnit
	view     *TreeView
	spinner  spinner.Model
	done     bool
	quitting bool
	updates  int
	width    int
	height   int

	headerStyle lipgloss.Style
	doneStyle   lipgloss.Style
	failStyle   lipgloss.Style
	hintStyle   lipgloss.Style
}

// NewRunApp creates a RunApp for task.
func NewRunApp(task string) *RunApp {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	return &RunApp{
		task:    task,
		view:    NewTreeView(),
		spinner: s,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),
		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),
		failStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (a *RunApp) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *RunApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.view.SetWidth(msg.Width)

	case SnapshotMsg:
		if msg.Snapshot.Tree != nil {
			a.tree = msg.Snapshot.Tree
			a.updates++
		}

	case RunDoneMsg:
		a.done = true
		if msg.Root != nil {
			a.tree = msg.Root
		}

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

// View implements tea.Model.
func (a *RunApp) View() string {
	if a.quitting && !a.done {
		return "Run cancelled.\n"
	}

	var b strings.Builder

	b.WriteString(a.headerStyle.Render("=== Recursor ==="))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Task: %s\n\n", a.task))

	if a.tree == nil {
		b.WriteString(a.spinner.View() + " Starting...\n")
	} else {
		b.WriteString(a.view.Render(a.tree, a.spinner.View()))
	}

	b.WriteString("\n")
	b.WriteString(a.footer())
	b.WriteString("\n")
	return b.String()
}

func (a *RunApp) footer() string {
	if !a.done || a.tree == nil {
		return a.hintStyle.Render(fmt.Sprintf("%d updates. Press q to cancel", a.updates))
	}

	counts := a.tree.StateCounts()
	summary := fmt.Sprintf("Run complete: %d units, %d done, %d failed, depth %d.",
		a.tree.Count(),
		counts[models.UnitStateDone],
		counts[models.UnitStateFailed],
		a.tree.MaxDepth(),
	)
	style := a.doneStyle
	if a.tree.State == models.UnitStateFailed {
		style = a.failStyle
	}
	return style.Render(summary) + " " + a.hintStyle.Render("Press q to exit.")
}

// Tree returns the most recent tree received.
func (a *RunApp) Tree() *models.WorkUnit {
	return a.tree
}

// Done reports whether RunDoneMsg was received.
func (a *RunApp) Done() bool {
	return a.done
}

// Sender is the part of tea.Program the sink needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Sink returns a stream.Sink that forwards every snapshot to p.
func Sink(p Sender) stream.Sink {
	return stream.SinkFunc(func(_ context.Context, snap models.Snapshot) error {
		p.Send(SnapshotMsg{Snapshot: snap})
		return nil
	})
}

// NewRunProgram creates a bubbletea program for a run of task.
func NewRunProgram(task string) (*tea.Program, *RunApp) {
	app := NewRunApp(task)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}
