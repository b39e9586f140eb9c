// Package tui provides the terminal view for `recursor run --tui`.
//
// The view is read-only. It renders the most recent snapshot of a run as an
// indented tree: a spinner for units still thinking, ✓ for done, ✗ for
// failed, followed by the unit's result and creation time. Users can only
// quit with 'q' or Ctrl+C.
//
// Usage:
//
//	program, app := tui.NewRunProgram(task)
//	go func() {
//	    root := engine.New(classifier, tui.Sink(program)).Run(ctx, task, maxDepth)
//	    program.Send(tui.RunDoneMsg{Root: root})
//	}()
//	program.Run()
package tui
