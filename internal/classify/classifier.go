// Package classify decides how a task is handled: whether it splits, what it
// splits into, and what processing it produces.
//
// The engine depends only on the Classifier interface. KeywordClassifier is
// the built-in heuristic; a model-backed implementation can replace it
// without touching the recursion or streaming code.
package classify

import (
	"context"
	"errors"
)

// ErrExecution marks a failure while processing a single task.
var ErrExecution = errors.New("execution fault")

// Classifier bundles the decomposition policy, the task splitter and the
// work executor behind one swappable capability.
type Classifier interface {
	// ShouldSplit reports whether a task at depth should be decomposed.
	// It must return false whenever depth >= maxDepth.
	ShouldSplit(task string, depth, maxDepth int) bool

	// Split returns the ordered sub-task descriptions for a task.
	// It is only called when ShouldSplit returned true.
	Split(task string) []string

	// Execute processes a task into a result. It may block; it must honour
	// ctx cancellation.
	Execute(ctx context.Context, task string, depth int) (string, error)
}
