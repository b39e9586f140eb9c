package classify

import (
	"context"
	"fmt"
)

// KeywordClassifier classifies tasks by case-insensitive keyword matching.
type KeywordClassifier struct {
	table   Table
	latency Latency
}

// Option configures a KeywordClassifier.
type Option func(*KeywordClassifier)

// WithTable replaces the built-in keyword table.
func WithTable(t Table) Option {
	return func(k *KeywordClassifier) {
		k.table = t
	}
}

// WithLatency sets the simulated processing latency.
func WithLatency(l Latency) Option {
	return func(k *KeywordClassifier) {
		k.latency = l
	}
}

// NewKeywordClassifier creates a classifier using DefaultTable and
// DefaultLatency unless overridden.
func NewKeywordClassifier(opts ...Option) *KeywordClassifier {
	k := &KeywordClassifier{
		table:   DefaultTable(),
		latency: DefaultLatency,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Table returns the keyword table in use.
func (k *KeywordClassifier) Table() Table {
	return k.table
}

// ShouldSplit implements Classifier.
func (k *KeywordClassifier) ShouldSplit(task string, depth, maxDepth int) bool {
	if depth >= maxDepth {
		return false
	}
	_, ok := k.table.IsComplex(task)
	return ok
}

// Split implements Classifier. The returned slice is a fresh copy.
func (k *KeywordClassifier) Split(task string) []string {
	return append([]string(nil), k.table.SplitCategory(task).Subtasks...)
}

// Execute implements Classifier.
func (k *KeywordClassifier) Execute(ctx context.Context, task string, depth int) (string, error) {
	if err := k.latency.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: processing %q at depth %d: %w", ErrExecution, task, depth, err)
	}
	return k.table.ResultCategory(task).Result, nil
}

// Decision describes what the classifier would do with a task, without
// running it.
type Decision struct {
	Task           string
	Depth          int
	MaxDepth       int
	Split          bool
	ComplexKeyword string
	SplitCategory  string
	Subtasks       []string
	ResultCategory string
	Result         string
}

// Explain returns a dry-run Decision for task.
func (k *KeywordClassifier) Explain(task string, depth, maxDepth int) Decision {
	kw, _ := k.table.IsComplex(task)
	d := Decision{
		Task:           task,
		Depth:          depth,
		MaxDepth:       maxDepth,
		Split:          k.ShouldSplit(task, depth, maxDepth),
		ComplexKeyword: kw,
	}
	result := k.table.ResultCategory(task)
	d.ResultCategory = result.Name
	d.Result = result.Result
	if d.Split {
		split := k.table.SplitCategory(task)
		d.SplitCategory = split.Name
		d.Subtasks = append([]string(nil), split.Subtasks...)
	}
	return d
}
