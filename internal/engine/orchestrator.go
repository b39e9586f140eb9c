// Package engine runs a task as a tree of recursively decomposed work units
// and streams the tree as it changes.
//
// Recursion runs on the caller's goroutine and processes siblings strictly in
// order. Every mutation is sent as a Patch to a single tree owner that applies
// it and hands a full snapshot to the sink, so snapshot order always matches
// mutation order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/recursor/internal/classify"
	"github.com/ShayCichocki/recursor/internal/logging"
	"github.com/ShayCichocki/recursor/internal/stream"
	"github.com/ShayCichocki/recursor/pkg/models"
)

var (
	// ErrSplitPolicy marks a splitter that broke its contract.
	ErrSplitPolicy = errors.New("split policy fault")
	// ErrCanceled marks a unit that stopped issuing sub-tasks because the run ended.
	ErrCanceled = errors.New("run canceled")
	// ErrUnexpected marks a recovered panic.
	ErrUnexpected = errors.New("unexpected fault")
)

// Orchestrator drives runs. It holds no per-run state and may be shared.
type Orchestrator struct {
	classifier classify.Classifier
	sink       stream.Sink
	log        *logging.Logger
	bufferSize int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default discards output.
func WithLogger(log *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// WithBufferSize sets the patch channel buffer. The default 0 hands each
// patch directly to the tree owner.
func WithBufferSize(n int) Option {
	return func(o *Orchestrator) {
		o.bufferSize = n
	}
}

// New creates an Orchestrator. A nil sink discards snapshots.
func New(classifier classify.Classifier, sink stream.Sink, opts ...Option) *Orchestrator {
	if sink == nil {
		sink = stream.Discard
	}
	o := &Orchestrator{
		classifier: classifier,
		sink:       sink,
		log:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes task to completion and returns the settled root.
//
// Run never panics and never returns an unsettled tree: the root and every
// descendant end in done or failed. Canceling ctx stops new sub-tasks from
// being issued; units cut short end as failed. A sink error stops further
// snapshots and cancels the remaining work the same way.
func (o *Orchestrator) Run(ctx context.Context, task string, maxDepth int) *models.WorkUnit {
	if maxDepth < 0 {
		maxDepth = 0
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	emitter := newPatchEmitter(o.bufferSize)
	owner := newTreeOwner(o.sink, o.log, cancel)

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		owner.consume(ctx, emitter.Patches())
	}()

	r := &run{
		classifier: o.classifier,
		emitter:    emitter,
		log:        o.log,
		maxDepth:   maxDepth,
	}

	start := time.Now()
	o.log.Infow("run_started", "task", task, "max_depth", maxDepth)

	local := r.execute(runCtx, nil, task, 0)

	emitter.Close()
	<-consumed

	root := owner.Tree()
	if root == nil {
		root = local
	}

	counts := root.StateCounts()
	o.log.Infow("run_finished",
		"root", root.ID,
		"state", root.State,
		"units", root.Count(),
		"failed", counts[models.UnitStateFailed],
		"patches", emitter.Sent(),
		"snapshots", owner.sent,
		"duration", time.Since(start),
	)
	return root
}

// run holds the state shared by every node of one execution.
type run struct {
	classifier classify.Classifier
	emitter    *patchEmitter
	log        *logging.Logger
	maxDepth   int
}

// emit publishes the unit's current fields at path.
func (r *run) emit(path []int, unit *models.WorkUnit) {
	r.emitter.Emit(Patch{Path: path, Unit: unit.CopyFields()})
}

// execute creates, processes and settles one unit. Faults in this unit are
// recovered here and never reach the parent.
func (r *run) execute(ctx context.Context, path []int, task string, depth int) (unit *models.WorkUnit) {
	unit = models.NewWorkUnit(task, depth)
	r.emit(path, unit)
	r.log.Debugw("unit_started", "id", unit.ID, "depth", depth, "task", task)

	defer func() {
		if rec := recover(); rec != nil {
			r.fail(path, unit, fmt.Errorf("%w: %v", ErrUnexpected, rec))
		}
	}()

	if err := r.process(ctx, path, unit); err != nil {
		r.fail(path, unit, err)
	}
	return unit
}

// process runs steps that may fault: execution, decomposition and aggregation.
func (r *run) process(ctx context.Context, path []int, unit *models.WorkUnit) error {
	result, err := r.classifier.Execute(ctx, unit.Task, unit.Depth)
	if err != nil {
		if !errors.Is(err, classify.ErrExecution) {
			err = fmt.Errorf("%w: %w", classify.ErrExecution, err)
		}
		return err
	}
	unit.Result = result
	r.emit(path, unit)

	// The ceiling is checked here as well so a custom classifier cannot
	// recurse without bound.
	if unit.Depth >= r.maxDepth || !r.classifier.ShouldSplit(unit.Task, unit.Depth, r.maxDepth) {
		r.settle(path, unit)
		return nil
	}

	subtasks := r.classifier.Split(unit.Task)
	if len(subtasks) == 0 {
		return fmt.Errorf("%w: no sub-tasks for %q", ErrSplitPolicy, unit.Task)
	}
	r.log.Debugw("unit_split", "id", unit.ID, "depth", unit.Depth, "subtasks", len(subtasks))

	children := make([]*models.WorkUnit, 0, len(subtasks))
	for i, sub := range subtasks {
		if err := ctx.Err(); err != nil {
			unit.Children = children
			return fmt.Errorf("%w after %d of %d sub-tasks: %w", ErrCanceled, i, len(subtasks), err)
		}
		children = append(children, r.execute(ctx, childPath(path, i), sub, unit.Depth+1))
	}

	unit.Children = children
	unit.Result = summarize(result, children)
	r.settle(path, unit)
	return nil
}

// settle marks the unit done and publishes it.
func (r *run) settle(path []int, unit *models.WorkUnit) {
	unit.State = models.UnitStateDone
	r.emit(path, unit)
	r.log.Debugw("unit_done", "id", unit.ID, "depth", unit.Depth, "children", len(unit.Children))
}

// fail marks the unit failed and publishes it. A unit that already settled
// is left alone.
func (r *run) fail(path []int, unit *models.WorkUnit, err error) {
	if unit.State.Terminal() {
		r.log.Errorw("fault_after_settle", "id", unit.ID, "state", unit.State, "error", err)
		return
	}
	unit.State = models.UnitStateFailed
	unit.Result = "Error: " + err.Error()
	r.emit(path, unit)
	r.log.Warnw("unit_failed", "id", unit.ID, "depth", unit.Depth, "task", unit.Task, "error", err)
}

// summarize appends the sub-task count to a parent's own result. Child
// results are not merged; only how many settled each way is reported.
func summarize(result string, children []*models.WorkUnit) string {
	failed := 0
	for _, c := range children {
		if c.State == models.UnitStateFailed {
			failed++
		}
	}
	if failed == 0 {
		return fmt.Sprintf("%s\n\nSubtasks completed: %d tasks processed successfully.", result, len(children))
	}
	return fmt.Sprintf("%s\n\nSubtasks completed: %d of %d tasks processed successfully (%d failed).",
		result, len(children)-failed, len(children), failed)
}
