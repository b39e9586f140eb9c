package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/recursor/internal/classify"
	"github.com/ShayCichocki/recursor/internal/stream"
	"github.com/ShayCichocki/recursor/pkg/models"
)

// stubClassifier wraps the keyword classifier and injects faults by task text.
type stubClassifier struct {
	*classify.KeywordClassifier
	failOn   map[string]bool
	panicOn  map[string]bool
	delays   map[string]time.Duration
	split    func(task string) []string
	alwaysOn bool

	mu       sync.Mutex
	executed []string
}

func newStub() *stubClassifier {
	return &stubClassifier{
		KeywordClassifier: classify.NewKeywordClassifier(classify.WithLatency(classify.Latency{})),
		failOn:            map[string]bool{},
		panicOn:           map[string]bool{},
		delays:            map[string]time.Duration{},
	}
}

func (s *stubClassifier) ShouldSplit(task string, depth, maxDepth int) bool {
	if s.alwaysOn {
		return true
	}
	return s.KeywordClassifier.ShouldSplit(task, depth, maxDepth)
}

func (s *stubClassifier) Split(task string) []string {
	if s.split != nil {
		return s.split(task)
	}
	return s.KeywordClassifier.Split(task)
}

func (s *stubClassifier) Execute(ctx context.Context, task string, depth int) (string, error) {
	s.mu.Lock()
	s.executed = append(s.executed, task)
	s.mu.Unlock()

	if d := s.delays[task]; d > 0 {
		time.Sleep(d)
	}
	if s.panicOn[task] {
		panic("simulated crash in " + task)
	}
	if s.failOn[task] {
		return "", errors.New("simulated backend outage")
	}
	return s.KeywordClassifier.Execute(ctx, task, depth)
}

func allUnits(root *models.WorkUnit) []*models.WorkUnit {
	var units []*models.WorkUnit
	root.Walk(func(u *models.WorkUnit) bool {
		units = append(units, u)
		return true
	})
	return units
}

func childTasks(u *models.WorkUnit) []string {
	tasks := make([]string, 0, len(u.Children))
	for _, c := range u.Children {
		tasks = append(tasks, c.Task)
	}
	return tasks
}

func TestRun_ScenarioA_PlanTrip(t *testing.T) {
	rec := &stream.Recorder{}
	o := New(newStub(), rec)

	root := o.Run(context.Background(), "Plan a trip to Japan", 2)

	require.Equal(t, models.UnitStateDone, root.State)
	assert.Equal(t, []string{
		"Research and book flights",
		"Find and reserve accommodation",
		"Plan daily activities and itinerary",
		"Calculate total budget and costs",
	}, childTasks(root))
	assert.Contains(t, root.Result, "Subtasks completed: 4")
	assert.True(t, strings.HasPrefix(root.Result, "Analyzed travel requirements."))

	// Depth-1 children split only when their own text has a complexity keyword.
	assert.Len(t, root.Children[0].Children, 3, "research keyword splits the flights task")
	assert.Empty(t, root.Children[1].Children, "accommodation task has no complexity keyword")
	assert.Len(t, root.Children[2].Children, 3, "plan keyword splits the itinerary task")
	assert.Empty(t, root.Children[3].Children, "budget task has no complexity keyword")

	for _, u := range allUnits(root) {
		assert.LessOrEqual(t, u.Depth, 2)
		if u.Depth == 2 {
			assert.Empty(t, u.Children, "no decomposition at the ceiling")
		}
	}

	snaps := rec.Snapshots()
	require.NotEmpty(t, snaps)
	last := snaps[len(snaps)-1].Tree
	assert.Equal(t, root.Count(), last.Count())
	assert.Equal(t, models.UnitStateDone, last.State)
}

func TestRun_ScenarioB_SimpleTask(t *testing.T) {
	rec := &stream.Recorder{}
	o := New(newStub(), rec)

	root := o.Run(context.Background(), "Say hello", 3)

	assert.Equal(t, models.UnitStateDone, root.State)
	assert.Empty(t, root.Children)
	assert.Equal(t, "Task processed successfully. Requirements analyzed and solution prepared.", root.Result)

	// thinking, thinking with result, done
	snaps := rec.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, models.UnitStateThinking, snaps[0].Tree.State)
	assert.Empty(t, snaps[0].Tree.Result)
	assert.Equal(t, models.UnitStateThinking, snaps[1].Tree.State)
	assert.NotEmpty(t, snaps[1].Tree.Result)
	assert.Equal(t, models.UnitStateDone, snaps[2].Tree.State)
}

func TestRun_ScenarioC_CeilingOfOne(t *testing.T) {
	o := New(newStub(), nil)

	root := o.Run(context.Background(), "Plan a trip to Japan", 1)

	require.Len(t, root.Children, 4)
	for _, c := range root.Children {
		assert.Equal(t, 1, c.Depth)
		assert.Empty(t, c.Children, "%q must not split at depth 1 with maxDepth 1", c.Task)
		assert.Equal(t, models.UnitStateDone, c.State)
	}
}

func TestRun_DepthCeilingProperty(t *testing.T) {
	tasks := []string{
		"Plan a trip to Japan",
		"Organize a conference",
		"Research and compare laptops",
		"Say hello",
	}

	for _, task := range tasks {
		for maxDepth := 0; maxDepth <= 3; maxDepth++ {
			t.Run(fmt.Sprintf("%s/max=%d", task, maxDepth), func(t *testing.T) {
				root := New(newStub(), nil).Run(context.Background(), task, maxDepth)

				for _, u := range allUnits(root) {
					assert.LessOrEqual(t, u.Depth, maxDepth)
					if u.Depth == maxDepth {
						assert.Empty(t, u.Children)
					}
					for _, c := range u.Children {
						assert.Equal(t, u.Depth+1, c.Depth)
					}
					assert.True(t, u.State.Terminal(), "unit %q left in %s", u.Task, u.State)
				}
			})
		}
	}
}

func TestRun_CeilingHoldsForGreedyClassifier(t *testing.T) {
	stub := newStub()
	stub.alwaysOn = true

	root := New(stub, nil).Run(context.Background(), "Say hello", 2)

	assert.Equal(t, 2, root.MaxDepth())
	assert.Equal(t, 1+3+9, root.Count())
}

func TestRun_OrderPreservedDespiteLatency(t *testing.T) {
	stub := newStub()
	stub.delays["Research and book flights"] = 30 * time.Millisecond
	stub.delays["Calculate total budget and costs"] = 0

	root := New(stub, nil).Run(context.Background(), "Plan a trip", 1)

	assert.Equal(t, stub.KeywordClassifier.Split("Plan a trip"), childTasks(root))
}

func TestRun_SequentialExecutionOrder(t *testing.T) {
	stub := newStub()

	New(stub, nil).Run(context.Background(), "Plan a trip", 2)

	// Pre-order: a sibling subtree finishes before the next sibling starts.
	want := []string{
		"Plan a trip",
		"Research and book flights",
		"Compare airline prices and schedules",
		"Evaluate flight duration and layovers",
		"Check baggage policies and fees",
		"Find and reserve accommodation",
		"Plan daily activities and itinerary",
		"Research popular attractions and landmarks",
		"Find local restaurants and dining options",
		"Plan transportation between locations",
		"Calculate total budget and costs",
	}
	assert.Equal(t, want, stub.executed)
}

func TestRun_FaultIsolation(t *testing.T) {
	stub := newStub()
	stub.failOn["Find and reserve accommodation"] = true

	root := New(stub, nil).Run(context.Background(), "Plan a trip to Japan", 2)

	require.Len(t, root.Children, 4)
	failed := root.Children[1]
	assert.Equal(t, models.UnitStateFailed, failed.State)
	assert.True(t, strings.HasPrefix(failed.Result, "Error: "), "failed result %q", failed.Result)
	assert.Contains(t, failed.Result, "simulated backend outage")

	for _, i := range []int{0, 2, 3} {
		sibling := root.Children[i]
		assert.Equal(t, models.UnitStateDone, sibling.State, "sibling %q", sibling.Task)
		for _, u := range allUnits(sibling) {
			assert.Equal(t, models.UnitStateDone, u.State)
		}
	}

	assert.Equal(t, models.UnitStateDone, root.State, "a failed child never fails the parent")
	assert.Contains(t, root.Result, "Subtasks completed: 3 of 4 tasks processed successfully (1 failed).")
}

func TestRun_PanicIsRecovered(t *testing.T) {
	stub := newStub()
	stub.panicOn["Compare airline prices and schedules"] = true

	root := New(stub, nil).Run(context.Background(), "Plan a trip", 2)

	flights := root.Children[0]
	require.Len(t, flights.Children, 3)
	crashed := flights.Children[0]
	assert.Equal(t, models.UnitStateFailed, crashed.State)
	assert.Contains(t, crashed.Result, "unexpected fault")
	assert.Contains(t, crashed.Result, "simulated crash")

	assert.Equal(t, models.UnitStateDone, flights.Children[1].State)
	assert.Equal(t, models.UnitStateDone, flights.State)
	assert.Equal(t, models.UnitStateDone, root.State)
}

func TestRun_RootFailure(t *testing.T) {
	stub := newStub()
	stub.failOn["Plan a trip"] = true

	root := New(stub, nil).Run(context.Background(), "Plan a trip", 3)

	assert.Equal(t, models.UnitStateFailed, root.State)
	assert.Empty(t, root.Children)
	assert.Contains(t, root.Result, "execution fault")
}

func TestRun_EmptySplitIsPolicyFault(t *testing.T) {
	stub := newStub()
	stub.split = func(string) []string { return nil }

	root := New(stub, nil).Run(context.Background(), "Plan a trip", 2)

	assert.Equal(t, models.UnitStateFailed, root.State)
	assert.Contains(t, root.Result, ErrSplitPolicy.Error())
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := New(newStub(), nil).Run(ctx, "Plan a trip", 3)

	assert.Equal(t, models.UnitStateFailed, root.State)
	assert.Contains(t, root.Result, "context canceled")
}

func TestRun_CancelMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stub := newStub()

	var cancelOnce sync.Once
	sink := stream.SinkFunc(func(_ context.Context, snap models.Snapshot) error {
		// Cancel as soon as the first child appears.
		if len(snap.Tree.Children) > 0 {
			cancelOnce.Do(cancel)
		}
		return nil
	})

	root := New(stub, sink).Run(ctx, "Plan a trip", 1)

	assert.Equal(t, models.UnitStateFailed, root.State)
	assert.Contains(t, root.Result, ErrCanceled.Error())
	assert.Less(t, len(root.Children), 4)
	for _, u := range allUnits(root) {
		assert.True(t, u.State.Terminal())
	}
}

func TestRun_TransportFaultStopsEmission(t *testing.T) {
	calls := 0
	sink := stream.SinkFunc(func(context.Context, models.Snapshot) error {
		calls++
		if calls == 3 {
			return stream.ErrTransport
		}
		return nil
	})

	stub := newStub()
	root := New(stub, sink).Run(context.Background(), "Plan a trip", 1)

	assert.Equal(t, 3, calls, "no snapshots after the failed one")
	assert.True(t, root.State.Terminal())
	assert.Equal(t, models.UnitStateFailed, root.State)
	assert.Less(t, len(stub.executed), 5, "remaining sub-tasks are skipped")
	for _, u := range allUnits(root) {
		assert.True(t, u.State.Terminal())
	}
}

func TestRun_SnapshotsAreMonotonic(t *testing.T) {
	stub := newStub()
	stub.failOn["Check baggage policies and fees"] = true
	rec := &stream.Recorder{}

	root := New(stub, rec, WithBufferSize(4)).Run(context.Background(), "Plan a trip to Japan", 3)

	rank := map[models.UnitState]int{
		models.UnitStateThinking: 1,
		models.UnitStateDone:     2,
		models.UnitStateFailed:   2,
	}
	lastState := map[string]models.UnitState{}
	hadResult := map[string]bool{}
	position := map[string]string{}

	for i, snap := range rec.Snapshots() {
		require.NotNil(t, snap.Tree)
		seen := map[string]bool{}

		var walk func(u *models.WorkUnit, pos string)
		walk = func(u *models.WorkUnit, pos string) {
			require.False(t, seen[u.ID], "snapshot %d: duplicate id %s", i, u.ID)
			seen[u.ID] = true

			if prev, ok := position[u.ID]; ok {
				require.Equal(t, prev, pos, "snapshot %d: unit %s moved", i, u.ID)
			}
			position[u.ID] = pos

			if prev, ok := lastState[u.ID]; ok {
				require.GreaterOrEqual(t, rank[u.State], rank[prev], "snapshot %d: %s went %s -> %s", i, u.Task, prev, u.State)
				if prev.Terminal() {
					require.Equal(t, prev, u.State)
				}
			}
			lastState[u.ID] = u.State

			if hadResult[u.ID] {
				require.NotEmpty(t, u.Result, "snapshot %d: result of %s vanished", i, u.Task)
			}
			if u.Result != "" {
				hadResult[u.ID] = true
			}
			if u.State == models.UnitStateDone {
				require.NotEmpty(t, u.Result)
			}

			for j, c := range u.Children {
				walk(c, fmt.Sprintf("%s/%d", pos, j))
			}
		}
		walk(snap.Tree, "")
	}

	assert.Equal(t, root.Count(), len(lastState))
}

func TestRun_ReturnsIndependentCopy(t *testing.T) {
	latest := &stream.Latest{}
	root := New(newStub(), latest).Run(context.Background(), "Plan a trip", 1)

	root.Children[0].Result = "mutated"
	assert.NotEqual(t, "mutated", latest.Snapshot().Tree.Children[0].Result)
}

func TestRun_IDsUnique(t *testing.T) {
	root := New(newStub(), nil).Run(context.Background(), "Plan a trip to Japan", 3)

	ids := map[string]bool{}
	for _, u := range allUnits(root) {
		require.False(t, ids[u.ID], "duplicate id %s", u.ID)
		ids[u.ID] = true
	}
}

func TestSummarize(t *testing.T) {
	done := &models.WorkUnit{State: models.UnitStateDone}
	failed := &models.WorkUnit{State: models.UnitStateFailed}

	assert.Equal(t, "ok\n\nSubtasks completed: 2 tasks processed successfully.",
		summarize("ok", []*models.WorkUnit{done, done}))
	assert.Equal(t, "ok\n\nSubtasks completed: 1 of 2 tasks processed successfully (1 failed).",
		summarize("ok", []*models.WorkUnit{done, failed}))
}
