// Package models defines the work unit tree shared by the engine, its sinks
// and every presentation layer.
package models

import (
	"time"

	"github.com/google/uuid"
)

// UnitState represents the lifecycle state of a work unit.
type UnitState string

const (
	// UnitStatePending indicates the unit has not been started.
	// Units are created already thinking, so this is never emitted in practice.
	UnitStatePending UnitState = "pending"
	// UnitStateThinking indicates the unit is executing or waiting on its children.
	UnitStateThinking UnitState = "thinking"
	// UnitStateDone indicates the unit and all of its children settled.
	UnitStateDone UnitState = "done"
	// UnitStateFailed indicates the unit hit a fault of its own.
	UnitStateFailed UnitState = "failed"
)

// Valid returns true if the state is a known value.
func (s UnitState) Valid() bool {
	switch s {
	case UnitStatePending, UnitStateThinking, UnitStateDone, UnitStateFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true for states a unit never leaves.
func (s UnitState) Terminal() bool {
	return s == UnitStateDone || s == UnitStateFailed
}

// CanTransition reports whether moving from s to next keeps the lifecycle
// forward-only. Staying in the same non-terminal state is allowed so that
// a thinking unit can publish its result before settling.
func (s UnitState) CanTransition(next UnitState) bool {
	switch s {
	case UnitStatePending:
		return next == UnitStatePending || next == UnitStateThinking
	case UnitStateThinking:
		return next == UnitStateThinking || next == UnitStateDone || next == UnitStateFailed
	default:
		return false
	}
}

// WorkUnit is one node of an execution tree.
type WorkUnit struct {
	// ID is unique across a run and never reused.
	ID string `json:"id"`
	// Depth is the distance from the root (root = 0).
	Depth int `json:"depth"`
	// Task is the description being processed.
	Task string `json:"task"`
	// Result is empty until the unit has executed once.
	Result string `json:"result"`
	// State is the lifecycle state.
	State UnitState `json:"state"`
	// Children holds sub-task units in issue order.
	Children []*WorkUnit `json:"children"`
	// CreatedAt is for observability only.
	CreatedAt time.Time `json:"created_at"`
}

// NewWorkUnit creates a thinking unit with a fresh id.
func NewWorkUnit(task string, depth int) *WorkUnit {
	return &WorkUnit{
		ID:        uuid.NewString(),
		Depth:     depth,
		Task:      task,
		State:     UnitStateThinking,
		Children:  []*WorkUnit{},
		CreatedAt: time.Now(),
	}
}

// Clone returns a deep copy of the unit and its descendants.
// Nil children slices come back empty so they encode as [] rather than null.
func (u *WorkUnit) Clone() *WorkUnit {
	if u == nil {
		return nil
	}
	c := *u
	c.Children = make([]*WorkUnit, 0, len(u.Children))
	for _, child := range u.Children {
		c.Children = append(c.Children, child.Clone())
	}
	return &c
}

// CopyFields returns a copy of the unit's own fields with no children.
func (u *WorkUnit) CopyFields() *WorkUnit {
	c := *u
	c.Children = []*WorkUnit{}
	return &c
}

// Walk visits the unit and every descendant in pre-order.
// Returning false from fn stops descent into that node's children.
func (u *WorkUnit) Walk(fn func(*WorkUnit) bool) {
	if u == nil {
		return
	}
	if !fn(u) {
		return
	}
	for _, child := range u.Children {
		child.Walk(fn)
	}
}

// Count returns the number of units in the subtree rooted at u.
func (u *WorkUnit) Count() int {
	n := 0
	u.Walk(func(*WorkUnit) bool {
		n++
		return true
	})
	return n
}

// MaxDepth returns the greatest depth found in the subtree.
func (u *WorkUnit) MaxDepth() int {
	deepest := 0
	u.Walk(func(w *WorkUnit) bool {
		if w.Depth > deepest {
			deepest = w.Depth
		}
		return true
	})
	return deepest
}

// StateCounts tallies units in the subtree by state.
func (u *WorkUnit) StateCounts() map[UnitState]int {
	counts := make(map[UnitState]int)
	u.Walk(func(w *WorkUnit) bool {
		counts[w.State]++
		return true
	})
	return counts
}

// Find returns the unit with the given id, or nil.
func (u *WorkUnit) Find(id string) *WorkUnit {
	var found *WorkUnit
	u.Walk(func(w *WorkUnit) bool {
		if found != nil {
			return false
		}
		if w.ID == id {
			found = w
			return false
		}
		return true
	})
	return found
}

// Snapshot is a full copy of a run's tree at one point in time.
type Snapshot struct {
	Tree *WorkUnit `json:"tree"`
}
