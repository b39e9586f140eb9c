package engine

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/recursor/internal/logging"
	"github.com/ShayCichocki/recursor/internal/stream"
	"github.com/ShayCichocki/recursor/pkg/models"
)

// Patch carries one unit's updated fields to the tree owner.
// Path is the sequence of child indices from the root; the root's path is empty.
// Unit holds the unit's own fields only. Its children are ignored; the owner
// keeps the children it already has at that position.
type Patch struct {
	Path []int
	Unit *models.WorkUnit
}

// childPath returns path extended with index i, without aliasing path.
func childPath(path []int, i int) []int {
	p := make([]int, len(path)+1)
	copy(p, path)
	p[len(path)] = i
	return p
}

// applyPatch applies p to root and returns the new root.
//
// A patch addressing index len(children) appends; a lower index replaces
// the node in place, keeping its children. Anything else would reorder or
// skip children and is rejected, as is a state change that moves backwards.
func applyPatch(root *models.WorkUnit, p Patch) (*models.WorkUnit, error) {
	if p.Unit == nil {
		return root, fmt.Errorf("patch at %v has no unit", p.Path)
	}

	if len(p.Path) == 0 {
		if root == nil {
			return p.Unit.CopyFields(), nil
		}
		updated, err := replaceFields(root, p.Unit)
		if err != nil {
			return root, fmt.Errorf("root: %w", err)
		}
		return updated, nil
	}

	if root == nil {
		return root, fmt.Errorf("patch at %v arrived before the root", p.Path)
	}

	parent := root
	for depth, idx := range p.Path[:len(p.Path)-1] {
		if idx < 0 || idx >= len(parent.Children) {
			return root, fmt.Errorf("patch at %v: no child %d at level %d", p.Path, idx, depth)
		}
		parent = parent.Children[idx]
	}

	idx := p.Path[len(p.Path)-1]
	switch {
	case idx == len(parent.Children):
		parent.Children = append(parent.Children, p.Unit.CopyFields())
	case idx >= 0 && idx < len(parent.Children):
		updated, err := replaceFields(parent.Children[idx], p.Unit)
		if err != nil {
			return root, fmt.Errorf("patch at %v: %w", p.Path, err)
		}
		parent.Children[idx] = updated
	default:
		return root, fmt.Errorf("patch at %v: index %d out of order (have %d children)", p.Path, idx, len(parent.Children))
	}
	return root, nil
}

// replaceFields returns a copy of next that keeps existing's children.
func replaceFields(existing, next *models.WorkUnit) (*models.WorkUnit, error) {
	if existing.ID != next.ID {
		return nil, fmt.Errorf("id mismatch: have %s, got %s", existing.ID, next.ID)
	}
	if !existing.State.CanTransition(next.State) {
		return nil, fmt.Errorf("unit %s cannot move from %s to %s", existing.ID, existing.State, next.State)
	}
	updated := next.CopyFields()
	updated.Children = existing.Children
	return updated, nil
}

// treeOwner is the single consumer of a run's patches. It owns the
// authoritative tree and is the only component that talks to the sink.
type treeOwner struct {
	root    *models.WorkUnit
	sink    stream.Sink
	log     *logging.Logger
	onFault func()
	stopped bool
	sent    int
}

func newTreeOwner(sink stream.Sink, log *logging.Logger, onFault func()) *treeOwner {
	return &treeOwner{
		sink:    sink,
		log:     log,
		onFault: onFault,
	}
}

// consume applies patches until the channel closes. After a sink failure it
// keeps applying patches, so the tree stays complete, but emits nothing more.
func (t *treeOwner) consume(ctx context.Context, patches <-chan Patch) {
	for p := range patches {
		root, err := applyPatch(t.root, p)
		if err != nil {
			t.log.Errorw("patch_rejected", "path", p.Path, "error", err)
			continue
		}
		t.root = root

		if t.stopped {
			continue
		}
		if err := t.sink.Send(ctx, models.Snapshot{Tree: t.root.Clone()}); err != nil {
			t.stopped = true
			t.log.Warnw("transport_fault", "snapshots_sent", t.sent, "error", err)
			if t.onFault != nil {
				t.onFault()
			}
			continue
		}
		t.sent++
	}
}

// Tree returns a deep copy of the authoritative tree.
func (t *treeOwner) Tree() *models.WorkUnit {
	return t.root.Clone()
}
