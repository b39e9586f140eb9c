package engine

import (
	"sync/atomic"
)

// patchEmitter is the run-scoped channel every unit reports its mutations on.
// Unlike a UI event bus it never drops: a lost patch would leave the tree
// owner with a stale node, so Emit blocks until the owner takes the patch.
type patchEmitter struct {
	patches chan Patch
	sent    atomic.Uint64
}

// newPatchEmitter creates an emitter with the given buffer size.
// A size of 0 makes every Emit a hand-off to the owner.
func newPatchEmitter(bufferSize int) *patchEmitter {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &patchEmitter{
		patches: make(chan Patch, bufferSize),
	}
}

// Emit sends a patch to the owner.
func (e *patchEmitter) Emit(p Patch) {
	e.patches <- p
	e.sent.Add(1)
}

// Sent returns the number of patches emitted so far.
func (e *patchEmitter) Sent() uint64 {
	return e.sent.Load()
}

// Patches returns the receive side for the owner.
func (e *patchEmitter) Patches() <-chan Patch {
	return e.patches
}

// Close ends the stream. It must be called once the recursion has returned.
func (e *patchEmitter) Close() {
	close(e.patches)
}
