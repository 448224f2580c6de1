// Package generation tracks which writer generations are still observed by readers.
//
// The writer advances the generation at safe points. Every reader takes a
// Guard at the current generation before touching shared state and releases it
// when done. OldestUsedGeneration tells the writer which superseded memory is
// no longer reachable by any reader.
package generation

import "sync/atomic"

// hold counts the readers of one generation.
// A negative count marks the hold as retired, no reader may acquire it again.
type hold struct {
	refCount   atomic.Int64
	generation uint64
	next       *hold // writer-only
}

func (h *hold) acquire() bool {
	for {
		n := h.refCount.Load()
		if n < 0 {
			return false
		}
		if h.refCount.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (h *hold) retire() bool {
	return h.refCount.CompareAndSwap(0, -1)
}

// Guard pins a generation for a reader.
type Guard struct {
	h *hold
}

// Generation returns the pinned generation.
func (g *Guard) Generation() uint64 {
	if g.h == nil {
		return 0
	}
	return g.h.generation
}

// Release unpins the generation. Calling Release more than once is a no-op.
func (g *Guard) Release() {
	if g.h == nil {
		return
	}
	g.h.refCount.Add(-1)
	g.h = nil
}

// Handler is a single-writer, multi-reader generation tracker.
type Handler struct {
	last       atomic.Pointer[hold]
	current    atomic.Uint64
	oldestUsed atomic.Uint64

	first *hold // writer-only, oldest hold not yet retired
}

// NewHandler creates a handler at generation 0.
func NewHandler() *Handler {
	h := &hold{}
	gh := &Handler{first: h}
	gh.last.Store(h)
	return gh
}

// TakeGuard pins the current generation. It never blocks.
func (gh *Handler) TakeGuard() Guard {
	for {
		h := gh.last.Load()
		if h.acquire() {
			return Guard{h: h}
		}
	}
}

// CurrentGeneration returns the generation new readers will pin.
func (gh *Handler) CurrentGeneration() uint64 {
	return gh.current.Load()
}

// OldestUsedGeneration returns the oldest generation a reader may still observe.
// Memory superseded at a generation strictly below this value is safe to reuse.
func (gh *Handler) OldestUsedGeneration() uint64 {
	return gh.oldestUsed.Load()
}

// IncGeneration advances the generation and retires unused holds. Writer-only.
func (gh *Handler) IncGeneration() {
	next := gh.current.Load() + 1
	h := &hold{generation: next}

	gh.last.Load().next = h
	gh.last.Store(h)
	gh.current.Store(next)

	gh.UpdateOldestUsedGeneration()
}

// UpdateOldestUsedGeneration retires every hold without readers, oldest first,
// and recomputes the oldest used generation. Writer-only.
func (gh *Handler) UpdateOldestUsedGeneration() {
	last := gh.last.Load()
	for gh.first != last {
		if !gh.first.retire() {
			break
		}
		gh.first = gh.first.next
	}
	gh.oldestUsed.Store(gh.first.generation)
}
