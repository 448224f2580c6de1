package hnsw

import (
	"cmp"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/hupe1980/hnswgraph/internal/arena"
)

// Remove detaches docID using the configured removal strategy. Writer-only.
//
// With HardDelete the node is unlinked at once and its former neighbors are
// reconnected with each other. With SoftDelete the node is only flagged: it
// disappears from search results but keeps routing traffic until Vacuum.
func (g *Graph) Remove(docID uint32) error {
	ref := g.nodeRef(docID)
	if !ref.exists() || ref.removed() {
		return ErrNotFound
	}

	if g.opts.Removal == SoftDelete {
		g.nodeRefs.Set(docID, uint64(ref|removedBit))
		g.pendingPurge.Add(docID)
		g.removedCount.Add(1)
		return nil
	}

	defer g.safePoint()
	return g.purge(docID)
}

// Vacuum purges every soft-removed node and strips links to nodes that no
// longer exist at the linked layer. It returns the number of purged nodes.
// Writer-only.
func (g *Graph) Vacuum() (int, error) {
	defer g.safePoint()

	purged := 0
	for _, docID := range g.pendingPurge.ToArray() {
		if err := g.purge(docID); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, g.sweepDangling()
}

// PendingPurge returns the number of soft-removed nodes waiting for Vacuum.
// Writer-only.
func (g *Graph) PendingPurge() uint64 {
	return g.pendingPurge.GetCardinality()
}

// purge unlinks docID from the graph and reconnects its former neighbors.
// It is fail closed: nothing is published unless every array was allocated.
func (g *Graph) purge(docID uint32) error {
	ref := g.nodeRef(docID)
	lv := g.levelArray(ref)
	if lv == nil {
		return ErrNotFound
	}
	top := len(lv) - 1

	p := newLinkPlan()
	var topNeighbors []uint32

	for l := top; l >= 0; l-- {
		own := g.links.Get(arena.Ref(lv[l]))

		neighbors := make([]uint32, 0, len(own))
		for _, n := range own {
			if n == docID {
				continue
			}
			if _, ok := p.current(g, n, l); !ok {
				continue
			}
			neighbors = append(neighbors, n)
			// Links are symmetric, so this reaches every inbound link.
			p.unlink(g, n, docID, l)
		}
		if l == top {
			topNeighbors = neighbors
		}

		g.planReconnect(p, neighbors, l)
	}

	entry := g.entry.Load()
	if epID, _, ok := unpackEntry(entry); ok && epID == docID {
		entry = g.pickEntry(docID, topNeighbors)
	}

	if err := g.allocate(p); err != nil {
		return fmt.Errorf("remove %d: %w", docID, err)
	}

	g.publish(p)
	g.entry.Store(entry)
	g.nodeRefs.Set(docID, 0)

	for l := range lv {
		g.links.Hold(arena.Ref(lv[l]))
	}
	g.levels.Hold(ref.levels())

	g.nodeCount.Add(-1)
	if ref.removed() {
		g.removedCount.Add(-1)
		g.pendingPurge.Remove(docID)
	}
	g.dirty = true
	return nil
}

// planReconnect links former neighbors of a removed node with each other,
// closest pairs first, as long as both sides have room.
// Pairs that cannot be compared are skipped.
func (g *Graph) planReconnect(p *linkPlan, neighbors []uint32, level int) {
	if len(neighbors) < 2 {
		return
	}

	type pair struct {
		a, b uint32
		d    float32
	}

	pairs := make([]pair, 0, len(neighbors)*(len(neighbors)-1)/2)
	for i, a := range neighbors {
		for _, b := range neighbors[i+1:] {
			d, err := g.between(a, b)
			if err != nil {
				continue
			}
			pairs = append(pairs, pair{a: a, b: b, d: d})
		}
	}
	slices.SortFunc(pairs, func(x, y pair) int {
		return cmp.Or(cmp.Compare(x.d, y.d), cmp.Compare(x.a, y.a), cmp.Compare(x.b, y.b))
	})

	m := g.opts.maxLinks(level)
	for _, pr := range pairs {
		la, _ := p.current(g, pr.a, level)
		lb, _ := p.current(g, pr.b, level)
		if len(la) >= m || len(lb) >= m {
			continue
		}
		if !slices.Contains(la, pr.b) {
			p.set(pr.a, level, appendLink(la, pr.b))
		}
		if !slices.Contains(lb, pr.a) {
			p.set(pr.b, level, appendLink(lb, pr.a))
		}
	}
}

// pickEntry chooses a new entry point when docID, the current one, is removed.
// A former neighbor at the top layer is as high as any node can be; otherwise
// every node is scanned for the highest level.
func (g *Graph) pickEntry(docID uint32, topNeighbors []uint32) uint64 {
	for _, n := range topNeighbors {
		if level := g.nodeLevel(g.nodeRef(n)); level >= 0 {
			return packEntry(n, level)
		}
	}

	var (
		best      uint64
		bestLevel = -1
	)
	g.nodeRefs.Range(func(id uint32, v uint64) bool {
		if id == docID {
			return true
		}
		if level := g.nodeLevel(nodeRef(v)); level > bestLevel {
			best, bestLevel = packEntry(id, level), level
		}
		return bestLevel < MaxLevel
	})
	return best
}

// sweepDangling removes links to nodes that are gone or no longer reach the
// linked layer.
func (g *Graph) sweepDangling() error {
	p := newLinkPlan()

	g.nodeRefs.Range(func(docID uint32, v uint64) bool {
		lv := g.levelArray(nodeRef(v))
		for l := range lv {
			links := g.links.Get(arena.Ref(atomic.LoadUint32(&lv[l])))
			var kept []uint32
			for i, n := range links {
				if g.nodeLevel(g.nodeRef(n)) >= l {
					if kept != nil {
						kept = append(kept, n)
					}
					continue
				}
				if kept == nil {
					kept = append(make([]uint32, 0, len(links)), links[:i]...)
				}
			}
			if kept != nil {
				p.set(docID, l, kept)
			}
		}
		return true
	})

	if err := g.allocate(p); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	g.publish(p)
	return nil
}
