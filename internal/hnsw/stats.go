package hnsw

import (
	"slices"
	"sync/atomic"

	"github.com/hupe1980/hnswgraph/internal/arena"
)

// Node returns a copied snapshot of docID, including soft-removed nodes.
func (g *Graph) Node(docID uint32) (NodeInfo, bool) {
	guard := g.gens.TakeGuard()
	defer guard.Release()

	ref := g.nodeRef(docID)
	lv := g.levelArray(ref)
	if lv == nil {
		return NodeInfo{}, false
	}

	info := NodeInfo{
		DocID:   docID,
		Level:   len(lv) - 1,
		Removed: ref.removed(),
		Links:   make([][]uint32, len(lv)),
	}
	for l := range lv {
		info.Links[l] = slices.Clone(g.links.Get(arena.Ref(atomic.LoadUint32(&lv[l]))))
	}
	return info, true
}

// EntryPoint returns the current entry point and its level.
func (g *Graph) EntryPoint() (docID uint32, level int, ok bool) {
	return g.entryPoint()
}

// Stats returns statistics about the graph. It walks every node.
func (g *Graph) Stats() Stats {
	guard := g.gens.TakeGuard()
	defer guard.Release()

	st := Stats{
		Nodes:            g.Len(),
		Removed:          int(g.removedCount.Load()),
		MaxLevel:         -1,
		NodeArena:        g.levels.Stats(),
		LinkArena:        g.links.Stats(),
		Generation:       guard.Generation(),
		OldestGeneration: g.gens.OldestUsedGeneration(),
		Searches:         g.searches.Load(),
		Scored:           g.scored.Load(),
	}
	if ep, level, ok := g.entryPoint(); ok {
		st.EntryPoint = ep
		st.MaxLevel = level
	}

	g.nodeRefs.Range(func(_ uint32, v uint64) bool {
		lv := g.levelArray(nodeRef(v))
		for l := range lv {
			for len(st.Levels) <= l {
				st.Levels = append(st.Levels, LevelStats{Level: len(st.Levels)})
			}
			st.Levels[l].Nodes++
			st.Levels[l].Connections += len(g.links.Get(arena.Ref(atomic.LoadUint32(&lv[l]))))
		}
		return true
	})

	for i := range st.Levels {
		if st.Levels[i].Nodes > 0 {
			st.Levels[i].AvgConnections = float64(st.Levels[i].Connections) / float64(st.Levels[i].Nodes)
		}
	}
	return st
}
