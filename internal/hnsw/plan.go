package hnsw

import (
	"slices"
	"sync/atomic"

	"github.com/hupe1980/hnswgraph/internal/arena"
)

type slotKey struct {
	docID uint32
	level int
}

type linkChange struct {
	slotKey
	links []uint32
	ref   arena.Ref // set by allocate
}

// linkPlan collects link-array replacements of existing nodes.
// Nothing in a plan is visible to readers until publish.
type linkPlan struct {
	index   map[slotKey]int
	changes []linkChange
}

func newLinkPlan() *linkPlan {
	return &linkPlan{index: make(map[slotKey]int)}
}

// current returns the planned links of docID at level, falling back to the
// published ones. It reports false if the node has no such layer.
// The returned slice must not be modified.
func (p *linkPlan) current(g *Graph, docID uint32, level int) ([]uint32, bool) {
	if i, ok := p.index[slotKey{docID: docID, level: level}]; ok {
		return p.changes[i].links, true
	}
	lv := g.levelArray(g.nodeRef(docID))
	if level >= len(lv) {
		return nil, false
	}
	return g.links.Get(arena.Ref(atomic.LoadUint32(&lv[level]))), true
}

func (p *linkPlan) set(docID uint32, level int, links []uint32) {
	key := slotKey{docID: docID, level: level}
	if i, ok := p.index[key]; ok {
		p.changes[i].links = links
		return
	}
	p.index[key] = len(p.changes)
	p.changes = append(p.changes, linkChange{slotKey: key, links: links})
}

// unlink plans the removal of target from the links of docID at level.
func (p *linkPlan) unlink(g *Graph, docID, target uint32, level int) {
	cur, ok := p.current(g, docID, level)
	if !ok {
		return
	}
	if i := slices.Index(cur, target); i >= 0 {
		p.set(docID, level, slices.Delete(slices.Clone(cur), i, i+1))
	}
}

// allocate copies every planned link array into the link arena.
// On failure nothing stays allocated.
func (g *Graph) allocate(p *linkPlan) error {
	for i := range p.changes {
		ref, err := g.links.Add(p.changes[i].links)
		if err != nil {
			for j := 0; j < i; j++ {
				g.links.Free(p.changes[j].ref)
				p.changes[j].ref = 0
			}
			return err
		}
		p.changes[i].ref = ref
	}
	return nil
}

// publish swaps the allocated link arrays into their level-array slots and
// holds the superseded ones.
func (g *Graph) publish(p *linkPlan) {
	for _, c := range p.changes {
		lv := g.levelArray(g.nodeRef(c.docID))
		old := atomic.SwapUint32(&lv[c.level], uint32(c.ref))
		g.links.Hold(arena.Ref(old))
	}
	if len(p.changes) > 0 {
		g.dirty = true
	}
}

// appendLink returns a copy of links with id appended.
func appendLink(links []uint32, id uint32) []uint32 {
	out := make([]uint32, len(links), len(links)+1)
	copy(out, links)
	return append(out, id)
}

func docIDs(candidates []Candidate) []uint32 {
	ids := make([]uint32, len(candidates))
	for i, c := range candidates {
		ids[i] = c.DocID
	}
	return ids
}
