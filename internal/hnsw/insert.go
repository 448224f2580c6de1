package hnsw

import (
	"fmt"
	"math"
	"slices"

	"github.com/hupe1980/hnswgraph/distance"
	"github.com/hupe1980/hnswgraph/internal/arena"
	"github.com/hupe1980/hnswgraph/internal/searcher"
)

// insertPlan is a fully computed insertion waiting to be committed.
type insertPlan struct {
	docID uint32
	level int
	own   [][]uint32 // links of the new node per layer
	links *linkPlan  // back-links of the selected neighbors
}

// Insert adds docID to the graph, reading its vector from the store. Writer-only.
//
// Insert is fail closed: on error no change is visible to readers. A
// soft-removed node with the same id is purged first and stays purged if
// the insertion then fails; it was already hidden from search.
func (g *Graph) Insert(docID uint32) error {
	defer g.safePoint()
	return g.insert(docID)
}

// InsertBatch inserts docIDs in order and publishes a single generation.
// It returns the number of documents inserted before the first error.
func (g *Graph) InsertBatch(docIDs []uint32) (int, error) {
	defer g.safePoint()
	for i, id := range docIDs {
		if err := g.insert(id); err != nil {
			return i, err
		}
	}
	return len(docIDs), nil
}

// Update re-links docID after its vector changed in the store. Writer-only.
func (g *Graph) Update(docID uint32) error {
	ref := g.nodeRef(docID)
	if !ref.exists() || ref.removed() {
		return ErrNotFound
	}
	if _, err := g.checkVector(docID); err != nil {
		return err
	}

	defer g.safePoint()
	if err := g.purge(docID); err != nil {
		return err
	}
	return g.insert(docID)
}

func (g *Graph) insert(docID uint32) error {
	ref := g.nodeRef(docID)
	if ref.exists() && !ref.removed() {
		return ErrAlreadyExists
	}

	vec, err := g.checkVector(docID)
	if err != nil {
		return err
	}

	if ref.removed() {
		// The soft-removed node is purged so the id can be reused.
		if err := g.purge(docID); err != nil {
			return err
		}
	}

	p, err := g.planInsert(docID, vec, g.randomLevel())
	if err != nil {
		return err
	}
	return g.commitInsert(p)
}

// checkVector fetches and validates the vector of docID.
func (g *Graph) checkVector(docID uint32) ([]float32, error) {
	vec, ok := g.vector(docID)
	if !ok {
		return nil, &ErrMissingVector{DocID: docID}
	}
	if dim := g.vectors.Dimension(); dim > 0 && len(vec) != dim {
		return nil, &distance.DimensionMismatchError{Expected: dim, Actual: len(vec)}
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector for document %d", ErrInvalidVector, docID)
	}
	return vec, nil
}

// writerScorer scores documents against vec and surfaces comparison errors.
func (g *Graph) writerScorer(vec []float32) scorer {
	return func(docID uint32) (float32, bool, error) {
		v, ok := g.vector(docID)
		if !ok {
			return 0, false, nil
		}
		d, err := g.dist.Distance(vec, v)
		if err != nil {
			return 0, false, fmt.Errorf("document %d: %w", docID, err)
		}
		return d, true, nil
	}
}

// planInsert runs every search and selection of an insertion without mutating the graph.
func (g *Graph) planInsert(docID uint32, vec []float32, level int) (*insertPlan, error) {
	p := &insertPlan{
		docID: docID,
		level: level,
		own:   make([][]uint32, level+1),
		links: newLinkPlan(),
	}

	epID, epLevel, ok := g.entryPoint()
	if !ok {
		return p, nil
	}

	score := g.writerScorer(vec)
	epDist, found, err := score(epID)
	if err != nil {
		return nil, err
	}
	if !found {
		epDist = math.MaxFloat32
	}

	cur := Candidate{DocID: epID, Distance: epDist}
	for l := epLevel; l > level; l-- {
		if cur, err = g.greedySearch(score, cur, l); err != nil {
			return nil, err
		}
	}

	s := searcher.Get()
	defer searcher.Put(s)

	entries := []Candidate{cur}
	for l := min(level, epLevel); l >= 0; l-- {
		if err := g.searchLayer(s, score, entries, l, g.opts.NeighborsToExploreAtConstruction, true); err != nil {
			return nil, err
		}
		s.Items = s.Results.Drain(s.Items[:0])
		if len(s.Items) == 0 {
			continue
		}

		found := make([]Candidate, len(s.Items))
		for i, item := range s.Items {
			found[i] = candidateOf(item)
		}

		selected := g.selector.Select(slices.Clone(found), g.opts.maxLinks(l), g.between)
		p.own[l] = docIDs(selected)

		for _, nb := range selected {
			if err := g.planBackLink(p, nb, docID, l); err != nil {
				return nil, err
			}
		}
		entries = found
	}

	return p, nil
}

// planBackLink adds docID to the links of nb at level, pruning on overflow.
//
// Links stay symmetric: whoever is pruned from the list of nb also loses its
// link to nb, so removing a node reaches every inbound link through its own
// lists. If docID itself is pruned, nb is dropped from its new links.
func (g *Graph) planBackLink(p *insertPlan, nb Candidate, docID uint32, level int) error {
	existing, ok := p.links.current(g, nb.DocID, level)
	if !ok {
		p.dropOwn(nb.DocID, level)
		return nil
	}
	if slices.Contains(existing, docID) {
		return nil
	}

	m := g.opts.maxLinks(level)
	if len(existing) < m {
		p.links.set(nb.DocID, level, appendLink(existing, docID))
		return nil
	}

	nbVec, ok := g.vector(nb.DocID)
	if !ok {
		p.dropOwn(nb.DocID, level)
		return nil
	}
	score := g.writerScorer(nbVec)

	cands := make([]Candidate, 0, len(existing)+1)
	for _, id := range existing {
		// Dangling links are dropped while the list is rebuilt anyway.
		if g.nodeLevel(g.nodeRef(id)) < level {
			continue
		}
		d, ok, err := score(id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		cands = append(cands, Candidate{DocID: id, Distance: d})
	}
	cands = append(cands, Candidate{DocID: docID, Distance: nb.Distance})

	if len(cands) > m {
		cands = p.keepConnected(g, cands, g.selector.Select(slices.Clone(cands), m, g.between), nb.DocID, docID, level)
	}
	kept := docIDs(cands)
	p.links.set(nb.DocID, level, kept)

	if !slices.Contains(kept, docID) {
		p.dropOwn(nb.DocID, level)
	}
	for _, id := range existing {
		if !slices.Contains(kept, id) {
			p.links.unlink(g, id, nb.DocID, level)
		}
	}
	return nil
}

// keepConnected swaps pruned candidates whose only link at level is nb back
// into selected, replacing the farthest candidates that have other links.
// Without it symmetric pruning can cut a node off the layer.
func (p *insertPlan) keepConnected(g *Graph, all, selected []Candidate, nb, docID uint32, level int) []Candidate {
	onlyLink := func(id uint32) bool {
		if id == docID {
			return len(p.own[level]) == 1
		}
		cur, ok := p.links.current(g, id, level)
		return ok && len(cur) == 1 && cur[0] == nb
	}

	pinned := make(map[uint32]bool)
	for _, c := range all {
		if slices.ContainsFunc(selected, func(s Candidate) bool { return s.DocID == c.DocID }) || !onlyLink(c.DocID) {
			continue
		}

		victim := -1
		for i, s := range selected {
			if pinned[s.DocID] || onlyLink(s.DocID) {
				continue
			}
			if victim < 0 || selected[victim].Less(s) {
				victim = i
			}
		}
		if victim < 0 {
			break
		}
		selected[victim] = c
		pinned[c.DocID] = true
	}
	return selected
}

// dropOwn removes nb from the planned links of the new node at level.
func (p *insertPlan) dropOwn(nb uint32, level int) {
	p.own[level] = slices.DeleteFunc(p.own[level], func(id uint32) bool { return id == nb })
}

// commitInsert allocates every array of the plan and publishes the node.
func (g *Graph) commitInsert(p *insertPlan) error {
	ownRefs := make([]uint32, len(p.own))

	var (
		levelRef arena.Ref
		err      error
		n        int
	)
	for ; n < len(p.own); n++ {
		var ref arena.Ref
		if ref, err = g.links.Add(p.own[n]); err != nil {
			break
		}
		ownRefs[n] = uint32(ref)
	}
	if err == nil {
		levelRef, err = g.levels.Add(ownRefs)
	}
	if err == nil {
		err = g.allocate(p.links)
	}
	if err != nil {
		for i := 0; i < n; i++ {
			g.links.Free(arena.Ref(ownRefs[i]))
		}
		g.levels.Free(levelRef)
		return fmt.Errorf("insert %d: %w", p.docID, err)
	}

	g.nodeRefs.Set(p.docID, uint64(levelRef))
	g.publish(p.links)
	g.nodeCount.Add(1)

	if _, epLevel, ok := g.entryPoint(); !ok || p.level > epLevel {
		g.entry.Store(packEntry(p.docID, p.level))
	}
	g.dirty = true
	return nil
}
