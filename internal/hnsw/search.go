package hnsw

import (
	"fmt"
	"math"

	"github.com/hupe1980/hnswgraph/distance"
	"github.com/hupe1980/hnswgraph/internal/searcher"
)

// entryRetries bounds how often a search restarts when the entry point is
// removed between loading it and reading its node.
const entryRetries = 3

// scorer scores a document against a fixed vector.
// ok is false for documents without a comparable vector.
type scorer func(docID uint32) (d float32, ok bool, err error)

// readerScorer never fails: documents that cannot be compared are skipped.
func (g *Graph) readerScorer(query []float32) scorer {
	return func(docID uint32) (float32, bool, error) {
		d, ok := g.distanceTo(query, docID)
		return d, ok, nil
	}
}

// Search returns up to k nodes closest to query, ascending by distance.
//
// exploreWidth bounds the base-layer candidate list; the effective width is
// max(k, exploreWidth). Removed nodes are traversed but never returned.
// Search is safe for concurrent use with the writer.
func (g *Graph) Search(query []float32, k, exploreWidth int) ([]Candidate, error) {
	if k <= 0 {
		return nil, nil
	}
	if dim := g.vectors.Dimension(); dim > 0 && len(query) != dim {
		return nil, &distance.DimensionMismatchError{Expected: dim, Actual: len(query)}
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidVector)
	}

	guard := g.gens.TakeGuard()
	defer guard.Release()

	s := searcher.Get()
	defer searcher.Put(s)
	g.searches.Add(1)

	ef := max(k, exploreWidth)
	score := g.readerScorer(query)

	for range entryRetries {
		epID, epLevel, ok := g.entryPoint()
		if !ok {
			return nil, nil
		}

		epDist := float32(math.MaxFloat32)
		if v, ok := g.vector(epID); ok {
			d, err := g.dist.Distance(query, v)
			if err != nil {
				return nil, err
			}
			epDist = d
		}

		cur := Candidate{DocID: epID, Distance: epDist}
		for l := epLevel; l > 0; l-- {
			cur, _ = g.greedySearch(score, cur, l)
		}

		_ = g.searchLayer(s, score, []Candidate{cur}, 0, ef, false)
		g.scored.Add(uint64(s.Scored)) //nolint:gosec // non-negative counter
		if s.Results.Len() == 0 && !g.nodeRef(cur.DocID).exists() {
			// The entry point vanished under us, start over from the new one.
			continue
		}

		s.Items = s.Results.Drain(s.Items[:0])
		n := min(k, len(s.Items))
		out := make([]Candidate, n)
		for i := range n {
			out[i] = candidateOf(s.Items[i])
		}
		return out, nil
	}
	return nil, nil
}

// greedySearch moves to strictly closer neighbors at level until none is left.
func (g *Graph) greedySearch(score scorer, cur Candidate, level int) (Candidate, error) {
	for changed := true; changed; {
		changed = false
		for _, next := range g.linksAt(cur.DocID, level) {
			if !g.nodeRef(next).exists() {
				continue
			}
			d, ok, err := score(next)
			if err != nil {
				return cur, err
			}
			if ok && d < cur.Distance {
				cur = Candidate{DocID: next, Distance: d}
				changed = true
			}
		}
	}
	return cur, nil
}

// searchLayer runs the bounded best-first search at one layer.
//
// s.Results ends up holding the ef closest nodes found. Removed nodes are
// expanded but only kept as results when includeRemoved is set.
func (g *Graph) searchLayer(s *searcher.Searcher, score scorer, entries []Candidate, level, ef int, includeRemoved bool) error {
	s.Reset()

	frontier := s.Frontier
	results := s.Results
	visited := s.Visited

	for _, e := range entries {
		if visited.Mark(e.DocID) {
			continue
		}
		ref := g.nodeRef(e.DocID)
		if !ref.exists() {
			continue
		}
		frontier.PushItem(e.item())
		if includeRemoved || !ref.removed() {
			results.PushItemBounded(e.item(), ef)
		}
	}

	for frontier.Len() > 0 {
		curr, _ := frontier.PopItem()

		// Termination: the closest unexplored candidate is worse than the worst result.
		if results.Len() >= ef {
			if worst, _ := results.TopItem(); searcher.Closer(worst, curr) {
				break
			}
		}

		for _, next := range g.linksAt(curr.Node, level) {
			if visited.Mark(next) {
				continue
			}
			ref := g.nodeRef(next)
			if !ref.exists() {
				continue
			}
			d, ok, err := score(next)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			s.Scored++

			item := searcher.PriorityQueueItem{Node: next, Distance: d}

			// Avoid pushing candidates that cannot improve a full result set.
			if results.Len() >= ef {
				if worst, _ := results.TopItem(); !searcher.Closer(item, worst) {
					continue
				}
			}

			frontier.PushItem(item)
			if includeRemoved || !ref.removed() {
				results.PushItemBounded(item, ef)
			}
		}
	}
	return nil
}
