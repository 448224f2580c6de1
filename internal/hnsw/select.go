package hnsw

import "slices"

// PairDistance returns the distance between two documents.
type PairDistance func(a, b uint32) (float32, error)

// NeighborSelector picks which links a node keeps.
//
// Candidates carry their distance to the node being linked. Implementations
// must return at most m candidates, all taken from the input, and must keep
// the closest candidate when the input is non-empty. The input slice may be
// reordered.
type NeighborSelector interface {
	Select(candidates []Candidate, m int, between PairDistance) []Candidate
}

func sortCandidates(c []Candidate) {
	slices.SortFunc(c, func(a, b Candidate) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})
}

// SimpleSelector keeps the m closest candidates.
type SimpleSelector struct{}

// Select implements NeighborSelector.
func (SimpleSelector) Select(candidates []Candidate, m int, _ PairDistance) []Candidate {
	if m <= 0 {
		return nil
	}
	sortCandidates(candidates)
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	return slices.Clone(candidates)
}

// HeuristicSelector keeps diverse links (relative neighborhood graph rule).
//
// A candidate is kept only if it is closer to the node than to every link kept
// so far. With KeepPruned the result is topped up with the closest discarded
// candidates until it holds m links.
type HeuristicSelector struct {
	KeepPruned bool
}

// Select implements NeighborSelector.
func (s HeuristicSelector) Select(candidates []Candidate, m int, between PairDistance) []Candidate {
	if m <= 0 {
		return nil
	}
	sortCandidates(candidates)
	if len(candidates) <= m && s.KeepPruned {
		return slices.Clone(candidates)
	}

	result := make([]Candidate, 0, m)
	var pruned []Candidate

	for _, cand := range candidates {
		if len(result) >= m {
			break
		}
		good := true
		for _, kept := range result {
			d, err := between(cand.DocID, kept.DocID)
			if err != nil {
				continue
			}
			if d < cand.Distance {
				good = false
				break
			}
		}
		if good {
			result = append(result, cand)
		} else if s.KeepPruned {
			pruned = append(pruned, cand)
		}
	}

	if s.KeepPruned {
		for _, cand := range pruned {
			if len(result) >= m {
				break
			}
			result = append(result, cand)
		}
		sortCandidates(result)
	}
	return result
}
