package hnsw

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// positions maps doc ids to points on a line; distances are squared.
type positions map[uint32]float32

func (p positions) candidates(target float32, docs ...uint32) []Candidate {
	out := make([]Candidate, len(docs))
	for i, d := range docs {
		diff := p[d] - target
		out[i] = Candidate{DocID: d, Distance: diff * diff}
	}
	return out
}

func (p positions) between(a, b uint32) (float32, error) {
	pa, ok := p[a]
	if !ok {
		return 0, errors.New("unknown doc")
	}
	diff := pa - p[b]
	return diff * diff, nil
}

func TestSimpleSelector(t *testing.T) {
	cands := []Candidate{
		{DocID: 4, Distance: 3},
		{DocID: 2, Distance: 1},
		{DocID: 9, Distance: 2},
		{DocID: 1, Distance: 2},
	}

	got := SimpleSelector{}.Select(cands, 3, nil)
	assert.Equal(t, []Candidate{
		{DocID: 2, Distance: 1},
		{DocID: 1, Distance: 2},
		{DocID: 9, Distance: 2},
	}, got)

	assert.Empty(t, SimpleSelector{}.Select(cands, 0, nil))
	assert.Empty(t, SimpleSelector{}.Select(nil, 3, nil))
	assert.Len(t, SimpleSelector{}.Select(cands, 10, nil), 4)
}

func TestHeuristicSelector(t *testing.T) {
	// Target at 0. Docs 1, 2, 3 sit on the right, doc 4 on the left.
	pos := positions{1: 1, 2: 2, 3: 3, 4: -1.5}

	t.Run("PrunesShadowedCandidates", func(t *testing.T) {
		got := HeuristicSelector{}.Select(pos.candidates(0, 3, 2, 1, 4), 4, pos.between)
		assert.Equal(t, []uint32{1, 4}, docIDs(got))
	})

	t.Run("KeepPrunedFillsUp", func(t *testing.T) {
		got := HeuristicSelector{KeepPruned: true}.Select(pos.candidates(0, 3, 2, 1, 4), 3, pos.between)
		assert.Equal(t, []uint32{1, 4, 2}, docIDs(got))
	})

	t.Run("AlwaysKeepsClosest", func(t *testing.T) {
		got := HeuristicSelector{}.Select(pos.candidates(2.9, 1, 2, 3), 1, pos.between)
		assert.Equal(t, []uint32{3}, docIDs(got))
	})

	t.Run("DistanceErrorsDoNotPrune", func(t *testing.T) {
		cands := []Candidate{{DocID: 1, Distance: 1}, {DocID: 77, Distance: 4}}
		got := HeuristicSelector{}.Select(cands, 2, pos.between)
		assert.Equal(t, []uint32{1, 77}, docIDs(got))
	})

	t.Run("Contract", func(t *testing.T) {
		for _, sel := range []NeighborSelector{HeuristicSelector{}, HeuristicSelector{KeepPruned: true}, SimpleSelector{}} {
			for m := 0; m <= 5; m++ {
				in := pos.candidates(0.2, 1, 2, 3, 4)
				got := sel.Select(in, m, pos.between)
				assert.LessOrEqual(t, len(got), m)
				if m > 0 {
					assert.Equal(t, uint32(1), got[0].DocID, "closest must be kept")
				}
				for _, c := range got {
					assert.Contains(t, []uint32{1, 2, 3, 4}, c.DocID)
				}
			}
		}
	})
}
