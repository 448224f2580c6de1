package hnsw

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hnswgraph/distance"
	"github.com/hupe1980/hnswgraph/testutil"
)

func checkLinkInvariants(t *testing.T, g *Graph, nodes []uint32) {
	t.Helper()
	cfg := g.Config()

	for _, a := range nodes {
		info, ok := g.Node(a)
		require.True(t, ok, "node %d", a)

		for l, links := range info.Links {
			capacity := cfg.maxLinks(l)
			assert.LessOrEqual(t, len(links), capacity, "node %d layer %d", a, l)
			assert.NotContains(t, links, a, "self link at node %d layer %d", a, l)

			for _, b := range links {
				other, ok := g.Node(b)
				require.True(t, ok)
				require.Greater(t, len(other.Links), l, "node %d links %d above its level", a, b)

				assert.Contains(t, other.Links[l], a, "%d -> %d at layer %d is one-way", a, b, l)
			}
		}
	}
}

func TestLinkInvariants(t *testing.T) {
	tests := []struct {
		name     string
		selector NeighborSelector
	}{
		{"Heuristic", HeuristicSelector{KeepPruned: true}},
		{"Simple", SimpleSelector{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vectors := testutil.NewRNG(11).UniformVectors(400, 8)
			g, _ := newTestGraph(t, vectors, withConfig(8, 4, 32), func(o *Options) { o.Selector = tt.selector })
			insertRange(t, g, 0, len(vectors))

			all := make([]uint32, len(vectors))
			for i := range all {
				all[i] = uint32(i)
			}
			checkLinkInvariants(t, g, all)
		})
	}
}

func TestConnectivity(t *testing.T) {
	vectors := testutil.NewRNG(5).UniformVectors(300, 8)
	g, _ := newTestGraph(t, vectors, withConfig(32, 16, 64))
	insertRange(t, g, 0, len(vectors))

	seen := reachable(g)
	assert.Len(t, seen, len(vectors))

	st := g.Stats()
	assert.Equal(t, len(vectors), st.Nodes)
	require.NotEmpty(t, st.Levels)
	assert.Equal(t, len(vectors), st.Levels[0].Nodes)
	assert.Len(t, st.Levels, st.MaxLevel+1)

	info, ok := g.Node(st.EntryPoint)
	require.True(t, ok)
	assert.Equal(t, st.MaxLevel, info.Level)
}

func TestHardDelete(t *testing.T) {
	vectors := testutil.NewRNG(13).UniformVectors(300, 8)
	g, _ := newTestGraph(t, vectors, withConfig(32, 16, 64))
	insertRange(t, g, 0, len(vectors))

	removed := make(map[uint32]bool)
	for i := 0; i < len(vectors); i += 6 {
		require.NoError(t, g.Remove(uint32(i)))
		removed[uint32(i)] = true
	}
	// Always remove the entry point once.
	ep, _, _ := g.EntryPoint()
	require.NoError(t, g.Remove(ep))
	removed[ep] = true

	assert.ErrorIs(t, g.Remove(ep), ErrNotFound)
	assert.Equal(t, len(vectors)-len(removed), g.Len())

	newEP, _, ok := g.EntryPoint()
	require.True(t, ok)
	assert.False(t, removed[newEP])

	seen := reachable(g)
	for i := range vectors {
		id := uint32(i)
		if removed[id] {
			_, ok := g.Node(id)
			assert.False(t, ok)
			continue
		}
		assert.True(t, seen[id], "node %d unreachable after removals", id)
	}

	for i := range vectors {
		res, err := g.Search(vectors[i], 10, 64)
		require.NoError(t, err)
		for _, r := range res {
			assert.False(t, removed[r.DocID], "removed node %d returned", r.DocID)
		}
	}
}

func TestHardDeleteThenReinsert(t *testing.T) {
	tests := []struct {
		name   string
		config func(o *Options)
	}{
		{"Small", withConfig(8, 4, 32)},
		{"Default", withConfig(16, 8, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vectors := testutil.NewRNG(29).UniformVectors(300, 8)
			g, store := newTestGraph(t, vectors, tt.config)
			insertRange(t, g, 0, len(vectors))

			var removed []uint32
			for i := 0; i < len(vectors); i += 3 {
				require.NoError(t, g.Remove(uint32(i)))
				removed = append(removed, uint32(i))
			}

			// Removed ids come back with vectors from elsewhere in the space.
			moved := testutil.NewRNG(30).UniformVectors(len(removed), 8)
			for i, id := range removed {
				require.NoError(t, store.SetVector(id, moved[i]))
				require.NoError(t, g.Insert(id))
			}

			all := make([]uint32, len(vectors))
			for i := range all {
				all[i] = uint32(i)
			}
			checkLinkInvariants(t, g, all)
			assert.Len(t, reachable(g), len(vectors))

			for i, id := range removed {
				res, err := g.Search(moved[i], 5, 64)
				require.NoError(t, err)
				assert.Contains(t, ids(res), id)
			}
		})
	}
}

// failingDistance is squared L2 until fail is set.
type failingDistance struct{ fail *atomic.Bool }

func (f failingDistance) Distance(a, b []float32) (float32, error) {
	if f.fail.Load() {
		return 0, errors.New("distance unavailable")
	}
	return distance.SquaredL2(a, b), nil
}

func TestReinsertSoftRemovedAfterFailedPlan(t *testing.T) {
	var fail atomic.Bool
	vectors := testutil.NewRNG(37).UniformVectors(100, 4)
	g, _ := newTestGraph(t, vectors, withConfig(8, 4, 32), func(o *Options) {
		o.Removal = SoftDelete
		o.Distance = failingDistance{fail: &fail}
	})
	insertRange(t, g, 0, len(vectors))
	require.NoError(t, g.Remove(7))
	require.Equal(t, 99, g.Len())

	fail.Store(true)
	require.Error(t, g.Insert(7))
	fail.Store(false)

	// The purge of the soft-removed node stays applied; nothing else changed.
	_, ok := g.Node(7)
	assert.False(t, ok)
	assert.False(t, g.Contains(7))
	assert.Equal(t, uint64(0), g.PendingPurge())
	assert.Equal(t, 99, g.Len())

	rest := make([]uint32, 0, len(vectors)-1)
	for i := range vectors {
		if i != 7 {
			rest = append(rest, uint32(i))
		}
	}
	checkLinkInvariants(t, g, rest)

	require.NoError(t, g.Insert(7))
	assert.True(t, g.Contains(7))
	checkLinkInvariants(t, g, append(rest, 7))
}

func TestRemoveAll(t *testing.T) {
	vectors := testutil.NewRNG(2).UniformVectors(30, 4)
	g, _ := newTestGraph(t, vectors, withConfig(8, 4, 16))
	insertRange(t, g, 0, len(vectors))

	for i := range vectors {
		require.NoError(t, g.Remove(uint32(i)))
	}
	assert.Equal(t, 0, g.Len())
	_, _, ok := g.EntryPoint()
	assert.False(t, ok)

	res, err := g.Search(vectors[0], 5, 10)
	require.NoError(t, err)
	assert.Empty(t, res)

	// Every array is held or reclaimed, nothing is live.
	g.Reclaim()
	st := g.Stats()
	assert.Equal(t, int64(0), st.NodeArena.LiveArrays)
	assert.Equal(t, int64(0), st.LinkArena.LiveArrays)

	// The graph is usable again.
	insertRange(t, g, 0, 5)
	assert.Equal(t, 5, g.Len())
}

func TestSoftDeleteAndVacuum(t *testing.T) {
	vectors := testutil.NewRNG(17).UniformVectors(300, 8)
	g, _ := newTestGraph(t, vectors, withConfig(32, 16, 64), func(o *Options) { o.Removal = SoftDelete })
	insertRange(t, g, 0, len(vectors))

	removed := make(map[uint32]bool)
	for i := 0; i < len(vectors); i += 5 {
		require.NoError(t, g.Remove(uint32(i)))
		removed[uint32(i)] = true
	}
	assert.ErrorIs(t, g.Remove(0), ErrNotFound)
	assert.ErrorIs(t, g.Update(0), ErrNotFound)

	assert.Equal(t, len(vectors)-len(removed), g.Len())
	assert.Equal(t, uint64(len(removed)), g.PendingPurge())
	assert.Equal(t, len(removed), g.Stats().Removed)

	info, ok := g.Node(5)
	require.True(t, ok)
	assert.True(t, info.Removed)
	assert.False(t, g.Contains(5))

	// Soft-removed nodes are never returned, not even for their own vector.
	for id := range removed {
		res, err := g.Search(vectors[id], 5, 32)
		require.NoError(t, err)
		assert.NotContains(t, ids(res), id)
	}

	// A soft-removed id can be inserted again right away.
	require.NoError(t, g.Insert(10))
	delete(removed, 10)
	assert.True(t, g.Contains(10))

	purged, err := g.Vacuum()
	require.NoError(t, err)
	assert.Equal(t, len(removed), purged)
	assert.Equal(t, uint64(0), g.PendingPurge())
	assert.Equal(t, 0, g.Stats().Removed)

	seen := reachable(g)
	for i := range vectors {
		id := uint32(i)
		info, ok := g.Node(id)
		if removed[id] {
			assert.False(t, ok, "node %d survived vacuum", id)
			continue
		}
		require.True(t, ok)
		assert.True(t, seen[id], "node %d unreachable after vacuum", id)
		for l, links := range info.Links {
			for _, n := range links {
				assert.False(t, removed[n], "node %d still links purged %d at layer %d", id, n, l)
			}
		}
	}
}

func snapshot(g *Graph, n int) map[uint32]NodeInfo {
	out := make(map[uint32]NodeInfo)
	for i := range n {
		if info, ok := g.Node(uint32(i)); ok {
			out[uint32(i)] = info
		}
	}
	return out
}

func TestCapacityExceededIsFailClosed(t *testing.T) {
	vectors := testutil.NewRNG(19).UniformVectors(200, 4)
	g, _ := newTestGraph(t, vectors, withConfig(16, 8, 32), func(o *Options) {
		o.MaxBuffers = 6
		o.MinArraysPerBuffer = 4
	})

	failed := false
	for i := range vectors {
		before := snapshot(g, i)
		beforeStats := g.Stats()
		ep, epLevel, _ := g.EntryPoint()

		err := g.Insert(uint32(i))
		if err == nil {
			continue
		}

		require.ErrorIs(t, err, ErrCapacityExceeded)
		failed = true

		assert.False(t, g.Contains(uint32(i)))
		assert.Equal(t, before, snapshot(g, i))

		afterStats := g.Stats()
		assert.Equal(t, beforeStats.Nodes, afterStats.Nodes)
		assert.Equal(t, beforeStats.NodeArena.LiveArrays, afterStats.NodeArena.LiveArrays)
		assert.Equal(t, beforeStats.LinkArena.LiveArrays, afterStats.LinkArena.LiveArrays)
		assert.Equal(t, beforeStats.Generation, afterStats.Generation)

		ep2, epLevel2, _ := g.EntryPoint()
		assert.Equal(t, ep, ep2)
		assert.Equal(t, epLevel, epLevel2)

		res, err := g.Search(vectors[0], 1, 10)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, uint32(0), res[0].DocID)
		break
	}
	assert.True(t, failed, "the arena limit was never reached")
}

func TestReclamationWaitsForReaders(t *testing.T) {
	vectors := append([][]float32{nil}, testutil.LineVectors(60, 1)...)
	g, _ := newTestGraph(t, vectors, withConfig(4, 2, 8))
	insertRange(t, g, 1, 50)

	require.Equal(t, int64(0), g.Stats().LinkArena.HeldArrays, "no reader, nothing held")

	guard := g.gens.TakeGuard()
	insertRange(t, g, 50, 55)

	held := g.Stats().LinkArena.HeldArrays
	require.Positive(t, held, "replaced link arrays must be held while a reader is active")
	assert.Equal(t, 0, g.Reclaim())
	assert.Equal(t, held, g.Stats().LinkArena.HeldArrays)

	guard.Release()
	assert.Positive(t, g.Reclaim())
	assert.Equal(t, int64(0), g.Stats().LinkArena.HeldArrays)
	assert.Equal(t, g.Stats().Generation, g.Stats().OldestGeneration)
}

func TestConcurrentSearchDuringWrites(t *testing.T) {
	const (
		dim     = 8
		initial = 200
		total   = 1000
	)
	vectors := testutil.NewRNG(23).UniformVectors(total, dim)
	g, _ := newTestGraph(t, vectors, withConfig(16, 8, 32))
	insertRange(t, g, 0, initial)

	queries := testutil.NewRNG(24).UniformVectors(32, dim)

	var (
		done     atomic.Bool
		wg       sync.WaitGroup
		searches atomic.Int64
	)
	for r := range 4 {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for i := r; !done.Load(); i++ {
				res, err := g.Search(queries[i%len(queries)], 10, 32)
				if err != nil {
					t.Errorf("search: %v", err)
					return
				}
				for j := 1; j < len(res); j++ {
					if res[j].Less(res[j-1]) {
						t.Errorf("results out of order: %v", res)
						return
					}
				}
				searches.Add(1)
			}
		}(r)
	}

	for i := initial; i < total; i++ {
		require.NoError(t, g.Insert(uint32(i)))
		if i%10 == 0 {
			require.NoError(t, g.Remove(uint32(i-initial)))
		}
	}
	done.Store(true)
	wg.Wait()

	assert.Positive(t, searches.Load())
	g.Reclaim()
	assert.Equal(t, int64(0), g.Stats().LinkArena.HeldArrays)
}

func TestRecall(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping recall test in short mode")
	}

	const (
		n   = 2000
		dim = 16
		k   = 10
	)
	vectors := testutil.NewRNG(31).UniformVectors(n, dim)
	g, _ := newTestGraph(t, vectors, withConfig(32, 16, 100))
	insertRange(t, g, 0, n)

	queries := testutil.NewRNG(32).UniformVectors(50, dim)

	var total float64
	for _, q := range queries {
		res, err := g.Search(q, k, 100)
		require.NoError(t, err)

		approx := make([]testutil.SearchResult, len(res))
		for i, r := range res {
			approx[i] = testutil.SearchResult{ID: r.DocID, Distance: r.Distance}
		}
		total += testutil.ComputeRecall(testutil.BruteForceSearch(vectors, q, k), approx)
	}

	recall := total / float64(len(queries))
	t.Logf("recall@%d: %.3f", k, recall)
	assert.GreaterOrEqual(t, recall, 0.9)
}

func BenchmarkInsert(b *testing.B) {
	vectors := testutil.NewRNG(1).UniformVectors(b.N, 32)
	g, _ := newTestGraph(b, vectors, withConfig(32, 16, 100))

	b.ReportAllocs()
	b.ResetTimer()
	for i := range b.N {
		if err := g.Insert(uint32(i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearch(b *testing.B) {
	vectors := testutil.NewRNG(1).UniformVectors(5000, 32)
	g, _ := newTestGraph(b, vectors, withConfig(32, 16, 100))
	insertRange(b, g, 0, len(vectors))
	queries := testutil.NewRNG(2).UniformVectors(100, 32)

	b.ReportAllocs()
	b.ResetTimer()
	for i := range b.N {
		if _, err := g.Search(queries[i%len(queries)], 10, 64); err != nil {
			b.Fatal(err)
		}
	}
}
