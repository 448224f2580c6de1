package testutil

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/hupe1980/hnswgraph/distance"
)

// SearchResult is an exact or approximate neighbor of a query.
type SearchResult struct {
	ID       uint32
	Distance float32
}

// RNG is a seeded, reproducible source of test vectors. It is safe for
// concurrent use.
type RNG struct {
	mu   sync.Mutex
	seed int64
	src  *rand.Rand
}

// NewRNG returns a generator for seed.
func NewRNG(seed int64) *RNG {
	r := &RNG{seed: seed}
	r.src = r.newSource()
	return r
}

func (r *RNG) newSource() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(r.seed), 0x9e3779b97f4a7c15)) //nolint:gosec // test data
}

// Reset rewinds the generator to its seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.src = r.newSource()
}

// Intn returns a value in [0, n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.IntN(n)
}

// Float32 returns a value in [0, 1).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Float32()
}

// matrix returns num vectors of dim components sharing one backing array,
// each filled by fill under the lock.
func (r *RNG) matrix(num, dim int, fill func(vec []float32)) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vectors := make([][]float32, num)
	for i := range vectors {
		vectors[i] = data[i*dim : (i+1)*dim : (i+1)*dim]
		fill(vectors[i])
	}
	return vectors
}

// UniformVectors returns vectors with components in [0, 1).
func (r *RNG) UniformVectors(num, dim int) [][]float32 {
	return r.matrix(num, dim, func(vec []float32) {
		for j := range vec {
			vec[j] = r.src.Float32()
		}
	})
}

// UniformRangeVectors returns vectors with components in [-1, 1).
func (r *RNG) UniformRangeVectors(num, dim int) [][]float32 {
	return r.matrix(num, dim, func(vec []float32) {
		for j := range vec {
			vec[j] = 2*r.src.Float32() - 1
		}
	})
}

// GaussianVectors returns vectors with standard normal components.
func (r *RNG) GaussianVectors(num, dim int) [][]float32 {
	return r.matrix(num, dim, r.gaussian)
}

// UnitVectors returns vectors spread uniformly over the unit hypersphere.
func (r *RNG) UnitVectors(num, dim int) [][]float32 {
	return r.matrix(num, dim, func(vec []float32) {
		r.gaussian(vec)
		normalize(vec)
	})
}

// ClusteredVectors returns vectors drawn around clusters unit-length
// centroids with Gaussian noise of the given spread. Vector i belongs to
// cluster i mod clusters.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)
	i := 0
	return r.matrix(num, dim, func(vec []float32) {
		c := centroids[i%clusters]
		i++
		for j := range vec {
			vec[j] = c[j] + spread*float32(r.src.NormFloat64())
		}
	})
}

func (r *RNG) gaussian(vec []float32) {
	for j := range vec {
		vec[j] = float32(r.src.NormFloat64())
	}
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for j := range vec {
		vec[j] *= inv
	}
}

// LineVectors returns num two-dimensional vectors [i+offset, 0].
func LineVectors(num, offset int) [][]float32 {
	vectors := make([][]float32, num)
	for i := range vectors {
		vectors[i] = []float32{float32(i + offset), 0}
	}
	return vectors
}

// ComputeRecall returns the share of the first min(len) ground-truth ids
// that appear among as many approximate results. Two empty lists score 1.
func ComputeRecall(groundTruth, approximate []SearchResult) float64 {
	k := min(len(approximate), len(groundTruth))
	if k == 0 {
		if len(groundTruth) == len(approximate) {
			return 1
		}
		return 0
	}

	truth := make(map[uint32]struct{}, k)
	for _, r := range groundTruth[:k] {
		truth[r.ID] = struct{}{}
	}
	hits := 0
	for _, r := range approximate[:k] {
		if _, ok := truth[r.ID]; ok {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

// BruteForceSearch is ExactTopK under squared Euclidean distance.
func BruteForceSearch(vectors [][]float32, query []float32, k int) []SearchResult {
	return ExactTopK(vectors, query, k, distance.SquaredL2)
}

// ExactTopK scans vectors and returns the k closest under fn, ties broken
// by id. The index of a vector is its id; nil entries are skipped.
func ExactTopK(vectors [][]float32, query []float32, k int, fn func(a, b []float32) float32) []SearchResult {
	results := make([]SearchResult, 0, len(vectors))
	for i, v := range vectors {
		if v != nil {
			results = append(results, SearchResult{ID: uint32(i), Distance: fn(query, v)}) //nolint:gosec // test data is small
		}
	}
	slices.SortFunc(results, func(a, b SearchResult) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return results[:min(k, len(results))]
}
