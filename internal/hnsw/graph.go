package hnsw

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/hnswgraph/distance"
	"github.com/hupe1980/hnswgraph/internal/arena"
	"github.com/hupe1980/hnswgraph/internal/generation"
	"github.com/hupe1980/hnswgraph/internal/rcu"
	"github.com/hupe1980/hnswgraph/vectorstore"
)

// nodeRef packs the level-array ref of a node (low 32 bits) with its flags.
// The zero value means "no node".
type nodeRef uint64

const removedBit nodeRef = 1 << 32

func (r nodeRef) exists() bool { return r != 0 }

func (r nodeRef) levels() arena.Ref { return arena.Ref(uint32(r)) } //nolint:gosec // low half by design

func (r nodeRef) removed() bool { return r&removedBit != 0 }

// entry packs the entry point doc id (high 32 bits) and its level plus one.
// Zero means the graph is empty.
func packEntry(docID uint32, level int) uint64 {
	return uint64(docID)<<32 | uint64(level+1) //nolint:gosec // level <= MaxLevel
}

func unpackEntry(v uint64) (docID uint32, level int, ok bool) {
	if v == 0 {
		return 0, -1, false
	}
	return uint32(v >> 32), int(uint32(v)) - 1, true //nolint:gosec // packed by packEntry
}

// Graph is an HNSW graph over vectors owned by a vectorstore.Store.
//
// Mutating methods are writer-only and must be serialized by the caller.
// Search, Node and Stats are safe for concurrent use with the writer.
type Graph struct {
	opts            Options
	vectors         vectorstore.Store
	dist            distance.Function
	selector        NeighborSelector
	levelMultiplier float64
	rngState        uint64 // writer-only

	nodeRefs *rcu.Vector
	levels   *arena.Store[uint32] // per node: one link-array ref per layer
	links    *arena.Store[uint32] // per node and layer: neighbor doc ids
	entry    atomic.Uint64
	gens     *generation.Handler

	pendingPurge *roaring.Bitmap // writer-only, soft-removed ids

	nodeCount    atomic.Int64 // nodes with a node ref, soft-removed included
	removedCount atomic.Int64
	searches     atomic.Uint64
	scored       atomic.Uint64 // distance evaluations by Search
	dirty        bool // writer-only, holds waiting for a generation
}

// New creates a graph reading vectors from the given store.
func New(vectors vectorstore.Store, optFns ...func(o *Options)) (*Graph, error) {
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrInvalidConfig)
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	if opts.Removal != HardDelete && opts.Removal != SoftDelete {
		return nil, fmt.Errorf("%w: unknown removal strategy %v", ErrInvalidConfig, opts.Removal)
	}

	dist := opts.Distance
	if dist == nil {
		dist = distance.Func(distance.SquaredL2)
	}
	if dim := vectors.Dimension(); dim > 0 {
		dist = distance.WithDimension(dist, dim)
	}

	selector := opts.Selector
	if selector == nil {
		selector = HeuristicSelector{KeepPruned: true}
	}

	var seed uint64
	if opts.RandomSeed != nil {
		seed = uint64(*opts.RandomSeed) //nolint:gosec // any bit pattern is a valid seed
	} else {
		seed = uint64(time.Now().UnixNano()) //nolint:gosec // wall clock is positive
	}

	arenaOpts := opts.arenaOptions()

	return &Graph{
		opts:            opts,
		vectors:         vectors,
		dist:            dist,
		selector:        selector,
		levelMultiplier: 1 / math.Log(float64(opts.MaxLinksAtHierarchicLevels)),
		rngState:        seed,
		nodeRefs:        rcu.NewVector(),
		levels:          arena.New[uint32](arenaOpts...),
		links:           arena.New[uint32](arenaOpts...),
		gens:            generation.NewHandler(),
		pendingPurge:    roaring.New(),
	}, nil
}

// Config returns the graph parameters.
func (g *Graph) Config() Config { return g.opts.Config }

// Len returns the number of live nodes.
func (g *Graph) Len() int {
	return int(g.nodeCount.Load() - g.removedCount.Load())
}

// Contains reports whether docID is a live node.
func (g *Graph) Contains(docID uint32) bool {
	ref := nodeRef(g.nodeRefs.Get(docID))
	return ref.exists() && !ref.removed()
}

// Close releases the arenas. No method may be called afterwards.
func (g *Graph) Close() error {
	g.levels.Close()
	g.links.Close()
	g.entry.Store(0)
	return nil
}

// randomLevel draws a layer from the exponential distribution.
func (g *Graph) randomLevel() int {
	// xorshift64*
	g.rngState += 0x9E3779B97F4A7C15
	x := g.rngState
	x ^= x >> 12
	x ^= x << 25
	x ^= x >> 27
	// (0, 1], never zero so the logarithm stays finite.
	r := (float64((x*0x2545F4914F6CDD1D)>>11) + 1) / float64(1<<53)
	level := int(math.Floor(-math.Log(r) * g.levelMultiplier))
	return min(level, MaxLevel)
}

func (g *Graph) entryPoint() (docID uint32, level int, ok bool) {
	return unpackEntry(g.entry.Load())
}

func (g *Graph) nodeRef(docID uint32) nodeRef {
	return nodeRef(g.nodeRefs.Get(docID))
}

// levelArray returns the borrowed level array of a node, nil if absent.
func (g *Graph) levelArray(ref nodeRef) []uint32 {
	if !ref.exists() {
		return nil
	}
	return g.levels.Get(ref.levels())
}

// nodeLevel returns the top layer of a node, -1 if absent.
func (g *Graph) nodeLevel(ref nodeRef) int {
	return len(g.levelArray(ref)) - 1
}

// linksAt returns the borrowed link array of docID at level.
// Readers must hold a generation guard while using it.
func (g *Graph) linksAt(docID uint32, level int) []uint32 {
	lv := g.levelArray(g.nodeRef(docID))
	if level >= len(lv) {
		return nil
	}
	return g.links.Get(arena.Ref(atomic.LoadUint32(&lv[level])))
}

// vector fetches the vector of docID from the store.
func (g *Graph) vector(docID uint32) ([]float32, bool) {
	return g.vectors.GetVector(docID)
}

// distanceTo scores docID against query. Missing or incomparable vectors report false.
func (g *Graph) distanceTo(query []float32, docID uint32) (float32, bool) {
	v, ok := g.vector(docID)
	if !ok {
		return 0, false
	}
	d, err := g.dist.Distance(query, v)
	if err != nil {
		return 0, false
	}
	return d, true
}

// between is the PairDistance handed to the neighbor selector.
func (g *Graph) between(a, b uint32) (float32, error) {
	va, ok := g.vector(a)
	if !ok {
		return 0, &ErrMissingVector{DocID: a}
	}
	vb, ok := g.vector(b)
	if !ok {
		return 0, &ErrMissingVector{DocID: b}
	}
	return g.dist.Distance(va, vb)
}

// safePoint publishes a generation boundary and reclaims what no reader can see.
func (g *Graph) safePoint() {
	if !g.dirty {
		return
	}
	g.dirty = false

	cur := g.gens.CurrentGeneration()
	g.levels.AssignGeneration(cur)
	g.links.AssignGeneration(cur)
	g.gens.IncGeneration()
	g.reclaim()
}

// reclaim frees held arrays older than the oldest active reader.
func (g *Graph) reclaim() int {
	g.gens.UpdateOldestUsedGeneration()
	oldest := g.gens.OldestUsedGeneration()
	return g.levels.Reclaim(oldest) + g.links.Reclaim(oldest)
}

// Reclaim retries reclamation of held arrays. Writer-only.
func (g *Graph) Reclaim() int {
	g.safePoint()
	return g.reclaim()
}
