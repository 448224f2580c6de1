package hnswgraph

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/hnswgraph/distance"
	"github.com/hupe1980/hnswgraph/internal/hnsw"
	"github.com/hupe1980/hnswgraph/internal/resource"
	"github.com/hupe1980/hnswgraph/vectorstore"
)

// SearchResult is one neighbor returned by Search.
type SearchResult struct {
	DocID    uint32
	Distance float32
}

// NodeLinks is a copied snapshot of one node's links.
type NodeLinks struct {
	DocID   uint32
	Level   int
	Removed bool
	// Links holds the neighbor ids per layer, index 0 is the base layer.
	Links [][]uint32
}

// Stats is a snapshot of the index.
type Stats struct {
	hnsw.Stats

	MemoryUsage     int64 // bytes reserved by the arenas
	PeakMemoryUsage int64
	MemoryLimit     int64 // 0 if unlimited
}

// Index is an HNSW index over documents whose vectors live in a vectorstore.Store.
//
// Writers (Insert, InsertBatch, Remove, Update, Vacuum) are serialized by the
// index. Search runs concurrently with them and never waits for a writer.
type Index struct {
	writeMu sync.Mutex   // serializes writers
	closeMu sync.RWMutex // Close excludes in-flight readers
	closed  atomic.Bool

	graph       *hnsw.Graph
	rc          *resource.Controller
	searchLimit int

	metrics MetricsCollector
	logger  *Logger
}

// New creates an empty index reading document vectors from vectors.
func New(vectors vectorstore.Store, optFns ...Option) (*Index, error) {
	opts := applyOptions(optFns)

	dist := opts.distance
	if dist == nil {
		fn, err := distance.Provider(opts.metric)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		dist = fn
	}

	if opts.memoryLimit < 0 || opts.searchLimit < 0 || opts.insertRate < 0 {
		return nil, fmt.Errorf("%w: resource limits must not be negative", ErrInvalidConfig)
	}

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:      opts.memoryLimit,
		MaxConcurrentSearches: int64(opts.searchLimit),
		InsertsPerSecond:      opts.insertRate,
	})

	graph, err := hnsw.New(vectors, func(o *hnsw.Options) {
		o.Config = opts.config
		o.Distance = dist
		o.Selector = opts.selector
		o.Removal = opts.removal
		o.RandomSeed = opts.seed
		o.MaxBuffers = opts.maxBuffers
		o.MinArraysPerBuffer = opts.minArrays
		o.MemoryAcquirer = rc
	})
	if err != nil {
		return nil, err
	}

	searchLimit := opts.searchLimit
	if searchLimit == 0 {
		searchLimit = runtime.GOMAXPROCS(0)
	}

	cfg := graph.Config()
	opts.logger.Debug("index created",
		"max_links_level0", cfg.MaxLinksAtLevel0,
		"max_links", cfg.MaxLinksAtHierarchicLevels,
		"ef_construction", cfg.NeighborsToExploreAtConstruction,
		"removal", opts.removal.String(),
	)

	return &Index{
		graph:       graph,
		rc:          rc,
		searchLimit: searchLimit,
		metrics:     opts.metricsCollector,
		logger:      opts.logger,
	}, nil
}

// Config returns the graph parameters.
func (idx *Index) Config() Config { return idx.graph.Config() }

// Len returns the number of searchable documents.
func (idx *Index) Len() int { return idx.graph.Len() }

// Contains reports whether docID is indexed and not removed.
func (idx *Index) Contains(docID uint32) bool {
	if idx.closed.Load() {
		return false
	}
	return idx.graph.Contains(docID)
}

// lockWriter acquires the writer lock unless ctx is done or the index is closed.
func (idx *Index) lockWriter(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx.writeMu.Lock()
	if idx.closed.Load() {
		idx.writeMu.Unlock()
		return nil, ErrClosed
	}
	return idx.writeMu.Unlock, nil
}

// Insert adds docID to the graph. Its vector is read from the store.
// On error the graph is unchanged.
func (idx *Index) Insert(ctx context.Context, docID uint32) error {
	start := time.Now()
	err := idx.insert(ctx, docID)
	err = nodeError("insert", docID, err)
	idx.metrics.RecordInsert(time.Since(start), err)
	idx.logger.LogInsert(ctx, docID, err)
	return err
}

func (idx *Index) insert(ctx context.Context, docID uint32) error {
	if err := idx.rc.WaitInserts(ctx, 1); err != nil {
		return err
	}
	unlock, err := idx.lockWriter(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return idx.graph.Insert(docID)
}

// InsertBatch inserts docIDs in order and publishes them together.
// It stops at the first failure and returns the number inserted before it;
// documents inserted before the failure stay in the graph.
func (idx *Index) InsertBatch(ctx context.Context, docIDs []uint32) (int, error) {
	start := time.Now()
	n, err := idx.insertBatch(ctx, docIDs)
	if err != nil && n < len(docIDs) {
		err = nodeError("insert", docIDs[n], err)
	} else {
		err = translateError(err)
	}
	idx.metrics.RecordBatchInsert(len(docIDs), len(docIDs)-n, time.Since(start))
	idx.logger.LogBatchInsert(ctx, len(docIDs), n, err)
	return n, err
}

func (idx *Index) insertBatch(ctx context.Context, docIDs []uint32) (int, error) {
	if len(docIDs) == 0 {
		return 0, ctx.Err()
	}
	if err := idx.rc.WaitInserts(ctx, len(docIDs)); err != nil {
		return 0, err
	}
	unlock, err := idx.lockWriter(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return idx.graph.InsertBatch(docIDs)
}

// Remove detaches docID using the configured removal strategy.
func (idx *Index) Remove(ctx context.Context, docID uint32) error {
	start := time.Now()
	err := idx.write(ctx, func() error { return idx.graph.Remove(docID) })
	err = nodeError("remove", docID, err)
	idx.metrics.RecordRemove(time.Since(start), err)
	idx.logger.LogRemove(ctx, docID, err)
	return err
}

// Update re-reads the vector of docID and relinks the node.
// The document must be indexed.
func (idx *Index) Update(ctx context.Context, docID uint32) error {
	start := time.Now()
	err := idx.write(ctx, func() error { return idx.graph.Update(docID) })
	err = nodeError("update", docID, err)
	idx.metrics.RecordUpdate(time.Since(start), err)
	idx.logger.LogUpdate(ctx, docID, err)
	return err
}

func (idx *Index) write(ctx context.Context, fn func() error) error {
	unlock, err := idx.lockWriter(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// Vacuum purges soft-removed documents, strips dangling links and reclaims
// arena memory no reader can still see. It returns the number of purged documents.
func (idx *Index) Vacuum(ctx context.Context) (int, error) {
	start := time.Now()
	var purged, reclaimed int
	err := idx.write(ctx, func() error {
		var err error
		purged, err = idx.graph.Vacuum()
		reclaimed = idx.graph.Reclaim()
		return err
	})
	err = translateError(err)
	idx.metrics.RecordVacuum(purged, time.Since(start), err)
	idx.logger.LogVacuum(ctx, purged, reclaimed, err)
	return purged, err
}

// Search returns up to k documents closest to query, ascending by distance.
// exploreWidth trades speed for recall; the effective width is max(k, exploreWidth).
func (idx *Index) Search(ctx context.Context, query []float32, k, exploreWidth int) ([]SearchResult, error) {
	start := time.Now()
	res, err := idx.search(ctx, query, k, exploreWidth)
	err = translateError(err)
	idx.metrics.RecordSearch(k, time.Since(start), err)
	idx.logger.LogSearch(ctx, k, exploreWidth, len(res), err)
	return res, err
}

func (idx *Index) search(ctx context.Context, query []float32, k, exploreWidth int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, ErrInvalidK
	}

	idx.closeMu.RLock()
	defer idx.closeMu.RUnlock()
	if idx.closed.Load() {
		return nil, ErrClosed
	}

	if err := idx.rc.AcquireSearch(ctx); err != nil {
		return nil, err
	}
	defer idx.rc.ReleaseSearch()

	cands, err := idx.graph.Search(query, k, exploreWidth)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, len(cands))
	for i, c := range cands {
		out[i] = SearchResult{DocID: c.DocID, Distance: c.Distance}
	}
	return out, nil
}

// SearchBatch runs Search for every query concurrently.
// results[i] belongs to queries[i]. The first failing query cancels the rest.
func (idx *Index) SearchBatch(ctx context.Context, queries [][]float32, k, exploreWidth int) ([][]SearchResult, error) {
	results := make([][]SearchResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.searchLimit)
	for i, q := range queries {
		g.Go(func() error {
			res, err := idx.Search(gctx, q, k, exploreWidth)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Links returns a copied snapshot of the links of docID.
// Soft-removed nodes are reported with Removed set.
func (idx *Index) Links(docID uint32) (NodeLinks, bool) {
	idx.closeMu.RLock()
	defer idx.closeMu.RUnlock()
	if idx.closed.Load() {
		return NodeLinks{}, false
	}

	info, ok := idx.graph.Node(docID)
	if !ok {
		return NodeLinks{}, false
	}
	return NodeLinks{
		DocID:   info.DocID,
		Level:   info.Level,
		Removed: info.Removed,
		Links:   info.Links,
	}, true
}

// EntryPoint returns the current entry point and its level.
func (idx *Index) EntryPoint() (docID uint32, level int, ok bool) {
	if idx.closed.Load() {
		return 0, 0, false
	}
	return idx.graph.EntryPoint()
}

// Stats returns statistics about the graph and its memory use. It walks every node.
func (idx *Index) Stats() Stats {
	idx.closeMu.RLock()
	defer idx.closeMu.RUnlock()

	st := Stats{
		MemoryUsage:     idx.rc.MemoryUsage(),
		PeakMemoryUsage: idx.rc.PeakMemoryUsage(),
		MemoryLimit:     idx.rc.MemoryLimit(),
	}
	if !idx.closed.Load() {
		st.Stats = idx.graph.Stats()
	}
	return st
}

// Close releases the arenas. It waits for the writer and in-flight readers;
// every later call fails with ErrClosed. Close is idempotent.
func (idx *Index) Close() error {
	if idx == nil {
		return nil
	}
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	idx.closeMu.Lock()
	defer idx.closeMu.Unlock()

	if idx.closed.Swap(true) {
		return nil
	}
	err := idx.graph.Close()
	idx.logger.Debug("index closed")
	return err
}
