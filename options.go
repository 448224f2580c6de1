package hnswgraph

import (
	"io"
	"log/slog"

	"github.com/hupe1980/hnswgraph/distance"
	"github.com/hupe1980/hnswgraph/internal/hnsw"
)

// Config holds the graph parameters. It is immutable for the lifetime of an index.
type Config = hnsw.Config

// DefaultConfig returns the default graph parameters (32 / 16 / 200).
func DefaultConfig() Config { return hnsw.DefaultConfig() }

// RemovalStrategy selects how Remove detaches a document.
type RemovalStrategy = hnsw.RemovalStrategy

const (
	// HardDelete unlinks a node immediately and reconnects its former neighbors.
	HardDelete = hnsw.HardDelete
	// SoftDelete hides a node from results until Vacuum purges it.
	SoftDelete = hnsw.SoftDelete
)

// NeighborSelector picks the links a node keeps.
type NeighborSelector = hnsw.NeighborSelector

// SimpleSelector keeps the closest candidates.
type SimpleSelector = hnsw.SimpleSelector

// HeuristicSelector keeps candidates that are not shadowed by a closer selected one.
type HeuristicSelector = hnsw.HeuristicSelector

type options struct {
	config           Config
	distance         distance.Function
	metric           distance.Metric
	selector         NeighborSelector
	removal          RemovalStrategy
	seed             *int64
	maxBuffers       int
	minArrays        int
	memoryLimit      int64
	searchLimit      int
	insertRate       float64
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures an Index.
type Option func(*options)

// WithConfig sets the graph parameters.
//
// Example:
//
//	idx, _ := hnswgraph.New(store, hnswgraph.WithConfig(hnswgraph.Config{
//	    MaxLinksAtLevel0:                 32,
//	    MaxLinksAtHierarchicLevels:       16,
//	    NeighborsToExploreAtConstruction: 200,
//	}))
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithMetric selects one of the built-in distance metrics. Default: MetricL2.
func WithMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
		o.distance = nil
	}
}

// WithDistance sets a custom distance function. It overrides WithMetric.
func WithDistance(fn distance.Function) Option {
	return func(o *options) {
		o.distance = fn
	}
}

// WithSelector sets the neighbor selection strategy.
// Default: HeuristicSelector{KeepPruned: true}.
func WithSelector(s NeighborSelector) Option {
	return func(o *options) {
		o.selector = s
	}
}

// WithRemovalStrategy sets how Remove detaches documents. Default: HardDelete.
func WithRemovalStrategy(s RemovalStrategy) Option {
	return func(o *options) {
		o.removal = s
	}
}

// WithSeed makes layer assignment reproducible.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = &seed
	}
}

// WithArenaLimits caps the buffers of each arena and sets the first buffer size.
// Zero keeps the default. Small values are mostly useful in tests.
func WithArenaLimits(maxBuffers, minArraysPerBuffer int) Option {
	return func(o *options) {
		o.maxBuffers = maxBuffers
		o.minArrays = minArraysPerBuffer
	}
}

// WithMemoryLimit caps the memory the index arenas may reserve.
// Mutations that would exceed it fail with ErrCapacityExceeded.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithSearchConcurrency bounds the number of searches running at once,
// across Search and SearchBatch. Zero means unlimited.
func WithSearchConcurrency(n int) Option {
	return func(o *options) {
		o.searchLimit = n
	}
}

// WithInsertRate throttles insertions to perSecond documents. Zero means unlimited.
func WithInsertRate(perSecond float64) Option {
	return func(o *options) {
		o.insertRate = perSecond
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &hnswgraph.BasicMetricsCollector{}
//	idx, _ := hnswgraph.New(store, hnswgraph.WithMetricsCollector(metrics))
//	// ... use idx ...
//	stats := metrics.GetStats()
//	fmt.Printf("Inserts: %d, Avg latency: %dns\n", stats.InsertCount, stats.InsertAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := hnswgraph.NewJSONLogger(os.Stderr, slog.LevelInfo)
//	idx, _ := hnswgraph.New(store, hnswgraph.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger writing to w with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(w, level)).
func WithLogLevel(w io.Writer, level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(w, level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		config:           DefaultConfig(),
		metric:           distance.MetricL2,
		removal:          HardDelete,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
