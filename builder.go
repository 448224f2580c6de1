package hnswgraph

import (
	"github.com/hupe1980/hnswgraph/distance"
	"github.com/hupe1980/hnswgraph/vectorstore"
)

// Builder is an immutable fluent builder for creating an Index.
// Each method returns a new builder with the updated configuration.
//
// Example:
//
//	idx, err := hnswgraph.NewBuilder(store).
//	    Cosine().
//	    MaxLinks(32, 16).
//	    EFConstruction(200).
//	    SoftDelete().
//	    Build()
type Builder struct {
	vectors vectorstore.Store
	config  Config
	opts    []Option
}

// NewBuilder creates a builder for an index over vectors with the default parameters.
func NewBuilder(vectors vectorstore.Store) Builder {
	return Builder{
		vectors: vectors,
		config:  DefaultConfig(),
	}
}

// with returns a copy of b with opt appended. The option slice is never shared.
func (b Builder) with(opt Option) Builder {
	opts := make([]Option, len(b.opts), len(b.opts)+1)
	copy(opts, b.opts)
	b.opts = append(opts, opt)
	return b
}

// SquaredL2 sets the distance metric to squared Euclidean distance (default).
func (b Builder) SquaredL2() Builder { return b.with(WithMetric(distance.MetricL2)) }

// Cosine sets the distance metric to cosine distance.
func (b Builder) Cosine() Builder { return b.with(WithMetric(distance.MetricCosine)) }

// DotProduct sets the distance metric to the negated inner product.
func (b Builder) DotProduct() Builder { return b.with(WithMetric(distance.MetricDot)) }

// Distance sets a custom distance function.
func (b Builder) Distance(fn distance.Function) Builder { return b.with(WithDistance(fn)) }

// MaxLinks sets the link capacity at layer 0 and above it.
// Higher values improve recall but increase memory usage.
// Default: 32 and 16.
func (b Builder) MaxLinks(level0, hierarchic int) Builder {
	b.config.MaxLinksAtLevel0 = level0
	b.config.MaxLinksAtHierarchicLevels = hierarchic
	return b
}

// EFConstruction sets the candidate list size used while inserting.
// Higher values improve graph quality but slow down indexing.
// Default: 200.
//
// Note: the search-time width is passed to Search per query.
func (b Builder) EFConstruction(ef int) Builder {
	b.config.NeighborsToExploreAtConstruction = ef
	return b
}

// Heuristic enables or disables heuristic neighbor selection.
// Default: true.
func (b Builder) Heuristic(enabled bool) Builder {
	if enabled {
		return b.with(WithSelector(HeuristicSelector{KeepPruned: true}))
	}
	return b.with(WithSelector(SimpleSelector{}))
}

// SoftDelete makes Remove flag documents and leaves purging to Vacuum.
func (b Builder) SoftDelete() Builder { return b.with(WithRemovalStrategy(SoftDelete)) }

// RandomSeed sets the seed for deterministic index construction.
// If not set, a time-based seed is used.
func (b Builder) RandomSeed(seed int64) Builder { return b.with(WithSeed(seed)) }

// MemoryLimit caps the memory reserved by the index arenas.
func (b Builder) MemoryLimit(bytes int64) Builder { return b.with(WithMemoryLimit(bytes)) }

// SearchConcurrency bounds concurrent searches.
func (b Builder) SearchConcurrency(n int) Builder { return b.with(WithSearchConcurrency(n)) }

// Logger sets the structured logger for operation tracing.
func (b Builder) Logger(l *Logger) Builder { return b.with(WithLogger(l)) }

// Metrics sets the metrics collector for monitoring.
func (b Builder) Metrics(mc MetricsCollector) Builder { return b.with(WithMetricsCollector(mc)) }

// Options appends raw options, applied after the builder settings.
func (b Builder) Options(opts ...Option) Builder {
	for _, o := range opts {
		b = b.with(o)
	}
	return b
}

// Build creates the index.
func (b Builder) Build() (*Index, error) {
	opts := append([]Option{WithConfig(b.config)}, b.opts...)
	return New(b.vectors, opts...)
}
