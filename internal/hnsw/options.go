package hnsw

import (
	"fmt"

	"github.com/hupe1980/hnswgraph/distance"
	"github.com/hupe1980/hnswgraph/internal/arena"
)

const (
	// DefaultMaxLinksAtLevel0 is the default link capacity at layer 0.
	DefaultMaxLinksAtLevel0 = 32

	// DefaultMaxLinksAtHierarchicLevels is the default link capacity above layer 0.
	DefaultMaxLinksAtHierarchicLevels = 16

	// DefaultNeighborsToExploreAtConstruction is the default construction queue size.
	DefaultNeighborsToExploreAtConstruction = 200

	// MaxLevel is the highest layer a node can be assigned to.
	MaxLevel = 31

	// minimumLinks keeps the level multiplier finite.
	minimumLinks = 2
)

// Config holds the graph parameters. It is immutable for the lifetime of a graph.
type Config struct {
	MaxLinksAtLevel0                 int
	MaxLinksAtHierarchicLevels       int
	NeighborsToExploreAtConstruction int
}

// DefaultConfig returns the default graph parameters.
func DefaultConfig() Config {
	return Config{
		MaxLinksAtLevel0:                 DefaultMaxLinksAtLevel0,
		MaxLinksAtHierarchicLevels:       DefaultMaxLinksAtHierarchicLevels,
		NeighborsToExploreAtConstruction: DefaultNeighborsToExploreAtConstruction,
	}
}

// Validate reports unusable parameters as ErrInvalidConfig.
func (c Config) Validate() error {
	if c.MaxLinksAtLevel0 < 1 {
		return fmt.Errorf("%w: MaxLinksAtLevel0 must be at least 1, got %d", ErrInvalidConfig, c.MaxLinksAtLevel0)
	}
	if c.MaxLinksAtHierarchicLevels < minimumLinks {
		return fmt.Errorf("%w: MaxLinksAtHierarchicLevels must be at least %d, got %d",
			ErrInvalidConfig, minimumLinks, c.MaxLinksAtHierarchicLevels)
	}
	if c.NeighborsToExploreAtConstruction < 1 {
		return fmt.Errorf("%w: NeighborsToExploreAtConstruction must be at least 1, got %d",
			ErrInvalidConfig, c.NeighborsToExploreAtConstruction)
	}
	return nil
}

// maxLinks returns the link capacity at the given layer.
func (c Config) maxLinks(level int) int {
	if level == 0 {
		return c.MaxLinksAtLevel0
	}
	return c.MaxLinksAtHierarchicLevels
}

// RemovalStrategy selects how Remove detaches a node.
type RemovalStrategy int

const (
	// HardDelete unlinks the node immediately and reconnects its former neighbors.
	HardDelete RemovalStrategy = iota
	// SoftDelete flags the node; it stays traversable until Vacuum.
	SoftDelete
)

func (s RemovalStrategy) String() string {
	switch s {
	case HardDelete:
		return "hard"
	case SoftDelete:
		return "soft"
	default:
		return fmt.Sprintf("RemovalStrategy(%d)", int(s))
	}
}

// Options represents the options for configuring a Graph.
type Options struct {
	Config

	// Distance compares vectors. Defaults to squared L2.
	Distance distance.Function

	// Selector picks the links to keep. Defaults to HeuristicSelector{KeepPruned: true}.
	Selector NeighborSelector

	// Removal selects the removal strategy.
	Removal RemovalStrategy

	// RandomSeed makes layer assignment reproducible.
	RandomSeed *int64

	// MaxBuffers caps the buffers of each arena (0 = arena default).
	MaxBuffers int

	// MinArraysPerBuffer is the first buffer capacity of each size class (0 = arena default).
	MinArraysPerBuffer int

	// MemoryAcquirer is charged for arena growth.
	MemoryAcquirer arena.MemoryAcquirer
}

// DefaultOptions contains the default options for a Graph.
var DefaultOptions = Options{
	Config:   DefaultConfig(),
	Selector: HeuristicSelector{KeepPruned: true},
	Removal:  HardDelete,
}

func (o *Options) arenaOptions() []arena.Option {
	opts := []arena.Option{
		// Level arrays never exceed MaxLevel+1 refs, so they always share buffers.
		arena.WithMaxSmallArraySize(max(arena.DefaultMaxSmallArraySize, MaxLevel+1)),
	}
	if o.MaxBuffers > 0 {
		opts = append(opts, arena.WithMaxBuffers(o.MaxBuffers))
	}
	if o.MinArraysPerBuffer > 0 {
		opts = append(opts, arena.WithArraysPerBuffer(o.MinArraysPerBuffer, arena.MaxArraysPerBuffer))
	}
	if o.MemoryAcquirer != nil {
		opts = append(opts, arena.WithMemoryAcquirer(o.MemoryAcquirer))
	}
	return opts
}
