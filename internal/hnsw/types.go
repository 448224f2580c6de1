package hnsw

import (
	"errors"
	"fmt"

	"github.com/hupe1980/hnswgraph/distance"
	"github.com/hupe1980/hnswgraph/internal/arena"
	"github.com/hupe1980/hnswgraph/internal/searcher"
)

var (
	// ErrAlreadyExists is returned when inserting a document that is already live.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrNotFound is returned when removing or updating an absent document.
	ErrNotFound = errors.New("document not found")

	// ErrCapacityExceeded is returned when the arenas cannot back another array.
	ErrCapacityExceeded = arena.ErrCapacityExceeded

	// ErrInvalidVector is returned when a vector cannot be compared.
	ErrInvalidVector = distance.ErrInvalidVector

	// ErrInvalidConfig is returned for unusable graph parameters.
	ErrInvalidConfig = errors.New("invalid config")
)

// ErrMissingVector reports a document without a vector in the store.
type ErrMissingVector struct {
	DocID uint32
}

func (e *ErrMissingVector) Error() string {
	return fmt.Sprintf("no vector for document %d", e.DocID)
}

// Unwrap makes the error match ErrInvalidVector.
func (e *ErrMissingVector) Unwrap() error { return ErrInvalidVector }

// Candidate is a scored document.
type Candidate struct {
	DocID    uint32
	Distance float32
}

// Less orders candidates by distance, then by document id.
func (c Candidate) Less(o Candidate) bool {
	if c.Distance != o.Distance {
		return c.Distance < o.Distance
	}
	return c.DocID < o.DocID
}

func (c Candidate) item() searcher.PriorityQueueItem {
	return searcher.PriorityQueueItem{Node: c.DocID, Distance: c.Distance}
}

func candidateOf(item searcher.PriorityQueueItem) Candidate {
	return Candidate{DocID: item.Node, Distance: item.Distance}
}

// NodeInfo is a copied snapshot of one node.
type NodeInfo struct {
	DocID   uint32
	Level   int
	Removed bool
	// Links holds the neighbor ids per layer, index 0 is the base layer.
	Links [][]uint32
}

// LevelStats describes one layer of the graph.
type LevelStats struct {
	Level          int
	Nodes          int
	Connections    int
	AvgConnections float64
}

// Stats is a snapshot of the graph shape and memory usage.
type Stats struct {
	Nodes      int // live nodes, soft-removed excluded
	Removed    int // soft-removed nodes waiting for Vacuum
	MaxLevel   int // level of the entry point, -1 when empty
	EntryPoint uint32
	Levels     []LevelStats

	NodeArena arena.Stats
	LinkArena arena.Stats

	Generation       uint64 // generation pinned by this snapshot
	OldestGeneration uint64

	Searches uint64 // Search calls since creation
	Scored   uint64 // distance evaluations during base-layer searches
}
