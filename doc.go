// Package hnswgraph provides an embeddable HNSW approximate nearest neighbor index for Go.
//
// The index stores only graph structure. Vectors stay in a caller-owned
// vectorstore.Store and are looked up by document id whenever the graph
// needs a distance, so the same store can back other indexes or a
// document database.
//
// Features:
//
//   - Multi-layer HNSW graph with heuristic or simple neighbor selection
//   - One writer, any number of concurrent lock-free readers
//   - Generation-based reclamation: replaced link arrays are recycled only
//     after every reader that could still see them has finished
//   - Compact arena storage with 32-bit handles and an optional memory limit
//   - Fail-closed writes: a mutation that cannot allocate leaves the graph unchanged
//   - Hard delete with neighbor reconnection, or soft delete plus Vacuum
//   - Structured logging (log/slog) and pluggable metrics (see metric/prom)
//
// # Quick Start
//
//	store := vectorstore.NewMemory(128)
//	_ = store.SetVector(1, embedding)
//
//	idx, err := hnswgraph.New(store,
//	    hnswgraph.WithMetric(distance.MetricCosine),
//	    hnswgraph.WithConfig(hnswgraph.Config{
//	        MaxLinksAtLevel0:                 32,
//	        MaxLinksAtHierarchicLevels:       16,
//	        NeighborsToExploreAtConstruction: 200,
//	    }),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	defer idx.Close()
//
//	_ = idx.Insert(ctx, 1)
//	results, _ := idx.Search(ctx, query, 10, 100)
//
// The fluent builder is equivalent:
//
//	idx, err := hnswgraph.NewBuilder(store).
//	    Cosine().
//	    MaxLinks(32, 16).
//	    EFConstruction(200).
//	    Build()
//
// # Search Width
//
// Search takes k and an explore width. The base layer keeps max(k, width)
// candidates; larger widths trade latency for recall. Equal distances are
// ordered by document id, so results are deterministic for a fixed graph.
//
// # Removal
//
// With HardDelete (default) Remove unlinks the node at once and links its
// former neighbors with each other. With SoftDelete the node only disappears
// from results; it keeps routing searches until Vacuum purges it.
//
// # Errors
//
// Writer errors are wrapped in *NodeError and match the package sentinels
// with errors.Is: ErrAlreadyExists, ErrNotFound, ErrCapacityExceeded,
// ErrInvalidVector, ErrClosed. Dimension problems are reported as
// *DimensionMismatchError.
package hnswgraph
