// Package hnsw implements Hierarchical Navigable Small World graphs.
//
// HNSW provides approximate nearest neighbor search with high recall and
// sub-linear query time. The graph stores only document ids; vectors are read
// from a vectorstore.Store on demand.
//
// # Memory layout
//
//   - Node references live in a segmented atomic vector keyed by document id.
//   - Each node owns a level array in the node arena: one link-array ref per layer.
//   - Link arrays are immutable and live in the link arena. Updates allocate a
//     new array and swap the ref in the level array.
//   - Superseded arrays are held until every search that could observe them
//     has released its generation guard.
//
// # Concurrency
//
// One writer, many readers. Insert, Remove, Update and Vacuum must be
// serialized by the caller. Search, Node and Stats never block and may run at
// any time.
//
// # Parameters
//
//   - MaxLinksAtLevel0: link capacity at layer 0 (default: 32)
//   - MaxLinksAtHierarchicLevels: link capacity above layer 0 (default: 16)
//   - NeighborsToExploreAtConstruction: construction queue size (default: 200)
//
// # Reference
//
// Malkov & Yashunin, "Efficient and robust approximate nearest neighbor search
// using Hierarchical Navigable Small World graphs", IEEE TPAMI 2018.
package hnsw
