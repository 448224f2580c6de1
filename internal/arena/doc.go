// Package arena provides a generation-aware array store for HNSW graphs.
//
// A Store hands out small immutable arrays and identifies each one by a
// compact 32-bit Ref (buffer id + offset). Arrays are grouped by length into
// size-classed buffers so short arrays, which dominate a proximity graph, share
// a handful of large backing slices instead of one allocation each.
//
// # Concurrency Model
//
// Exactly one writer calls Add, Free, Hold, AssignGeneration and Reclaim.
// Any number of readers may call Get concurrently with the writer. A reader
// must only dereference refs it obtained through an atomic publication and
// must stop using the returned view once it has released its generation guard.
//
// # Reclamation
//
// Published arrays are never freed directly. The writer calls Hold when it
// replaces an array, tags pending holds with AssignGeneration at a safe point,
// and later calls Reclaim with the oldest generation still used by a reader.
// Only then do the slots move to the per-size free lists.
package arena
