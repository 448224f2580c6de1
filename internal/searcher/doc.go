// Package searcher provides the pooled scratch state of a graph traversal:
// a deterministic candidate heap and a visited set.
package searcher
