// Package distance provides vector distance calculations for the graph.
//
// Dot products and norms run on gonum's BLAS level-1 kernels; squared
// Euclidean distance uses an unrolled loop so identical vectors are exactly 0.
//
// # Supported Metrics
//
//   - MetricL2: Squared Euclidean distance (default)
//   - MetricCosine: 1 - cosine similarity
//   - MetricDot: negated inner product
//
// # Usage
//
//	fn, _ := distance.Provider(distance.MetricL2)
//	d, err := fn.Distance(a, b) // err wraps ErrInvalidVector on length mismatch
//
// Custom metrics implement Function, or wrap a plain kernel with Func.
package distance
