package distance

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/blas/gonum"
)

// ErrInvalidVector is returned when two vectors cannot be compared.
var ErrInvalidVector = errors.New("invalid vector")

// DimensionMismatchError indicates a vector/query dimensionality mismatch.
// It matches ErrInvalidVector with errors.Is.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrInvalidVector }

// Function computes the distance between two vectors. Smaller is closer.
// Implementations must be safe for concurrent use and must return an error
// wrapping ErrInvalidVector for vectors they cannot compare.
type Function interface {
	Distance(a, b []float32) (float32, error)
}

// Func adapts an unchecked kernel to the Function interface.
// The adapter rejects empty vectors and vectors of different length.
type Func func(a, b []float32) float32

// Distance implements Function.
func (f Func) Distance(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Expected: len(a), Actual: len(b)}
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("%w: empty vector", ErrInvalidVector)
	}
	return f(a, b), nil
}

type fixed struct {
	fn        Function
	dimension int
}

func (f fixed) Distance(a, b []float32) (float32, error) {
	if len(a) != f.dimension {
		return 0, &DimensionMismatchError{Expected: f.dimension, Actual: len(a)}
	}
	if len(b) != f.dimension {
		return 0, &DimensionMismatchError{Expected: f.dimension, Actual: len(b)}
	}
	return f.fn.Distance(a, b)
}

// WithDimension wraps fn so that both operands must have exactly dimension elements.
func WithDimension(fn Function, dimension int) Function {
	if dimension <= 0 {
		return fn
	}
	return fixed{fn: fn, dimension: dimension}
}

var engine = gonum.Implementation{}

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	return engine.Sdot(len(a), a, 1, b, 1)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	n := len(a)
	b = b[:n]
	i := 0
	for ; i+4 <= n; i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		s0 += d * d
	}
	return s0 + s1 + s2 + s3
}

// NegativeDot turns the inner product into a distance: larger products are closer.
func NegativeDot(a, b []float32) float32 {
	return -Dot(a, b)
}

// Cosine returns 1 - cos(a, b). Zero vectors are maximally distant from everything.
func Cosine(a, b []float32) float32 {
	na := engine.Snrm2(len(a), a, 1)
	nb := engine.Snrm2(len(b), b, 1)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - Dot(a, b)/(na*nb)
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm := engine.Snrm2(len(v), v, 1)
	if norm == 0 || math.IsNaN(float64(norm)) {
		return false
	}
	engine.Sscal(len(v), 1/norm, v, 1)
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricL2 Metric = iota
	MetricCosine
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricCosine:
		return "Cosine"
	case MetricDot:
		return "Dot"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// ParseMetric parses a metric name as used in configuration files.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "l2", "euclidean", "squared_l2":
		return MetricL2, nil
	case "cosine", "angular":
		return MetricCosine, nil
	case "dot", "ip", "inner_product":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", s)
	}
}

// Provider returns the checked distance function for the given metric.
func Provider(m Metric) (Function, error) {
	switch m {
	case MetricL2:
		return Func(SquaredL2), nil
	case MetricCosine:
		return Func(Cosine), nil
	case MetricDot:
		return Func(NegativeDot), nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
