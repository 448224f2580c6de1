package hnswgraph

import (
	"errors"
	"fmt"

	"github.com/hupe1980/hnswgraph/distance"
	"github.com/hupe1980/hnswgraph/internal/hnsw"
)

var (
	// ErrAlreadyExists is returned when inserting a document that is already indexed.
	ErrAlreadyExists = hnsw.ErrAlreadyExists

	// ErrNotFound is returned when removing or updating a document that is not indexed.
	ErrNotFound = hnsw.ErrNotFound

	// ErrCapacityExceeded is returned when the index cannot allocate memory for a mutation.
	// The index is left unchanged.
	ErrCapacityExceeded = hnsw.ErrCapacityExceeded

	// ErrInvalidVector is returned for missing, empty or mismatched vectors.
	ErrInvalidVector = hnsw.ErrInvalidVector

	// ErrInvalidConfig is returned for unusable index parameters.
	ErrInvalidConfig = hnsw.ErrInvalidConfig

	// ErrInvalidK is returned when k is negative.
	ErrInvalidK = errors.New("k must not be negative")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("index closed")
)

// DimensionMismatchError indicates a vector/query dimensionality mismatch.
//
// The original underlying error can be accessed via errors.Unwrap.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	cause    error
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return e.cause }

// NodeError attaches the failing operation and document to an error.
type NodeError struct {
	Op    string
	DocID uint32
	Err   error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Op, e.DocID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// translateError maps internal errors to the public error types.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *distance.DimensionMismatchError
	if errors.As(err, &dm) {
		return &DimensionMismatchError{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	return err
}

// nodeError wraps a translated writer error with its operation and document.
func nodeError(op string, docID uint32, err error) error {
	err = translateError(err)
	if err == nil {
		return nil
	}
	return &NodeError{Op: op, DocID: docID, Err: err}
}
