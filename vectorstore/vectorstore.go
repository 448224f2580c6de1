// Package vectorstore defines how the graph reads vectors by document id.
//
// The graph never owns raw vectors. It asks a Store for the vector of a
// document whenever it needs a distance, from the writer and from any number
// of concurrent readers. A Store must therefore be safe for concurrent use and
// must outlive every index built on top of it.
package vectorstore

import (
	"errors"
	"slices"

	"github.com/hupe1980/hnswgraph/internal/container"
)

var (
	// ErrWrongDimension is returned when a vector doesn't match the store dimension.
	ErrWrongDimension = errors.New("wrong vector dimension")
)

// Store is the vector-access provider consulted by the graph.
//
// Dimension returns the authoritative vector length, or 0 if the store accepts
// any length. Callers must not modify slices returned by GetVector.
type Store interface {
	Dimension() int
	GetVector(id uint32) ([]float32, bool)
}

// MutableStore is a Store that can be written to.
type MutableStore interface {
	Store
	SetVector(id uint32, v []float32) error
	DeleteVector(id uint32) error
}

// Memory is an in-memory float32 store with lock-free reads.
type Memory struct {
	dim     int
	vectors *container.SegmentedArray[[]float32]
}

var _ MutableStore = (*Memory)(nil)

// NewMemory creates an in-memory store. dim <= 0 accepts vectors of any length.
func NewMemory(dim int) *Memory {
	if dim < 0 {
		dim = 0
	}
	return &Memory{
		dim:     dim,
		vectors: container.NewSegmentedArray[[]float32](),
	}
}

// Dimension implements Store.
func (m *Memory) Dimension() int { return m.dim }

// GetVector implements Store.
func (m *Memory) GetVector(id uint32) ([]float32, bool) {
	v := m.vectors.Get(id)
	if v == nil {
		return nil, false
	}
	return *v, true
}

// SetVector stores a copy of v under id, replacing any previous vector.
func (m *Memory) SetVector(id uint32, v []float32) error {
	if m.dim > 0 && len(v) != m.dim {
		return ErrWrongDimension
	}
	c := slices.Clone(v)
	m.vectors.Set(id, &c)
	return nil
}

// DeleteVector removes the vector stored under id.
func (m *Memory) DeleteVector(id uint32) error {
	m.vectors.Set(id, nil)
	return nil
}

// Len returns the number of stored vectors.
func (m *Memory) Len() int { return m.vectors.Len() }
