package vectorstore

import (
	"github.com/x448/float16"

	"github.com/hupe1980/hnswgraph/internal/container"
)

// Float16 stores vectors in IEEE 754 half precision and widens them on read.
// It halves memory at the cost of precision and one allocation per GetVector.
type Float16 struct {
	dim     int
	vectors *container.SegmentedArray[[]float16.Float16]
}

var _ MutableStore = (*Float16)(nil)

// NewFloat16 creates a half-precision store. dim <= 0 accepts any length.
func NewFloat16(dim int) *Float16 {
	if dim < 0 {
		dim = 0
	}
	return &Float16{
		dim:     dim,
		vectors: container.NewSegmentedArray[[]float16.Float16](),
	}
}

// Dimension implements Store.
func (s *Float16) Dimension() int { return s.dim }

// GetVector implements Store. The returned slice is freshly allocated.
func (s *Float16) GetVector(id uint32) ([]float32, bool) {
	h := s.vectors.Get(id)
	if h == nil {
		return nil, false
	}
	out := make([]float32, len(*h))
	for i, f := range *h {
		out[i] = f.Float32()
	}
	return out, true
}

// SetVector rounds v to half precision and stores it under id.
func (s *Float16) SetVector(id uint32, v []float32) error {
	if s.dim > 0 && len(v) != s.dim {
		return ErrWrongDimension
	}
	h := make([]float16.Float16, len(v))
	for i, f := range v {
		h[i] = float16.Fromfloat32(f)
	}
	s.vectors.Set(id, &h)
	return nil
}

// DeleteVector removes the vector stored under id.
func (s *Float16) DeleteVector(id uint32) error {
	s.vectors.Set(id, nil)
	return nil
}

// Len returns the number of stored vectors.
func (s *Float16) Len() int { return s.vectors.Len() }
