package vectorstore

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	s := NewMemory(3)
	assert.Equal(t, 3, s.Dimension())

	_, ok := s.GetVector(1)
	assert.False(t, ok)

	v := []float32{1, 2, 3}
	require.NoError(t, s.SetVector(1, v))
	v[0] = 42

	got, ok := s.GetVector(1)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, got, "store keeps its own copy")

	assert.ErrorIs(t, s.SetVector(2, []float32{1}), ErrWrongDimension)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.DeleteVector(1))
	_, ok = s.GetVector(1)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestMemory_AnyDimension(t *testing.T) {
	s := NewMemory(0)
	require.NoError(t, s.SetVector(1, []float32{1}))
	require.NoError(t, s.SetVector(2, []float32{1, 2}))
	assert.Equal(t, 0, s.Dimension())
}

func TestMemory_ConcurrentReadWrite(t *testing.T) {
	s := NewMemory(2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := uint32(0); i < 5000; i++ {
			_ = s.SetVector(i, []float32{float32(i), 0})
		}
	}()
	go func() {
		defer wg.Done()
		for i := uint32(0); i < 5000; i++ {
			if v, ok := s.GetVector(i); ok && v[0] != float32(i) {
				t.Errorf("vector %d = %v", i, v)
			}
		}
	}()
	wg.Wait()
	assert.Equal(t, 5000, s.Len())
}

func TestFloat16(t *testing.T) {
	s := NewFloat16(2)
	require.NoError(t, s.SetVector(7, []float32{0.5, -2}))

	got, ok := s.GetVector(7)
	require.True(t, ok)
	assert.Equal(t, []float32{0.5, -2}, got, "exactly representable values survive the round trip")

	require.NoError(t, s.SetVector(8, []float32{0.1, 1000.3}))
	got, _ = s.GetVector(8)
	assert.InDelta(t, 0.1, got[0], 1e-3)
	assert.InDelta(t, 1000.3, got[1], 0.5)

	assert.ErrorIs(t, s.SetVector(9, []float32{1, 2, 3}), ErrWrongDimension)
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.DeleteVector(7))
	_, ok = s.GetVector(7)
	assert.False(t, ok)
}

func TestBolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "vectors.db")

	s, err := OpenBolt(path, 3)
	require.NoError(t, err)

	require.NoError(t, s.SetVector(1, []float32{1, 2, 3}))
	require.NoError(t, s.SetVectors(map[uint32][]float32{
		2: {4, 5, 6},
		3: {7, 8, 9},
	}))
	assert.ErrorIs(t, s.SetVector(4, []float32{1}), ErrWrongDimension)
	assert.Equal(t, 3, s.Len())

	got, ok := s.GetVector(2)
	require.True(t, ok)
	assert.Equal(t, []float32{4, 5, 6}, got)

	require.NoError(t, s.DeleteVector(2))
	_, ok = s.GetVector(2)
	assert.False(t, ok)

	require.NoError(t, s.Close())

	// Reopen read-only and find the data again.
	ro, err := OpenBolt(path, 3, func(o *BoltOptions) { o.ReadOnly = true })
	require.NoError(t, err)
	defer ro.Close()

	got, ok = ro.GetVector(3)
	require.True(t, ok)
	assert.Equal(t, []float32{7, 8, 9}, got)
	assert.Error(t, ro.SetVector(5, []float32{1, 1, 1}), "read-only store rejects writes")
}
