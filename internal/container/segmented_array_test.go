package container

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentedArray(t *testing.T) {
	sa := NewSegmentedArray[int]()
	assert.Nil(t, sa.Get(0))
	assert.Nil(t, sa.Get(segmentSize*3))

	a, b := 1, 2
	sa.Set(5, &a)
	sa.Set(segmentSize*2+1, &b)

	require.NotNil(t, sa.Get(5))
	assert.Equal(t, 1, *sa.Get(5))
	assert.Equal(t, 2, *sa.Get(segmentSize*2+1))
	assert.Equal(t, 2, sa.Len())

	sa.Set(5, nil)
	assert.Nil(t, sa.Get(5))
	assert.Equal(t, 1, sa.Len())

	// Overwrite does not change the count.
	sa.Set(segmentSize*2+1, &a)
	assert.Equal(t, 1, sa.Len())
}

func TestSegmentedArray_Sparse(t *testing.T) {
	sa := NewSegmentedArray[int]()
	a := 1
	sa.Set(1<<26, &a)
	sa.Set(3, nil)

	segments := *sa.segments.Load()
	require.Len(t, segments, 1<<26/segmentSize+1)
	backed := 0
	for _, seg := range segments {
		if seg != nil {
			backed++
		}
	}
	assert.Equal(t, 1, backed)
	assert.Nil(t, sa.Get(3))
	assert.Nil(t, sa.Get(1<<25))
	assert.Equal(t, 1, *sa.Get(1<<26))

	sa.Set(3, &a)
	assert.Equal(t, 1, *sa.Get(1<<26))
	assert.Equal(t, 1, *sa.Get(3))
	assert.Equal(t, 2, sa.Len())
}

func TestSegmentedArray_ConcurrentWriters(t *testing.T) {
	sa := NewSegmentedArray[uint32]()
	const perWriter = 20000

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				v := uint32(w*perWriter + i)
				sa.Set(v, &v)
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint32(0); i < 4*perWriter; i += 7 {
			if p := sa.Get(i); p != nil && *p != i {
				t.Errorf("slot %d holds %d", i, *p)
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, 4*perWriter, sa.Len())
	for i := uint32(0); i < 4*perWriter; i += 997 {
		require.NotNil(t, sa.Get(i))
		assert.Equal(t, i, *sa.Get(i))
	}
}
