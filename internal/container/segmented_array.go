// Package container implements container data structures.
package container

import (
	"sync"
	"sync/atomic"
)

const (
	// segmentBits determines the size of each segment.
	// 16 bits = 65536 items per segment.
	segmentBits = 16
	segmentSize = 1 << segmentBits
	segmentMask = segmentSize - 1
)

// SegmentedArray is a sparse segmented array of atomic pointers.
// Reads are lock-free; concurrent writers serialize only when a segment is
// allocated. Segments are allocated on first write, unset ranges cost one
// nil directory entry per segment.
type SegmentedArray[T any] struct {
	segments atomic.Pointer[[]*Segment[T]]
	mu       sync.Mutex // Protects segment allocation
	count    atomic.Int64
}

// Segment is a fixed-size array of item pointers.
type Segment[T any] struct {
	items [segmentSize]atomic.Pointer[T]
}

// NewSegmentedArray creates a new SegmentedArray.
func NewSegmentedArray[T any]() *SegmentedArray[T] {
	sa := &SegmentedArray[T]{}
	segments := make([]*Segment[T], 0)
	sa.segments.Store(&segments)
	return sa
}

func (sa *SegmentedArray[T]) slot(index uint32) *atomic.Pointer[T] {
	segments := *sa.segments.Load()
	segIdx := int(index >> segmentBits)
	if segIdx >= len(segments) || segments[segIdx] == nil {
		return nil
	}
	return &segments[segIdx].items[index&segmentMask]
}

// Get returns the item at the given index, or nil if it was never set.
func (sa *SegmentedArray[T]) Get(index uint32) *T {
	if s := sa.slot(index); s != nil {
		return s.Load()
	}
	return nil
}

// Set stores the item at the given index, allocating its segment if
// necessary. A nil value clears the slot.
func (sa *SegmentedArray[T]) Set(index uint32, value *T) {
	s := sa.slot(index)
	if s == nil {
		if value == nil {
			return
		}
		s = sa.allocate(index)
	}
	old := s.Swap(value)
	switch {
	case old == nil && value != nil:
		sa.count.Add(1)
	case old != nil && value == nil:
		sa.count.Add(-1)
	}
}

// Len returns the number of non-nil items.
func (sa *SegmentedArray[T]) Len() int {
	return int(sa.count.Load())
}

func (sa *SegmentedArray[T]) allocate(index uint32) *atomic.Pointer[T] {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	current := *sa.segments.Load()
	segIdx := int(index >> segmentBits)
	if segIdx < len(current) && current[segIdx] != nil {
		return &current[segIdx].items[index&segmentMask]
	}

	grown := make([]*Segment[T], max(len(current), segIdx+1))
	copy(grown, current)
	grown[segIdx] = &Segment[T]{}
	sa.segments.Store(&grown)
	return &grown[segIdx].items[index&segmentMask]
}
