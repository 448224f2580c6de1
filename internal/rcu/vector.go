// Package rcu implements read-copy-update containers for single-writer,
// multi-reader state.
package rcu

import "sync/atomic"

const (
	// segmentBits determines the size of each segment.
	// 16 bits = 65536 slots per segment.
	segmentBits = 16
	segmentSize = 1 << segmentBits
	segmentMask = segmentSize - 1
)

type segment struct {
	slots [segmentSize]atomic.Uint64
}

// Vector is a sparse array of atomic 64-bit words indexed by uint32.
//
// Get is lock-free and may run concurrently with Set. Set must be called by a
// single writer. A segment is allocated the first time one of its slots is
// set; the directory entries in between stay nil and read as zero. Every
// allocation publishes a new directory, segments themselves are never moved,
// so a reader holding an old directory still sees every slot it covered.
type Vector struct {
	segments atomic.Pointer[[]*segment]
}

// NewVector creates an empty vector.
func NewVector() *Vector {
	v := &Vector{}
	segments := make([]*segment, 0)
	v.segments.Store(&segments)
	return v
}

// Get returns the word at index, or 0 if index has never been set.
func (v *Vector) Get(index uint32) uint64 {
	segments := *v.segments.Load()
	segIdx := int(index >> segmentBits)
	if segIdx >= len(segments) || segments[segIdx] == nil {
		return 0
	}
	return segments[segIdx].slots[index&segmentMask].Load()
}

// Set stores value at index, allocating its segment if needed. Writer-only.
func (v *Vector) Set(index uint32, value uint64) {
	seg := *v.segments.Load()
	segIdx := int(index >> segmentBits)
	if segIdx >= len(seg) || seg[segIdx] == nil {
		if value == 0 {
			return
		}
		seg = v.allocate(segIdx)
	}
	seg[segIdx].slots[index&segmentMask].Store(value)
}

// allocate publishes a directory in which segIdx is backed by a segment.
func (v *Vector) allocate(segIdx int) []*segment {
	current := *v.segments.Load()
	grown := make([]*segment, max(len(current), segIdx+1))
	copy(grown, current)
	grown[segIdx] = &segment{}
	v.segments.Store(&grown)
	return grown
}

// Range calls fn for every non-zero slot in index order until fn returns false.
func (v *Vector) Range(fn func(index uint32, value uint64) bool) {
	segments := *v.segments.Load()
	for s, seg := range segments {
		if seg == nil {
			continue
		}
		base := uint32(s) << segmentBits //nolint:gosec // bounded by uint32 index space
		for i := range seg.slots {
			if value := seg.slots[i].Load(); value != 0 {
				if !fn(base+uint32(i), value) { //nolint:gosec // i < segmentSize
					return
				}
			}
		}
	}
}
