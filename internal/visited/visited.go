// Package visited tracks which documents a single search has already scored.
package visited

import "github.com/RoaringBitmap/roaring/v2"

// DenseLimit bounds the stamp array. Ids at or above it are tracked in a
// compressed bitmap, so a few huge ids do not cost two bytes per smaller id.
const DenseLimit = 1 << 20

// Set remembers visited document ids for one traversal at a time.
//
// Each dense slot stores the epoch in which it was last marked, so Reset only
// bumps the epoch instead of clearing memory. A Set is owned by one goroutine.
type Set struct {
	stamps []uint16
	epoch  uint16
	sparse *roaring.Bitmap
	count  int
}

// New returns a set sized for ids below capacity. It grows on demand.
func New(capacity int) *Set {
	return &Set{
		stamps: make([]uint16, min(capacity, DenseLimit)),
		epoch:  1,
		sparse: roaring.New(),
	}
}

// Mark records id and reports whether it had already been marked in the
// current traversal.
func (s *Set) Mark(id uint32) bool {
	if id >= DenseLimit {
		if !s.sparse.CheckedAdd(id) {
			return true
		}
		s.count++
		return false
	}
	if int(id) >= len(s.stamps) {
		s.grow(int(id) + 1)
	}
	if s.stamps[id] == s.epoch {
		return true
	}
	s.stamps[id] = s.epoch
	s.count++
	return false
}

// Len returns the number of ids marked since the last Reset.
func (s *Set) Len() int {
	return s.count
}

// Reset starts a new traversal.
func (s *Set) Reset() {
	s.count = 0
	if !s.sparse.IsEmpty() {
		s.sparse.Clear()
	}
	s.epoch++
	if s.epoch == 0 {
		// Stamps from 65535 traversals ago would alias the new epoch.
		clear(s.stamps)
		s.epoch = 1
	}
}

func (s *Set) grow(n int) {
	stamps := make([]uint16, min(max(2*len(s.stamps), n), DenseLimit))
	copy(stamps, s.stamps)
	s.stamps = stamps
}
