package searcher

import (
	"sync"

	"github.com/hupe1980/hnswgraph/internal/visited"
)

// Searcher holds the scratch state of one layer traversal: the visited set,
// both heaps and a drain buffer. Reusing it keeps steady-state searches free
// of allocations. A Searcher belongs to one goroutine between Get and Put.
type Searcher struct {
	Visited  *visited.Set
	Results  *PriorityQueue // farthest on top, bounded by the explore width
	Frontier *PriorityQueue // closest on top
	Items    []PriorityQueueItem

	// Scored counts distance evaluations since the last Reset.
	Scored int
}

const (
	defaultVisited = 1024
	defaultQueue   = 128
)

var pool = sync.Pool{
	New: func() any { return NewSearcher(defaultVisited, defaultQueue) },
}

// NewSearcher allocates a searcher for about nodes documents and queues of
// queueCap entries.
func NewSearcher(nodes, queueCap int) *Searcher {
	return &Searcher{
		Visited:  visited.New(nodes),
		Results:  &PriorityQueue{isMaxHeap: true, items: make([]PriorityQueueItem, 0, queueCap)},
		Frontier: &PriorityQueue{items: make([]PriorityQueueItem, 0, queueCap)},
		Items:    make([]PriorityQueueItem, 0, queueCap),
	}
}

// Get takes a reset searcher from the pool.
func Get() *Searcher {
	s := pool.Get().(*Searcher)
	s.Reset()
	return s
}

// Put hands s back to the pool. s must not be used afterwards.
func Put(s *Searcher) { pool.Put(s) }

// Reset prepares s for the next traversal.
func (s *Searcher) Reset() {
	s.Visited.Reset()
	s.Results.Reset()
	s.Frontier.Reset()
	s.Items = s.Items[:0]
	s.Scored = 0
}
