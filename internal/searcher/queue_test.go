package searcher

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueue(t *testing.T) {
	t.Run("MinHeap", func(t *testing.T) {
		pq := NewPriorityQueue(false)

		pq.PushItem(PriorityQueueItem{Node: 1, Distance: 10.0})
		pq.PushItem(PriorityQueueItem{Node: 2, Distance: 5.0})
		pq.PushItem(PriorityQueueItem{Node: 3, Distance: 20.0})

		if pq.Len() != 3 {
			t.Errorf("expected len 3, got %d", pq.Len())
		}

		top, ok := pq.TopItem()
		if !ok || top.Distance != 5.0 {
			t.Errorf("expected top 5.0, got %v", top.Distance)
		}

		for _, want := range []float32{5, 10, 20} {
			item, ok := pq.PopItem()
			if !ok || item.Distance != want {
				t.Errorf("expected %v, got %v", want, item.Distance)
			}
		}
		if _, ok := pq.PopItem(); ok {
			t.Error("expected empty queue")
		}
	})

	t.Run("MaxHeap", func(t *testing.T) {
		pq := NewPriorityQueue(true)

		pq.PushItem(PriorityQueueItem{Node: 1, Distance: 10.0})
		pq.PushItem(PriorityQueueItem{Node: 2, Distance: 5.0})
		pq.PushItem(PriorityQueueItem{Node: 3, Distance: 20.0})

		top, _ := pq.TopItem()
		if top.Distance != 20.0 {
			t.Errorf("expected top 20.0, got %v", top.Distance)
		}
		pq.PopItem()
		next, _ := pq.PopItem()
		if next.Node != 1 {
			t.Errorf("expected node 1 second, got %d", next.Node)
		}
	})
}

func TestPriorityQueue_TieBreak(t *testing.T) {
	minHeap := NewPriorityQueue(false)
	maxHeap := NewPriorityQueue(true)
	for _, id := range []uint32{7, 3, 9, 1} {
		minHeap.PushItem(PriorityQueueItem{Node: id, Distance: 1})
		maxHeap.PushItem(PriorityQueueItem{Node: id, Distance: 1})
	}

	var got []uint32
	for minHeap.Len() > 0 {
		item, _ := minHeap.PopItem()
		got = append(got, item.Node)
	}
	assert.Equal(t, []uint32{1, 3, 7, 9}, got, "min heap pops smaller ids first on ties")

	top, _ := maxHeap.TopItem()
	assert.Equal(t, uint32(9), top.Node, "max heap keeps the largest id on top on ties")
}

func TestPriorityQueue_PushItemBounded(t *testing.T) {
	pq := NewPriorityQueue(true)
	for i := 0; i < 10; i++ {
		pq.PushItemBounded(PriorityQueueItem{Node: uint32(i), Distance: float32(10 - i)}, 3)
	}
	require.Equal(t, 3, pq.Len())

	items := pq.Drain(nil)
	assert.Equal(t, []uint32{9, 8, 7}, []uint32{items[0].Node, items[1].Node, items[2].Node})

	// Equal distance with a smaller id displaces the top.
	pq.Reset()
	assert.True(t, pq.PushItemBounded(PriorityQueueItem{Node: 5, Distance: 1}, 1))
	assert.True(t, pq.PushItemBounded(PriorityQueueItem{Node: 4, Distance: 1}, 1))
	assert.False(t, pq.PushItemBounded(PriorityQueueItem{Node: 6, Distance: 1}, 1))
	top, _ := pq.TopItem()
	assert.Equal(t, uint32(4), top.Node)

	assert.False(t, NewPriorityQueue(true).PushItemBounded(PriorityQueueItem{}, 0))
}

func TestPriorityQueue_DrainOrder(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	items := make([]PriorityQueueItem, 200)
	for i := range items {
		items[i] = PriorityQueueItem{Node: uint32(i), Distance: float32(r.Intn(20))}
	}
	want := append([]PriorityQueueItem(nil), items...)
	sort.Slice(want, func(i, j int) bool { return Closer(want[i], want[j]) })

	for _, maxHeap := range []bool{false, true} {
		pq := NewPriorityQueue(maxHeap)
		for _, it := range items {
			pq.PushItem(it)
		}
		got := pq.Drain(make([]PriorityQueueItem, 0, len(items)))
		assert.Equal(t, want, got, "maxHeap=%v", maxHeap)
	}
}

func TestSearcherPool(t *testing.T) {
	s := Get()
	s.Visited.Mark(3)
	s.Results.PushItem(PriorityQueueItem{Node: 1})
	s.Scored = 5
	Put(s)

	s = Get()
	defer Put(s)
	assert.False(t, s.Visited.Mark(3))
	assert.Equal(t, 0, s.Results.Len())
	assert.Equal(t, 0, s.Frontier.Len())
	assert.Equal(t, 0, s.Scored)
}
