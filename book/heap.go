package book

import "container/heap"

// levelHeap is the shared slice backing for both book sides. It stores
// bare price Levels, not PriceLevel payloads: the owning side's lookup
// map is the single source of truth for amount and sequence, so the heap
// only ever needs to answer "what is the best price currently resting."
//
// Entries may be stale (removed from the lookup but not yet popped from
// the heap) — see bookSide.settle. This lazy-deletion scheme trades a
// small amount of amortized pop cost at the tip for a much simpler
// invariant set than an indexed/removable heap would need.
type levelHeap []Level

func (h levelHeap) Len() int      { return len(h) }
func (h levelHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *levelHeap) Push(x any) {
	*h = append(*h, x.(Level))
}

func (h *levelHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// bidHeap is a max-heap over Level: the highest resting bid sorts first.
type bidHeap struct{ levelHeap }

func (h bidHeap) Less(i, j int) bool { return h.levelHeap[i] > h.levelHeap[j] }

// askHeap is a min-heap over Level: the lowest resting ask sorts first.
type askHeap struct{ levelHeap }

func (h askHeap) Less(i, j int) bool { return h.levelHeap[i] < h.levelHeap[j] }

// heapInterface is implemented by both bidHeap and askHeap so bookSide
// can drive either through container/heap without duplicating the
// lazy-deletion/compaction logic per side.
type heapInterface interface {
	heap.Interface
	peek() (Level, bool)
}

func (h bidHeap) peek() (Level, bool) {
	if len(h.levelHeap) == 0 {
		return 0, false
	}
	return h.levelHeap[0], true
}

func (h askHeap) peek() (Level, bool) {
	if len(h.levelHeap) == 0 {
		return 0, false
	}
	return h.levelHeap[0], true
}
