package scheduler

import "container/heap"

// scheduleHeap is a container/heap-backed min-heap on (fireAt, seq).
// Tombstoned entries are left in place by Cancel/overwrite and only
// discarded when popped, trading a possibly-stale top-of-heap check for
// admission and cancellation that stay O(log n) without a decrease-key
// structure.
type scheduleHeap []*Schedule

func (h scheduleHeap) Len() int { return len(h) }

func (h scheduleHeap) Less(i, j int) bool {
	if h[i].fireAt != h[j].fireAt {
		return h[i].fireAt < h[j].fireAt
	}
	return h[i].seq < h[j].seq
}

func (h scheduleHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *scheduleHeap) Push(x any) {
	s := x.(*Schedule)
	s.heapIndex = len(*h)
	*h = append(*h, s)
}

func (h *scheduleHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.heapIndex = -1
	*h = old[:n-1]
	return s
}

var _ heap.Interface = (*scheduleHeap)(nil)
