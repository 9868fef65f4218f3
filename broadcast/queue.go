// Package broadcast implements the bounded, priority-ordered piggyback
// queue the engine packs onto outgoing frames (swim.BroadcastQueue).
// Each enqueued update carries a retransmit budget computed from the
// current cluster size; entries are served highest-remaining-budget
// first so fresher news crowds out updates that have already propagated
// widely, then are dropped once their budget is exhausted.
//
// Grounded on the teacher's PriorityPBStore/pbkStore naming (a
// piggyback store gating how many times each fact gets re-sent) and on
// node_set.rs's "shuffle when a round completes" idiom, reapplied here
// to decide which updates loses its turn first.
package broadcast

import (
	"container/heap"
	"sync"

	"github.com/lifeguard-swim/swim"
)

// entry is one queued StateUpdate plus its remaining retransmit budget
// and a monotonically increasing sequence used to break ties in favor
// of the most recently pushed update.
type entry struct {
	update    swim.StateUpdate
	remaining int
	seq       uint64
	index     int
}

// maxHeap orders by remaining budget descending, then by seq descending
// (most recent first) on ties.
type maxHeap []*entry

func (h maxHeap) Len() int { return len(h) }
func (h maxHeap) Less(i, j int) bool {
	if h[i].remaining != h[j].remaining {
		return h[i].remaining > h[j].remaining
	}
	return h[i].seq > h[j].seq
}
func (h maxHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *maxHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a bounded priority retransmit queue, safe for concurrent use
// (the transport's accept/read loops may call Take concurrently with
// the engine's single goroutine calling Push).
type Queue struct {
	mu         sync.Mutex
	heap       maxHeap
	byAddr     map[swim.Addr]*entry
	nextSeq    uint64
	multiplier int
	nodeCount  func() int
}

// NewQueue creates an empty Queue. multiplier is BroadcastConfig's
// Multiplier; nodeCount returns the current cluster size used to
// compute each freshly pushed update's retransmit budget
// (multiplier*ceil(log10(n+1))).
func NewQueue(multiplier int, nodeCount func() int) *Queue {
	if multiplier < 1 {
		multiplier = 1
	}
	return &Queue{
		byAddr:     make(map[swim.Addr]*entry),
		multiplier: multiplier,
		nodeCount:  nodeCount,
	}
}

func retransmitLimit(multiplier, n int) int {
	scale := ceilLog10(n + 1)
	limit := multiplier * scale
	if limit < 1 {
		limit = 1
	}
	return limit
}

// ceilLog10 returns ceil(log10(n)) for n >= 1 without float rounding
// surprises at exact powers of ten.
func ceilLog10(n int) int {
	if n <= 1 {
		return 0
	}
	digits, pow := 0, 1
	for pow < n {
		pow *= 10
		digits++
	}
	return digits
}

// Push enqueues update, replacing any still-pending update for the same
// address (a newer fact about a node supersedes an older one regardless
// of how much budget the old one had left) and resetting its retransmit
// budget.
func (q *Queue) Push(update swim.StateUpdate) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if old, ok := q.byAddr[update.Addr]; ok {
		q.removeLocked(old)
	}

	limit := retransmitLimit(q.multiplier, q.currentNodeCount())
	e := &entry{update: update, remaining: limit, seq: q.nextSeq}
	q.nextSeq++

	heap.Push(&q.heap, e)
	q.byAddr[update.Addr] = e
}

func (q *Queue) currentNodeCount() int {
	if q.nodeCount == nil {
		return 1
	}
	return q.nodeCount()
}

func (q *Queue) removeLocked(e *entry) {
	if e.index >= 0 {
		heap.Remove(&q.heap, e.index)
	}
	delete(q.byAddr, e.update.Addr)
}

// Take returns up to n updates in priority order, each decremented by
// one use of its retransmit budget; entries whose budget reaches zero
// are dropped after being returned this one last time. Size is
// estimated as len(Addr)+len(Metadata)+len(From)+16 per update; once one
// update has been taken, the next is taken only if the running total
// stays within budgetBytes. The first update is always taken, even when
// it alone exceeds budgetBytes.
func (q *Queue) Take(n int, budgetBytes int) []swim.StateUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.heap) == 0 {
		return nil
	}

	out := make([]swim.StateUpdate, 0, n)
	used := 0
	var taken []*entry

	for len(out) < n && len(q.heap) > 0 {
		e := q.heap[0]
		size := estimateSize(e.update)
		if used+size > budgetBytes && len(out) > 0 {
			break
		}

		heap.Pop(&q.heap)
		out = append(out, e.update)
		used += size
		taken = append(taken, e)
	}

	for _, e := range taken {
		e.remaining--
		if e.remaining <= 0 {
			delete(q.byAddr, e.update.Addr)
			continue
		}
		heap.Push(&q.heap, e)
	}

	return out
}

func estimateSize(u swim.StateUpdate) int {
	return len(u.Addr) + len(u.Metadata) + len(u.From) + 16
}

var _ swim.BroadcastQueue = (*Queue)(nil)
