package worker

import (
	"container/heap"
	"sync"
	"time"

	"github.com/jzx17/prioexec/pkg/types"
)

// entryKind tags what a queue entry carries
type entryKind uint8

const (
	// entryTask is real work submitted by a caller
	entryTask entryKind = iota
	// entryProbe asks the worker that dequeues it to re-evaluate whether to exit
	entryProbe
)

// entry is a single item of the work queue.
// Task entries are immutable once queued; probes carry no work.
type entry struct {
	kind        entryKind
	priority    int
	seq         uint64
	submittedAt time.Time

	id     string
	fn     types.TaskFunc
	future *types.Future
}

// newProbe creates a shutdown probe
func newProbe() *entry {
	return &entry{kind: entryProbe}
}

func (e *entry) isProbe() bool {
	return e.kind == entryProbe
}

// less orders entries: every task before every probe, then ascending priority,
// then submission time, then submission sequence (FIFO among equal priorities).
func (e *entry) less(other *entry) bool {
	if e.kind != other.kind {
		return e.kind == entryTask
	}
	if e.kind == entryProbe {
		return false
	}
	if e.priority != other.priority {
		return e.priority < other.priority
	}
	if !e.submittedAt.Equal(other.submittedAt) {
		return e.submittedAt.Before(other.submittedAt)
	}
	return e.seq < other.seq
}

// entryHeap is a min-heap of queue entries (internal use)
type entryHeap []*entry

// Len implements heap.Interface
func (h entryHeap) Len() int { return len(h) }

// Less implements heap.Interface
func (h entryHeap) Less(i, j int) bool { return h[i].less(h[j]) }

// Swap implements heap.Interface
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push implements heap.Interface
func (h *entryHeap) Push(x interface{}) {
	*h = append(*h, x.(*entry))
}

// Pop implements heap.Interface
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return item
}

// priorityWorkQueue is an unbounded blocking queue that always yields its
// lowest entry. It is safe for concurrent producers and consumers.
type priorityWorkQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	heap     entryHeap
}

// newPriorityWorkQueue creates an empty work queue
func newPriorityWorkQueue() *priorityWorkQueue {
	q := &priorityWorkQueue{
		heap: make(entryHeap, 0),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// put inserts an entry in O(log n)
func (q *priorityWorkQueue) put(e *entry) {
	q.mu.Lock()
	heap.Push(&q.heap, e)
	q.mu.Unlock()

	q.notEmpty.Signal()
}

// take blocks until an entry is available and removes the lowest one
func (q *priorityWorkQueue) take() *entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.heap) == 0 {
		q.notEmpty.Wait()
	}
	return heap.Pop(&q.heap).(*entry)
}

// tryTake removes the lowest entry without blocking
func (q *priorityWorkQueue) tryTake() (*entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil, false
	}
	return heap.Pop(&q.heap).(*entry), true
}

// len returns the number of queued entries, probes included
func (q *priorityWorkQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// pendingTasks counts queued task entries
func (q *priorityWorkQueue) pendingTasks() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, e := range q.heap {
		if !e.isProbe() {
			n++
		}
	}
	return n
}
