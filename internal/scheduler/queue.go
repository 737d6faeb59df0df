package scheduler

import (
	"container/heap"
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ironsheep/imgengine/internal/fault"
)

// jobHeap orders jobs by priority, then submission order.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(a, b int) bool {
	if h[a].req.Priority != h[b].req.Priority {
		return h[a].req.Priority > h[b].req.Priority
	}
	return h[a].seq < h[b].seq
}

func (h jobHeap) Swap(a, b int) {
	h[a], h[b] = h[b], h[a]
	h[a].index = a
	h[b].index = b
}

func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}

// jobQueue is a bounded priority queue. Capacity is enforced by a weighted
// semaphore: a slot is taken before push and given back when the job leaves
// the queue, whether a worker took it or it was cancelled.
type jobQueue struct {
	slots *semaphore.Weighted

	mu     sync.Mutex
	items  jobHeap
	seq    uint64
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newJobQueue(capacity int) *jobQueue {
	return &jobQueue{
		slots: semaphore.NewWeighted(int64(capacity)),
		wake:  make(chan struct{}, capacity),
		done:  make(chan struct{}),
	}
}

// reserve takes a slot, waiting until one frees up or ctx ends.
func (q *jobQueue) reserve(ctx context.Context) error {
	if err := q.slots.Acquire(ctx, 1); err != nil {
		return fault.Cancelled("submit", err)
	}
	return nil
}

// tryReserve takes a slot without waiting.
func (q *jobQueue) tryReserve() bool { return q.slots.TryAcquire(1) }

// push enqueues j into a reserved slot. On a closed queue the slot is given
// back and ErrClosed returned.
func (q *jobQueue) push(j *job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.slots.Release(1)
		return fault.ErrClosed
	}
	q.seq++
	j.seq = q.seq
	heap.Push(&q.items, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// pop blocks for the next job. It returns nil once the queue is closed and
// empty.
func (q *jobQueue) pop() *job {
	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			j := heap.Pop(&q.items).(*job)
			q.mu.Unlock()
			q.slots.Release(1)
			return j
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-q.wake:
		case <-q.done:
		}
	}
}

// remove takes j out of the queue if it is still waiting there.
func (q *jobQueue) remove(j *job) bool {
	q.mu.Lock()
	if j.index < 0 {
		q.mu.Unlock()
		return false
	}
	heap.Remove(&q.items, j.index)
	q.mu.Unlock()
	q.slots.Release(1)
	return true
}

// removeAll empties the queue and returns what was waiting.
func (q *jobQueue) removeAll() []*job {
	q.mu.Lock()
	jobs := make([]*job, 0, len(q.items))
	for q.items.Len() > 0 {
		jobs = append(jobs, heap.Pop(&q.items).(*job))
	}
	q.mu.Unlock()
	if len(jobs) > 0 {
		q.slots.Release(int64(len(jobs)))
	}
	return jobs
}

// close rejects further pushes and wakes idle workers. Jobs already queued
// stay until popped or removed.
func (q *jobQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *jobQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *jobQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
