package queue

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned when no room could be made for a job.
	ErrQueueFull = errors.New("queue: full")
	// ErrDropped is returned when a lowest-band job arrives at a full queue.
	ErrDropped = errors.New("queue: lowest priority job dropped")
)

// Option configures PriorityQueue.
type Option func(*PriorityQueue)

// WithMaxDepth sets the hard cap on queued jobs.
func WithMaxDepth(n int) Option {
	return func(q *PriorityQueue) {
		if n > 0 {
			q.maxDepth = n
		}
	}
}

// Entry is a queued job with its bookkeeping.
type Entry struct {
	Job        Job
	EnqueuedAt time.Time
	seq        uint64
}

// PriorityQueue orders jobs by ascending priority, FIFO within a priority.
// It is safe for concurrent producers.
type PriorityQueue struct {
	mu       sync.Mutex
	items    entryHeap
	seq      uint64
	maxDepth int
}

// NewPriorityQueue creates an empty queue capped at 50 jobs by default.
func NewPriorityQueue(opts ...Option) *PriorityQueue {
	q := &PriorityQueue{
		maxDepth: 50,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push enqueues a job. At the cap, lowest-band jobs are purged to make room for
// higher bands, and an incoming lowest-band job is dropped instead.
// It returns the number of purged jobs.
func (q *PriorityQueue) Push(job Job) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	purged := 0
	if len(q.items) >= q.maxDepth {
		if job.Priority() >= PriorityScan {
			return 0, ErrDropped
		}
		purged = q.purgeLocked(PriorityScan)
		if len(q.items) >= q.maxDepth {
			return purged, ErrQueueFull
		}
	}

	q.seq++
	heap.Push(&q.items, &Entry{Job: job, EnqueuedAt: time.Now(), seq: q.seq})
	return purged, nil
}

// Pop removes the next job. ok is false when the queue is empty.
func (q *PriorityQueue) Pop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Entry{}, false
	}
	e := heap.Pop(&q.items).(*Entry)
	return *e, true
}

// Len returns the number of queued jobs.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Count returns the number of queued jobs in band p.
func (q *PriorityQueue) Count(p Priority) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, e := range q.items {
		if e.Job.Priority() == p {
			n++
		}
	}
	return n
}

// Pending reports whether a job with the given name is queued.
func (q *PriorityQueue) Pending(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.items {
		if e.Job.Name() == name {
			return true
		}
	}
	return false
}

// Purge removes every job with priority p or lower and returns how many were removed.
func (q *PriorityQueue) Purge(p Priority) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.purgeLocked(p)
}

func (q *PriorityQueue) purgeLocked(p Priority) int {
	kept := q.items[:0]
	removed := 0
	for _, e := range q.items {
		if e.Job.Priority() >= p {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	heap.Init(&q.items)
	return removed
}

type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	pi, pj := h[i].Job.Priority(), h[j].Job.Priority()
	if pi != pj {
		return pi < pj
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*Entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
