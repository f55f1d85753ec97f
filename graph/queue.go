package graph

import (
	"container/heap"
	"context"
	"sync"

	"github.com/google/uuid"
)

// QueuedRun is one pending run: a sequence number, run identity, the
// immutable prompt, and the submission context. SessionID is a reference to
// the originating session, not ownership: the session may disconnect before
// the run completes, in which case progress events are dropped rather than
// queued.
type QueuedRun struct {
	Sequence  int64
	RunID     string
	Prompt    *Prompt
	SessionID string
	ExtraData map[string]any

	// Front prioritizes the run ahead of normal FIFO order.
	Front bool
}

// orderKey sorts front-of-queue runs before normal ones, FIFO within each
// class.
func (r *QueuedRun) orderKey() (int, int64) {
	if r.Front {
		return 0, r.Sequence
	}
	return 1, r.Sequence
}

type runHeap []*QueuedRun

func (h runHeap) Len() int { return len(h) }

func (h runHeap) Less(i, j int) bool {
	ci, si := h[i].orderKey()
	cj, sj := h[j].orderKey()
	if ci != cj {
		return ci < cj
	}
	return si < sj
}

func (h runHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *runHeap) Push(x any) { *h = append(*h, x.(*QueuedRun)) }

func (h *runHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SubmissionQueue is the ordered, priority-aware queue of pending runs.
// Multiple sessions enqueue concurrently; the single executor loop
// consumes. Ordering is FIFO by submission sequence, with front-of-queue
// submissions jumping ahead (still FIFO among themselves).
//
// Thread-safety: all methods are safe for concurrent use.
type SubmissionQueue struct {
	mu     sync.Mutex
	heap   runHeap
	seq    int64
	closed bool

	// notify wakes a blocked DequeueNext; buffered so Enqueue never
	// blocks on it.
	notify chan struct{}
}

// NewSubmissionQueue creates an empty queue.
func NewSubmissionQueue() *SubmissionQueue {
	q := &SubmissionQueue{notify: make(chan struct{}, 1)}
	heap.Init(&q.heap)
	return q
}

// Enqueue adds a run and returns its assigned sequence number and run
// identity. A zero RunID gets a generated UUID; a caller-assigned identity
// is kept.
func (q *SubmissionQueue) Enqueue(run *QueuedRun) (int64, string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, "", ErrQueueClosed
	}

	q.seq++
	run.Sequence = q.seq
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	heap.Push(&q.heap, run)

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return run.Sequence, run.RunID, nil
}

// DequeueNext blocks until a run is available, the queue is closed, or ctx
// is cancelled.
func (q *SubmissionQueue) DequeueNext(ctx context.Context) (*QueuedRun, error) {
	for {
		q.mu.Lock()
		if q.heap.Len() > 0 {
			run := heap.Pop(&q.heap).(*QueuedRun)
			q.mu.Unlock()
			return run, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// TryDequeue returns the next run without blocking.
func (q *SubmissionQueue) TryDequeue() (*QueuedRun, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&q.heap).(*QueuedRun), true
}

// CancelPending removes a not-yet-started run by identity. It cannot touch
// a run already handed to the executor; cancel those via
// Executor.Interrupt.
func (q *SubmissionQueue) CancelPending(runID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, run := range q.heap {
		if run.RunID == runID {
			heap.Remove(&q.heap, i)
			return true
		}
	}
	return false
}

// Len returns the number of queued, not-yet-started runs.
func (q *SubmissionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// PendingRunIDs returns the identities of queued runs in dequeue order.
func (q *SubmissionQueue) PendingRunIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	tmp := make(runHeap, len(q.heap))
	copy(tmp, q.heap)
	heap.Init(&tmp)
	ids := make([]string, 0, len(tmp))
	for tmp.Len() > 0 {
		ids = append(ids, heap.Pop(&tmp).(*QueuedRun).RunID)
	}
	return ids
}

// Close rejects further enqueues and unblocks waiting consumers.
func (q *SubmissionQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
