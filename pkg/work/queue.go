package work

import (
	"log/slog"
	"sync"
)

// MaxPending is the backlog above which the queue starts warning. Items are
// never dropped; a backlog this deep means nothing is draining the queue.
const MaxPending = 2000

// Queue is a multi-producer, single-consumer FIFO of work items. Push may be
// called from any goroutine without holding the kernel lock; Process is
// called by the lock holder.
type Queue struct {
	mu        sync.Mutex
	items     []Item
	closed    bool
	warned    bool
	pushed    uint64
	processed uint64
	logger    *slog.Logger
}

// NewQueue creates an empty queue
func NewQueue(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{logger: logger}
}

// Push appends it to the queue. Pushes after Close are ignored.
func (q *Queue) Push(it Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.items = append(q.items, it)
	q.pushed++

	if len(q.items) > MaxPending && !q.warned {
		q.logger.Warn("work queue backlog", "pending", len(q.items))
		q.warned = true
	}
}

// Process applies every queued item to h in the order pushed, including
// any pushed while processing is under way, and returns how many were
// applied. Each item is applied exactly once.
func (q *Queue) Process(h Handler) int {
	n := 0
	for {
		q.mu.Lock()
		batch := q.items
		q.items = nil
		q.warned = false
		q.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, it := range batch {
			q.logger.Debug("work item", "item", it.String())
			Dispatch(h, it)
		}
		n += len(batch)

		q.mu.Lock()
		q.processed += uint64(len(batch))
		q.mu.Unlock()
	}
}

// Len returns the number of items waiting
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns the number of items pushed and processed so far
func (q *Queue) Stats() (pushed, processed uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed, q.processed
}

// Close stops the queue accepting items. Items already queued can still be
// processed.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
