package compare

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Job is a comparison run off the validation lock. A job error does not
// stop other jobs; Close returns the first one. Comparison results belong
// in the check ledger.
type Job func(ctx context.Context) error

type request struct {
	id   uint64
	name string
	job  Job
	done chan struct{}
}

// Worker runs composition comparisons asynchronously with bounded
// concurrency
type Worker struct {
	logger  *slog.Logger
	g       *errgroup.Group
	ctx     context.Context
	slots   chan struct{}
	mu      sync.Mutex
	pending map[uint64]*request
	nextID  uint64
	closed  bool
}

// NewWorker creates a worker running at most numWorkers jobs at once
func NewWorker(ctx context.Context, numWorkers int, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Worker{
		logger:  logger,
		g:       new(errgroup.Group),
		ctx:     ctx,
		slots:   make(chan struct{}, numWorkers),
		pending: make(map[uint64]*request),
	}
}

// Submit queues job and returns its id. It returns ErrWorkerClosed once
// Close has been called.
func (w *Worker) Submit(name string, job Job) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrWorkerClosed
	}

	w.nextID++
	req := &request{
		id:   w.nextID,
		name: name,
		job:  job,
		done: make(chan struct{}),
	}
	w.pending[req.id] = req

	w.g.Go(func() error { return w.process(req) })
	return req.id, nil
}

func (w *Worker) process(req *request) error {
	defer func() {
		close(req.done)
		w.mu.Lock()
		delete(w.pending, req.id)
		w.mu.Unlock()
	}()

	select {
	case w.slots <- struct{}{}:
	case <-w.ctx.Done():
		w.logger.Debug("comparison abandoned", "job", req.name, "id", req.id)
		return nil
	}
	defer func() { <-w.slots }()

	err := req.job(w.ctx)
	if err != nil {
		w.logger.Warn("comparison failed", "job", req.name, "id", req.id, "error", err)
	}
	return err
}

// Wait blocks until job id has finished
func (w *Worker) Wait(id uint64) {
	w.mu.Lock()
	req, ok := w.pending[id]
	w.mu.Unlock()

	if ok {
		<-req.done
	}
}

// Pending returns the number of unfinished jobs
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Close stops accepting jobs and waits for the queued ones, returning the
// first job error
func (w *Worker) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	return w.g.Wait()
}
