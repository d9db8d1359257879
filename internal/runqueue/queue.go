package runqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"loom/internal/logging"
	"loom/internal/worker"
)

var (
	// ErrInvalidLimit rejects queue construction with a non-positive cap.
	ErrInvalidLimit = errors.New("max workers must be at least 1")
	// ErrShutdown rejects submissions after Shutdown has begun.
	ErrShutdown = errors.New("queue is shut down")
	// ErrNotFound reports an unknown worker id.
	ErrNotFound = errors.New("worker not found")
	// ErrDuplicate rejects submitting the same worker twice.
	ErrDuplicate = errors.New("worker already submitted")
)

// Stats is a point-in-time summary of queue occupancy.
type Stats struct {
	Pending    int
	Running    int
	Finished   int
	MaxWorkers int
}

// Option configures optional queue behavior.
type Option func(*Queue)

// WithLogger attaches a logger for admission and bookkeeping diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logging.NewComponentLogger(logger, "runqueue")
		}
	}
}

// Queue admits submitted workers into a bounded set of running slots.
type Queue struct {
	limit  int
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*worker.Worker
	running map[string]*worker.Worker
	known   map[string]*worker.Worker
	results map[string]worker.Result
	down    bool
	wg      sync.WaitGroup
}

// New constructs a queue running at most maxWorkers workers concurrently.
func New(maxWorkers int, opts ...Option) (*Queue, error) {
	if maxWorkers < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidLimit, maxWorkers)
	}
	q := &Queue{
		limit:   maxWorkers,
		logger:  logging.NewNop(),
		running: make(map[string]*worker.Worker),
		known:   make(map[string]*worker.Worker),
		results: make(map[string]worker.Result),
	}
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// MaxWorkers returns the concurrency cap.
func (q *Queue) MaxWorkers() int { return q.limit }

// Submit appends a pending worker to the FIFO and starts it immediately if
// a slot is free. Returns ErrShutdown once Shutdown has begun and
// ErrDuplicate when the worker was already submitted.
func (q *Queue) Submit(w *worker.Worker) error {
	if w == nil {
		return errors.New("worker is nil")
	}
	q.mu.Lock()
	if q.down {
		q.mu.Unlock()
		return fmt.Errorf("%w: cannot submit worker %s", ErrShutdown, w.ID())
	}
	if _, exists := q.known[w.ID()]; exists {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, w.ID())
	}
	if status := w.Status(); status != worker.StatusPending {
		q.mu.Unlock()
		return fmt.Errorf("%w: worker %s is %s", worker.ErrNotPending, w.ID(), status)
	}
	q.known[w.ID()] = w
	q.pending = append(q.pending, w)
	q.wg.Add(1)
	go q.watch(w)
	q.mu.Unlock()
	q.admit()

	q.logger.Debug("worker submitted",
		logging.String(logging.FieldWorkerID, w.ID()),
		logging.String(logging.FieldTask, w.Task()))
	return nil
}

// watch waits for one worker's terminal transition, then reclaims its slot
// and admits the next pending worker. This is the admission-control loop:
// it runs on completion events, never on a poll timer.
func (q *Queue) watch(w *worker.Worker) {
	defer q.wg.Done()
	<-w.Done()
	q.mu.Lock()
	q.settleLocked(w)
	q.cond.Broadcast()
	q.mu.Unlock()
	q.admit()
}

func (q *Queue) settleLocked(w *worker.Worker) {
	id := w.ID()
	delete(q.running, id)
	for i, pending := range q.pending {
		if pending.ID() == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	q.results[id] = w.Result()
}

// admit promotes pending workers while slots are free. The slot is reserved
// under the lock, but Start runs outside it: Start invokes the worker's
// callback for the RUNNING transition, and a callback must be free to call
// back into the queue. Start failures are recorded and must not stall
// admission of the remaining pending work.
func (q *Queue) admit() {
	for {
		q.mu.Lock()
		if len(q.running) >= q.limit || len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		w := q.pending[0]
		q.pending = q.pending[1:]
		if w.Status().Terminal() {
			// Cancelled while waiting; its watcher handles bookkeeping.
			q.results[w.ID()] = w.Result()
			q.mu.Unlock()
			continue
		}
		q.running[w.ID()] = w
		q.mu.Unlock()

		if err := w.Start(); err != nil {
			q.logger.Error("failed to start worker",
				logging.String(logging.FieldWorkerID, w.ID()),
				logging.Error(err))
			q.mu.Lock()
			delete(q.running, w.ID())
			if w.Status().Terminal() {
				q.results[w.ID()] = w.Result()
			}
			q.cond.Broadcast()
			q.mu.Unlock()
		}
	}
}

// Result returns the current snapshot for a submitted worker without
// blocking. Unknown ids yield ErrNotFound.
func (q *Queue) Result(id string) (worker.Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if res, ok := q.results[id]; ok {
		return res, nil
	}
	if w, ok := q.known[id]; ok {
		return w.Result(), nil
	}
	return worker.Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// WaitResult blocks until the worker reaches a terminal state or ctx ends.
// On context expiry it returns the latest non-terminal snapshot together
// with the context error, so callers can distinguish "still pending".
func (q *Queue) WaitResult(ctx context.Context, id string) (worker.Result, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if res, ok := q.results[id]; ok {
			return res, nil
		}
		w, ok := q.known[id]
		if !ok {
			return worker.Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := ctx.Err(); err != nil {
			return w.Result(), err
		}
		q.cond.Wait()
	}
}

// Cancel requests cancellation of one submitted worker.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	w, ok := q.known[id]
	q.mu.Unlock()
	if !ok {
		return false
	}
	return w.Cancel()
}

// CancelAll cancels every non-terminal submitted worker and reports how
// many cancellation requests took effect.
func (q *Queue) CancelAll() int {
	q.mu.Lock()
	workers := make([]*worker.Worker, 0, len(q.known))
	for _, w := range q.known {
		workers = append(workers, w)
	}
	q.mu.Unlock()

	cancelled := 0
	for _, w := range workers {
		if w.Cancel() {
			cancelled++
		}
	}
	return cancelled
}

// Stats returns current occupancy counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:    len(q.pending),
		Running:    len(q.running),
		Finished:   len(q.results),
		MaxWorkers: q.limit,
	}
}

// Shutdown stops accepting submissions. With cancelPending, workers still
// waiting are cancelled immediately; otherwise they drain normally. With
// wait, Shutdown blocks until every submitted worker is terminal and all
// internal watchers have exited.
func (q *Queue) Shutdown(wait, cancelPending bool) {
	q.mu.Lock()
	q.down = true
	var toCancel []*worker.Worker
	if cancelPending {
		toCancel = append(toCancel, q.pending...)
	}
	q.mu.Unlock()

	for _, w := range toCancel {
		w.Cancel()
	}

	if wait {
		q.mu.Lock()
		for len(q.running) > 0 || len(q.pending) > 0 {
			q.cond.Wait()
		}
		q.mu.Unlock()
		q.wg.Wait()
	}
	q.logger.Debug("queue shut down",
		logging.Bool("waited", wait),
		logging.Bool("cancelled_pending", cancelPending))
}
