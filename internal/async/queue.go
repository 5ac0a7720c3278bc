// Package async runs pipeline jobs on a bounded worker pool.
package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/entity"
)

// Job is one queued document.
type Job struct {
	Document      entity.Document
	CallerID      string
	CorrelationID string
	SubmittedAt   time.Time
}

// Processor is what a worker calls per job. *pipeline.Orchestrator satisfies
// it.
type Processor interface {
	Process(ctx context.Context, doc entity.Document) (*entity.FinalRecord, error)
}

// Queue fans jobs out to a fixed pool of workers. Enqueue applies
// backpressure when the buffer is full; Shutdown drains in-flight work.
type Queue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	mu      sync.Mutex
	closed  bool
	senders sync.WaitGroup
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(proc Processor, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan Job, 256),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					if job.CallerID != "" {
						ctx = common.WithCallerID(ctx, job.CallerID)
					}
					if job.CorrelationID != "" {
						ctx = common.WithCorrelationID(ctx, job.CorrelationID)
					}
					rec, err := q.proc.Process(ctx, job.Document)
					cancel()

					if err != nil {
						q.logger.Error("processing failed",
							"worker_id", workerID, "document", job.Document.Name,
							"state", stateOf(rec), "error", err)
					} else {
						q.logger.Info("document processed",
							"worker_id", workerID, "document", job.Document.Name,
							"job_id", rec.JobID, "state", rec.State)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue submits a job, blocking while the buffer is full. The blocking send
// happens outside the mutex so Shutdown is never stalled behind backpressure;
// a shutdown or ctx cancellation unblocks the caller with an error.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "document", job.Document.Name)
		return common.NewAppError("QUEUE_CLOSED", "queue is shutting down", common.ErrInvalidInput)
	}
	q.senders.Add(1)
	q.mu.Unlock()
	defer q.senders.Done()

	select {
	case q.ch <- job:
		q.logger.Info("document queued", "document", job.Document.Name)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "document", job.Document.Name)
	select {
	case q.ch <- job:
		q.logger.Info("document queued", "document", job.Document.Name)
		return nil
	case <-q.done:
		return common.NewAppError("QUEUE_CLOSED", "queue is shutting down", common.ErrInvalidInput)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for in-flight jobs until ctx elapses.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	// unblock pending senders, then close the channel once none remain
	close(q.done)
	q.senders.Wait()
	close(q.ch)

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

func stateOf(rec *entity.FinalRecord) string {
	if rec == nil {
		return ""
	}
	return string(rec.State)
}
