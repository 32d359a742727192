// Package jobs runs batch operations over sets of assets with a bounded
// worker pool. Item failures are recorded per item and never fail the batch;
// the failed status is reserved for faults of the queue itself.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/models"
	"github.com/your-org/medialib/internal/observability"
)

// ErrQueueFault means the queue could not run a batch at all, as opposed to
// individual items failing.
var ErrQueueFault = errors.New("batch queue fault")

var ErrJobNotFound = errors.New("job not found")

// ItemHandler processes one asset for one batch operation.
type ItemHandler func(ctx context.Context, op models.BatchOperation, assetID uuid.UUID) error

// Queue executes batch jobs. Items within a job run sequentially on one
// worker; distinct jobs run concurrently up to the worker count.
type Queue struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*models.BatchJob
	cancels map[uuid.UUID]context.CancelFunc

	handler ItemHandler
	tasks   chan uuid.UUID
	wg      sync.WaitGroup
	ctx     context.Context
	stop    context.CancelFunc
	closed  bool
	logger  *slog.Logger
}

func NewQueue(cfg config.JobsConfig, handler ItemHandler) *Queue {
	ctx, stop := context.WithCancel(context.Background())
	q := &Queue{
		jobs:    make(map[uuid.UUID]*models.BatchJob),
		cancels: make(map[uuid.UUID]context.CancelFunc),
		handler: handler,
		tasks:   make(chan uuid.UUID, cfg.QueueSize),
		ctx:     ctx,
		stop:    stop,
		logger:  slog.With("component", "jobs"),
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues a batch job and returns it in the queued state. A full
// queue is a queue fault.
func (q *Queue) Submit(op models.BatchOperation, assetIDs []uuid.UUID, priority int) (*models.BatchJob, error) {
	if len(assetIDs) == 0 {
		return nil, fmt.Errorf("%w: empty asset list", ErrQueueFault)
	}

	job := &models.BatchJob{
		ID:        uuid.New(),
		Operation: op,
		AssetIDs:  append([]uuid.UUID(nil), assetIDs...),
		Priority:  priority,
		Status:    models.JobStatusQueued,
		Results:   make([]*models.BatchItemResult, len(assetIDs)),
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: queue closed", ErrQueueFault)
	}
	q.jobs[job.ID] = job
	q.mu.Unlock()

	select {
	case q.tasks <- job.ID:
	default:
		q.mu.Lock()
		job.Status = models.JobStatusFailed
		now := time.Now().UTC()
		job.CompletedAt = &now
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: queue full", ErrQueueFault)
	}

	observability.QueueDepth.Set(float64(len(q.tasks)))
	q.logger.Info("batch job queued", "job", job.ID, "operation", op, "items", len(assetIDs))
	return q.snapshot(job.ID), nil
}

// Get returns a snapshot of the job's current state.
func (q *Queue) Get(id uuid.UUID) (*models.BatchJob, error) {
	job := q.snapshot(id)
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// List returns snapshots of all known jobs, newest first.
func (q *Queue) List() []*models.BatchJob {
	q.mu.Lock()
	ids := make([]uuid.UUID, 0, len(q.jobs))
	for id := range q.jobs {
		ids = append(ids, id)
	}
	q.mu.Unlock()

	out := make([]*models.BatchJob, 0, len(ids))
	for _, id := range ids {
		if s := q.snapshot(id); s != nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Cancel stops scheduling further items. Items already dispatched run to
// completion; a cancelled job still ends in completed once every remaining
// item is accounted for.
func (q *Queue) Cancel(id uuid.UUID) error {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return ErrJobNotFound
	}
	job.Cancelled = true
	cancel := q.cancels[id]
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.logger.Info("batch job cancelled", "job", id)
	return nil
}

// Close stops the workers after draining in-flight items.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.tasks)
	q.wg.Wait()
	q.stop()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for id := range q.tasks {
		observability.QueueDepth.Set(float64(len(q.tasks)))
		q.run(id)
	}
}

func (q *Queue) run(id uuid.UUID) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.Status = models.JobStatusProcessing
	jobCtx, cancel := context.WithCancel(q.ctx)
	q.cancels[id] = cancel
	cancelled := job.Cancelled
	assetIDs := job.AssetIDs
	op := job.Operation
	q.mu.Unlock()
	defer cancel()

	for i, assetID := range assetIDs {
		q.mu.Lock()
		cancelled = job.Cancelled
		q.mu.Unlock()

		if cancelled || jobCtx.Err() != nil {
			q.recordError(job, assetID, i, errors.New("cancelled before dispatch"))
			observability.BatchItemsProcessed.WithLabelValues(string(op), "cancelled").Inc()
			continue
		}

		err := q.handler(jobCtx, op, assetID)
		if err != nil {
			q.recordError(job, assetID, i, err)
			observability.BatchItemsProcessed.WithLabelValues(string(op), "failed").Inc()
			continue
		}

		q.mu.Lock()
		job.Results[i] = &models.BatchItemResult{AssetID: assetID, FinishedAt: time.Now().UTC()}
		job.Progress = progress(i+1, len(assetIDs))
		q.mu.Unlock()
		observability.BatchItemsProcessed.WithLabelValues(string(op), "succeeded").Inc()
	}

	q.mu.Lock()
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	now := time.Now().UTC()
	job.CompletedAt = &now
	errCount := len(job.Errors)
	delete(q.cancels, id)
	q.mu.Unlock()

	q.logger.Info("batch job finished",
		"job", id,
		"operation", op,
		"items", len(assetIDs),
		"errors", errCount,
	)
}

func (q *Queue) recordError(job *models.BatchJob, assetID uuid.UUID, idx int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Errors = append(job.Errors, models.BatchItemError{AssetID: assetID, Error: err.Error()})
	job.Progress = progress(idx+1, len(job.AssetIDs))
}

func progress(done, total int) int {
	return done * 100 / total
}

func (q *Queue) snapshot(id uuid.UUID) *models.BatchJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil
	}
	out := *job
	out.AssetIDs = append([]uuid.UUID(nil), job.AssetIDs...)
	out.Results = make([]*models.BatchItemResult, len(job.Results))
	for i, r := range job.Results {
		if r != nil {
			c := *r
			out.Results[i] = &c
		}
	}
	out.Errors = append([]models.BatchItemError(nil), job.Errors...)
	return &out
}
