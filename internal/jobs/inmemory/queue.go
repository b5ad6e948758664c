package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
)

type queued struct {
	job     *jobs.SubmissionJob
	pending *jobs.Pending
}

// Queue is the process-wide submission serialization point. Producers
// publish concurrently; a single worker goroutine drains the channel so the
// ledger sees submissions one at a time, in admission order.
//
// Once a job reaches the worker it runs to completion regardless of caller
// or queue cancellation. There are no retries: a resubmission would take a
// later ordering slot than the jobs behind it.
type Queue struct {
	jobChan   chan queued
	closeChan chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	log       zerolog.Logger
	closed    bool
	started   bool
}

// NewQueue creates a new submission queue.
// bufferSize determines how many jobs can wait before PublishSubmission blocks.
func NewQueue(bufferSize int, store jobs.JobStore, log zerolog.Logger) *Queue {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Queue{
		jobChan:   make(chan queued, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		log:       log.With().Str("component", "submission_queue").Logger(),
	}
}

// PublishSubmission implements the Publisher interface.
func (q *Queue) PublishSubmission(ctx context.Context, job *jobs.SubmissionJob) (*jobs.Pending, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, jobs.ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to save job: %w", err)
		}
	}

	p := jobs.NewPending()
	select {
	case q.jobChan <- queued{job: job, pending: p}:
		return p, nil
	case <-ctx.Done():
		q.abandon(job, ctx.Err())
		return nil, ctx.Err()
	case <-q.closeChan:
		q.abandon(job, jobs.ErrQueueClosed)
		return nil, jobs.ErrQueueClosed
	}
}

// abandon marks a job that never made it into the channel.
func (q *Queue) abandon(job *jobs.SubmissionJob, cause error) {
	if q.store == nil {
		return
	}
	now := time.Now().UTC()
	job.Status = jobs.JobStatusFailed
	job.CompletedAt = &now
	job.Error = cause.Error()
	_ = q.store.SaveJob(context.Background(), job)
}

// Start implements the Consumer interface. It starts exactly one worker.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}
	if q.started {
		return fmt.Errorf("queue already started")
	}
	q.started = true

	q.wg.Add(1)
	go q.worker(ctx, handler)

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()
	defer func() {
		q.markClosed()
		q.drain()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case item := <-q.jobChan:
			q.processJob(ctx, item, handler)
		}
	}
}

// processJob runs one submission to completion. The handler context keeps
// ctx values but never its cancellation.
func (q *Queue) processJob(ctx context.Context, item queued, handler jobs.JobHandler) {
	job := item.job
	runCtx := context.WithoutCancel(ctx)

	now := time.Now().UTC()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &now
	q.save(runCtx, job)

	receipt, err := q.invoke(runCtx, job, handler)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt
	job.ConfirmationID = receipt.ConfirmationID
	job.LedgerIndex = receipt.LedgerIndex
	if err != nil {
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
		q.log.Error().Err(err).
			Str("job_id", job.JobID).
			Str("company_id", job.CompanyID).
			Str("data_hash", job.DataHash).
			Msg("Ledger submission failed")
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		q.log.Debug().
			Str("job_id", job.JobID).
			Str("confirmation_id", receipt.ConfirmationID).
			Uint64("ledger_index", receipt.LedgerIndex).
			Msg("Ledger submission confirmed")
	}
	q.save(runCtx, job)

	item.pending.Resolve(receipt, err)
}

// invoke turns a handler panic into a failed submission so the worker survives.
func (q *Queue) invoke(ctx context.Context, job *jobs.SubmissionJob, handler jobs.JobHandler) (receipt domain.LedgerReceipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("submission handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) save(ctx context.Context, job *jobs.SubmissionJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to persist job state")
	}
}

// markClosed stops admission. closeChan is closed before taking the write
// lock so publishers blocked on a full channel can let go of the read lock.
func (q *Queue) markClosed() {
	q.closeOnce.Do(func() { close(q.closeChan) })
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// drain fails every job still waiting in the channel.
func (q *Queue) drain() {
	for {
		select {
		case item := <-q.jobChan:
			now := time.Now().UTC()
			item.job.Status = jobs.JobStatusFailed
			item.job.CompletedAt = &now
			item.job.Error = jobs.ErrQueueClosed.Error()
			q.save(context.Background(), item.job)
			item.pending.Resolve(domain.LedgerReceipt{}, jobs.ErrQueueClosed)
		default:
			return
		}
	}
}

// Len reports how many jobs are waiting behind the serialization point.
func (q *Queue) Len() int {
	return len(q.jobChan)
}

// Stop implements the Consumer interface.
// It stops admission and waits for the in-flight submission to resolve.
func (q *Queue) Stop(ctx context.Context) error {
	q.markClosed()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		q.drain()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
