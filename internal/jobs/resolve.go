package jobs

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFailed is returned when resolving a job that has not failed.
var ErrNotFailed = errors.New("submission job has not failed")

// Resolve marks a failed job as reconciled. The aggregate it bumped stays as
// it is; resolving records that an operator accounted for the missing ledger
// entry. The original error is kept, with note appended when given.
func Resolve(ctx context.Context, store JobStore, jobID, note string) (*SubmissionJob, error) {
	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != JobStatusFailed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotFailed, jobID, job.Status)
	}

	msg := job.Error
	if note != "" {
		msg = fmt.Sprintf("%s (resolved: %s)", job.Error, note)
	}
	if err := store.UpdateJobStatus(ctx, jobID, JobStatusResolved, msg); err != nil {
		return nil, err
	}
	return store.GetJob(ctx, jobID)
}
