package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndGet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	job := newJob("ACME")
	job.JobID = "job-1"
	require.NoError(t, s.SaveJob(ctx, job))

	// mutations after save must not leak into the store
	job.Status = jobs.JobStatusFailed

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, got.Status)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Error(t, s.SaveJob(ctx, &jobs.SubmissionJob{}))
}

func TestStore_ListJobs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, tc := range []struct {
		company string
		status  jobs.JobStatus
	}{
		{"ACME", jobs.JobStatusCompleted},
		{"ACME", jobs.JobStatusFailed},
		{"GLOBEX", jobs.JobStatusFailed},
		{"ACME", jobs.JobStatusCompleted},
	} {
		job := newJob(tc.company)
		job.JobID = string(rune('a' + i))
		job.Status = tc.status
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveJob(ctx, job))
	}

	tests := []struct {
		name    string
		filter  jobs.JobFilter
		wantIDs []string
	}{
		{name: "all oldest first", filter: jobs.JobFilter{}, wantIDs: []string{"a", "b", "c", "d"}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusFailed}, wantIDs: []string{"b", "c"}},
		{name: "by company", filter: jobs.JobFilter{CompanyID: "ACME"}, wantIDs: []string{"a", "b", "d"}},
		{name: "limit offset", filter: jobs.JobFilter{Limit: 2, Offset: 1}, wantIDs: []string{"b", "c"}},
		{name: "offset past end", filter: jobs.JobFilter{Offset: 10}, wantIDs: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, j := range got {
				ids = append(ids, j.JobID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestStore_UpdateJobStatus(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	job := newJob("ACME")
	job.JobID = "job-1"
	require.NoError(t, s.SaveJob(ctx, job))

	require.NoError(t, s.UpdateJobStatus(ctx, "job-1", jobs.JobStatusFailed, "reconciled manually"))
	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "reconciled manually", got.Error)

	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "nope", jobs.JobStatusCompleted, ""), domain.ErrNotFound)
}

func TestResolve(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	failed := newJob("ACME")
	failed.JobID = "job-failed"
	failed.Status = jobs.JobStatusFailed
	failed.Error = "ledger unreachable"
	require.NoError(t, s.SaveJob(ctx, failed))

	done := newJob("ACME")
	done.JobID = "job-done"
	done.Status = jobs.JobStatusCompleted
	require.NoError(t, s.SaveJob(ctx, done))

	got, err := jobs.Resolve(ctx, s, "job-failed", "resubmitted as job-9")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusResolved, got.Status)
	assert.Equal(t, "ledger unreachable (resolved: resubmitted as job-9)", got.Error)

	failedOnes, err := s.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	require.NoError(t, err)
	assert.Empty(t, failedOnes)

	_, err = jobs.Resolve(ctx, s, "job-failed", "")
	assert.ErrorIs(t, err, jobs.ErrNotFailed)
	_, err = jobs.Resolve(ctx, s, "job-done", "")
	assert.ErrorIs(t, err, jobs.ErrNotFailed)
	_, err = jobs.Resolve(ctx, s, "missing", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
