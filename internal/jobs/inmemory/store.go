package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
)

// Store is an in-memory implementation of JobStore.
// It stores jobs in memory and is safe for concurrent use.
// Data is lost on service restart - for persistence, use the sqlite store.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.SubmissionJob
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.SubmissionJob),
	}
}

// SaveJob implements the JobStore interface.
// It saves or replaces a submission job in memory.
func (s *Store) SaveJob(ctx context.Context, job *jobs.SubmissionJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external modifications
	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy

	return nil
}

// GetJob implements the JobStore interface.
// It retrieves a submission job by ID from memory.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.SubmissionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}

	// Return a copy so callers cannot mutate stored state
	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs implements the JobStore interface.
// It filters jobs by company and status, oldest first, then pages them.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.SubmissionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*jobs.SubmissionJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.CompanyID != "" && job.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}

		jobCopy := *job
		result = append(result, &jobCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].JobID < result[j].JobID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	// Apply limit and offset
	return jobs.Paginate(result, filter), nil
}

// UpdateJobStatus implements the JobStore interface.
// It updates the status of a job in memory; an empty errorMsg keeps the
// previous error.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}

	return nil
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
