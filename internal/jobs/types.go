package jobs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// ErrQueueClosed is returned to producers once the submission queue stops.
var ErrQueueClosed = errors.New("submission queue is closed")

// JobStatus represents the current status of a submission job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting for the serialization point.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job holds the serialization point.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the ledger confirmed the entry.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the ledger rejected the entry or could not be reached.
	JobStatusFailed JobStatus = "failed"
	// JobStatusResolved marks a failed job an operator has reconciled by hand.
	JobStatusResolved JobStatus = "resolved"
)

// ParseStatus validates a status coming from a query string or flag.
func ParseStatus(s string) (JobStatus, error) {
	switch st := JobStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case "", JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusResolved:
		return st, nil
	default:
		return "", fmt.Errorf("unknown job status %q", s)
	}
}

// SubmissionJob is one ledger submission waiting for, holding or past the
// serialization point. Failed jobs are kept so operators can reconcile
// aggregates that ran ahead of the ledger.
type SubmissionJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// RecordID is the local transaction record this submission belongs to.
	RecordID string `json:"record_id"`

	// CompanyID is the human-readable company identifier.
	CompanyID string `json:"company_id"`

	// DataHash is the 0x-prefixed record fingerprint.
	DataHash string `json:"data_hash"`

	// EncodedCompanyID is the 0x-prefixed fixed-width ledger identifier.
	EncodedCompanyID string `json:"encoded_company_id"`

	IsFraudulent bool `json:"is_fraudulent"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was enqueued.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job reached the serialization point.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the submission resolved (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ConfirmationID is the ledger's confirmation (transaction hash) once known.
	ConfirmationID string `json:"confirmation_id,omitempty"`

	// LedgerIndex is the ledger-assigned entry id when reported.
	LedgerIndex uint64 `json:"ledger_index,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
}

// NewSubmissionJob builds a pending job from the hashed and encoded parts of a record.
func NewSubmissionJob(recordID, companyID string, dataHash domain.Fingerprint, encodedID [32]byte, isFraudulent bool) *SubmissionJob {
	return &SubmissionJob{
		RecordID:         recordID,
		CompanyID:        companyID,
		DataHash:         dataHash.Hex(),
		EncodedCompanyID: "0x" + hex.EncodeToString(encodedID[:]),
		IsFraudulent:     isFraudulent,
		Status:           JobStatusPending,
	}
}

// Payload decodes the fixed-width values the ledger expects.
func (j *SubmissionJob) Payload() (dataHash [32]byte, encodedID [32]byte, err error) {
	if dataHash, err = decodeBytes32(j.DataHash); err != nil {
		return dataHash, encodedID, fmt.Errorf("Payload: data hash: %w", err)
	}
	if encodedID, err = decodeBytes32(j.EncodedCompanyID); err != nil {
		return dataHash, encodedID, fmt.Errorf("Payload: company id: %w", err)
	}
	return dataHash, encodedID, nil
}

func decodeBytes32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// Pending is the producer's handle on a queued submission. It resolves
// exactly once, when the submission itself resolves.
type Pending struct {
	done    chan struct{}
	receipt domain.LedgerReceipt
	err     error
}

// NewPending returns an unresolved handle.
func NewPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Resolve records the outcome. Only the queue calls it, once per handle.
func (p *Pending) Resolve(receipt domain.LedgerReceipt, err error) {
	p.receipt = receipt
	p.err = err
	close(p.done)
}

// Done is closed once the submission resolved.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the submission resolves or ctx ends. Returning early on
// ctx does not cancel the submission; it keeps its place in the queue.
func (p *Pending) Wait(ctx context.Context) (domain.LedgerReceipt, error) {
	select {
	case <-p.done:
		return p.receipt, p.err
	case <-ctx.Done():
		return domain.LedgerReceipt{}, ctx.Err()
	}
}

// Publisher admits submissions to the serialization point.
type Publisher interface {
	// PublishSubmission enqueues a job and returns a handle for its outcome.
	PublishSubmission(ctx context.Context, job *SubmissionJob) (*Pending, error)

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer drains the submission queue.
type Consumer interface {
	// Start begins consuming jobs, one at a time, in admission order.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for the in-flight job to complete.
	Stop(ctx context.Context) error
}

// JobHandler performs one ledger submission.
type JobHandler func(ctx context.Context, job *SubmissionJob) (domain.LedgerReceipt, error)

// JobStore defines the interface for storing and retrieving job status.
// This allows tracking job execution across service restarts.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *SubmissionJob) error

	// GetJob retrieves a job by ID. Missing jobs wrap domain.ErrNotFound.
	GetJob(ctx context.Context, jobID string) (*SubmissionJob, error)

	// ListJobs retrieves jobs with optional filtering, oldest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*SubmissionJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// CompanyID filters jobs by company.
	CompanyID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// Paginate applies filter.Offset and filter.Limit to an already-filtered slice.
func Paginate[T any](items []T, filter JobFilter) []T {
	if filter.Offset > 0 {
		if filter.Offset >= len(items) {
			return []T{}
		}
		items = items[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(items) {
		items = items[:filter.Limit]
	}
	return items
}
