package sqlite

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
)

// SaveJob implements jobs.JobStore.
func (s *Store) SaveJob(ctx context.Context, job *jobs.SubmissionJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	row := jobToRow(job)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("SaveJob: %w", err)
	}
	return nil
}

// GetJob implements jobs.JobStore.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.SubmissionJob, error) {
	var row SubmissionJobRow
	if err := s.db.WithContext(ctx).First(&row, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetJob: query: %w", err)
	}
	return row.toJob(), nil
}

// ListJobs implements jobs.JobStore.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.SubmissionJob, error) {
	q := s.db.WithContext(ctx).Model(&SubmissionJobRow{})
	if filter.CompanyID != "" {
		q = q.Where("company_id = ?", filter.CompanyID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	q = q.Order("created_at ASC").Order("job_id ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []SubmissionJobRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListJobs: query: %w", err)
	}
	out := make([]*jobs.SubmissionJob, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toJob())
	}
	return out, nil
}

// UpdateJobStatus implements jobs.JobStore.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	updates := map[string]any{"status": string(status)}
	if errorMsg != "" {
		updates["error"] = errorMsg
	}
	res := s.db.WithContext(ctx).Model(&SubmissionJobRow{}).Where("job_id = ?", jobID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("UpdateJobStatus: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return nil
}

func jobToRow(j *jobs.SubmissionJob) SubmissionJobRow {
	return SubmissionJobRow{
		JobID:            j.JobID,
		RecordID:         j.RecordID,
		CompanyID:        j.CompanyID,
		DataHash:         j.DataHash,
		EncodedCompanyID: j.EncodedCompanyID,
		IsFraudulent:     j.IsFraudulent,
		Status:           string(j.Status),
		CreatedAt:        j.CreatedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
		ConfirmationID:   j.ConfirmationID,
		LedgerIndex:      j.LedgerIndex,
		Error:            j.Error,
	}
}

func (r *SubmissionJobRow) toJob() *jobs.SubmissionJob {
	return &jobs.SubmissionJob{
		JobID:            r.JobID,
		RecordID:         r.RecordID,
		CompanyID:        r.CompanyID,
		DataHash:         r.DataHash,
		EncodedCompanyID: r.EncodedCompanyID,
		IsFraudulent:     r.IsFraudulent,
		Status:           jobs.JobStatus(r.Status),
		CreatedAt:        r.CreatedAt,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		ConfirmationID:   r.ConfirmationID,
		LedgerIndex:      r.LedgerIndex,
		Error:            r.Error,
	}
}

var _ jobs.JobStore = (*Store)(nil)
