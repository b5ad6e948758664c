// Package export writes point-in-time snapshots of the ledger and the
// company aggregates to object storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/gcs"
	"github.com/dvloznov/fraud-ledger/internal/gcsuploader"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
)

// LedgerSource replays the ledger.
type LedgerSource interface {
	ReadLedger(ctx context.Context) ([]domain.ReconciledEntry, error)
}

// AggregateSource lists every company aggregate.
type AggregateSource interface {
	ListCompanyAggregates(ctx context.Context) ([]*domain.CompanyAggregate, error)
}

// Snapshot is the exported document.
type Snapshot struct {
	GeneratedAt       time.Time                  `json:"generated_at"`
	LedgerEntries     []domain.ReconciledEntry   `json:"ledger_entries"`
	Companies         []*domain.CompanyAggregate `json:"companies"`
	FailedSubmissions []*jobs.SubmissionJob      `json:"failed_submissions"`
}

// Exporter builds snapshots and uploads them.
type Exporter struct {
	ledger     LedgerSource
	aggregates AggregateSource
	jobs       jobs.JobStore
	storage    gcs.StorageService
	log        zerolog.Logger
	now        func() time.Time
}

// NewExporter creates an exporter. jobStore may be nil.
func NewExporter(ledger LedgerSource, aggregates AggregateSource, jobStore jobs.JobStore, storage gcs.StorageService, log zerolog.Logger) *Exporter {
	return &Exporter{
		ledger:     ledger,
		aggregates: aggregates,
		jobs:       jobStore,
		storage:    storage,
		log:        log.With().Str("component", "exporter").Logger(),
		now:        time.Now,
	}
}

// Build collects a snapshot without uploading it.
func (e *Exporter) Build(ctx context.Context) (*Snapshot, error) {
	entries, err := e.ledger.ReadLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("Build: reading ledger: %w", err)
	}
	companies, err := e.aggregates.ListCompanyAggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("Build: listing companies: %w", err)
	}

	snap := &Snapshot{
		GeneratedAt:       e.now().UTC(),
		LedgerEntries:     entries,
		Companies:         companies,
		FailedSubmissions: []*jobs.SubmissionJob{},
	}
	if e.jobs != nil {
		failed, err := e.jobs.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
		if err != nil {
			return nil, fmt.Errorf("Build: listing failed submissions: %w", err)
		}
		snap.FailedSubmissions = failed
	}
	return snap, nil
}

// ObjectName returns the default object path for a snapshot taken at t.
func ObjectName(prefix string, t time.Time) string {
	return path.Join(prefix, "snapshots", t.UTC().Format("2006/01/02"), "ledger-"+t.UTC().Format("20060102T150405Z")+".json")
}

// Export builds a snapshot and uploads it to bucket. An empty object name
// is derived from prefix and the snapshot time. It returns the gs:// URI.
func (e *Exporter) Export(ctx context.Context, bucket, prefix, object string) (string, error) {
	snap, err := e.Build(ctx)
	if err != nil {
		return "", err
	}
	if object == "" {
		object = ObjectName(prefix, snap.GeneratedAt)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return "", fmt.Errorf("Export: encoding snapshot: %w", err)
	}

	if err := e.storage.Upload(ctx, bucket, object, "application/json", &buf); err != nil {
		return "", fmt.Errorf("Export: %w", err)
	}

	uri := gcsuploader.URI(bucket, object)
	e.log.Info().
		Str("uri", uri).
		Int("ledger_entries", len(snap.LedgerEntries)).
		Int("companies", len(snap.Companies)).
		Int("failed_submissions", len(snap.FailedSubmissions)).
		Msg("Snapshot exported")
	return uri, nil
}
