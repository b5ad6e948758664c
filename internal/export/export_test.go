package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
	"github.com/dvloznov/fraud-ledger/internal/jobs/inmemory"
)

// MockStorageService is a mock implementation of gcs.StorageService for testing.
type MockStorageService struct {
	UploadFunc   func(ctx context.Context, bucketName, objectName, contentType string, r io.Reader) error
	DownloadFunc func(ctx context.Context, gcsURI string) ([]byte, error)
}

func (m *MockStorageService) Upload(ctx context.Context, bucketName, objectName, contentType string, r io.Reader) error {
	return m.UploadFunc(ctx, bucketName, objectName, contentType, r)
}

func (m *MockStorageService) Download(ctx context.Context, gcsURI string) ([]byte, error) {
	return m.DownloadFunc(ctx, gcsURI)
}

type ledgerFunc func(ctx context.Context) ([]domain.ReconciledEntry, error)

func (f ledgerFunc) ReadLedger(ctx context.Context) ([]domain.ReconciledEntry, error) { return f(ctx) }

type aggregatesFunc func(ctx context.Context) ([]*domain.CompanyAggregate, error)

func (f aggregatesFunc) ListCompanyAggregates(ctx context.Context) ([]*domain.CompanyAggregate, error) {
	return f(ctx)
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	jobStore := inmemory.NewStore()
	failed := jobs.NewSubmissionJob("r1", "ACME", domain.Fingerprint{1}, [32]byte{}, true)
	failed.JobID = "job-1"
	failed.Status = jobs.JobStatusFailed
	require.NoError(t, jobStore.SaveJob(ctx, failed))

	var gotBucket, gotObject, gotType string
	var body []byte
	storage := &MockStorageService{
		UploadFunc: func(ctx context.Context, bucketName, objectName, contentType string, r io.Reader) error {
			gotBucket, gotObject, gotType = bucketName, objectName, contentType
			var err error
			body, err = io.ReadAll(r)
			return err
		},
	}

	e := NewExporter(
		ledgerFunc(func(ctx context.Context) ([]domain.ReconciledEntry, error) {
			return []domain.ReconciledEntry{{ID: 1, DataHash: "0xab", CompanyID: "ACME", SenderAddress: "N/A"}}, nil
		}),
		aggregatesFunc(func(ctx context.Context) ([]*domain.CompanyAggregate, error) {
			return []*domain.CompanyAggregate{{CompanyID: "ACME", TotalTransactions: 1, FraudulentTransactions: 1, RiskScore: 100}}, nil
		}),
		jobStore, storage, zerolog.Nop(),
	)
	e.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }

	uri, err := e.Export(ctx, "exports", "fraud", "")
	require.NoError(t, err)

	assert.Equal(t, "exports", gotBucket)
	assert.Equal(t, "fraud/snapshots/2024/05/06/ledger-20240506T070809Z.json", gotObject)
	assert.Equal(t, "gs://exports/"+gotObject, uri)
	assert.Equal(t, "application/json", gotType)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Len(t, snap.LedgerEntries, 1)
	assert.Len(t, snap.Companies, 1)
	require.Len(t, snap.FailedSubmissions, 1)
	assert.Equal(t, "job-1", snap.FailedSubmissions[0].JobID)
}

func TestExport_Failures(t *testing.T) {
	okLedger := ledgerFunc(func(ctx context.Context) ([]domain.ReconciledEntry, error) { return nil, nil })
	okAggs := aggregatesFunc(func(ctx context.Context) ([]*domain.CompanyAggregate, error) { return nil, nil })
	okStorage := &MockStorageService{
		UploadFunc: func(ctx context.Context, bucketName, objectName, contentType string, r io.Reader) error { return nil },
	}

	tests := []struct {
		name    string
		ledger  LedgerSource
		aggs    AggregateSource
		storage *MockStorageService
		want    error
	}{
		{
			name:    "ledger read",
			ledger:  ledgerFunc(func(ctx context.Context) ([]domain.ReconciledEntry, error) { return nil, domain.ErrLedgerRead }),
			aggs:    okAggs,
			storage: okStorage,
			want:    domain.ErrLedgerRead,
		},
		{
			name:    "aggregates",
			ledger:  okLedger,
			aggs:    aggregatesFunc(func(ctx context.Context) ([]*domain.CompanyAggregate, error) { return nil, errors.New("db closed") }),
			storage: okStorage,
		},
		{
			name:   "upload",
			ledger: okLedger,
			aggs:   okAggs,
			storage: &MockStorageService{
				UploadFunc: func(ctx context.Context, bucketName, objectName, contentType string, r io.Reader) error {
					return errors.New("permission denied")
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExporter(tt.ledger, tt.aggs, nil, tt.storage, zerolog.Nop()).Export(context.Background(), "b", "", "x.json")
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}
