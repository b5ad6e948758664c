package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/hasher"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
	"github.com/dvloznov/fraud-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/fraud-ledger/internal/ledger"
	"github.com/dvloznov/fraud-ledger/internal/metrics"
)

// MockWriter is a mock implementation of the write path for testing.
type MockWriter struct {
	RecordTransactionFunc   func(ctx context.Context, rec *domain.TransactionRecord) (*domain.SubmissionReceipt, error)
	GetCompanyAggregateFunc func(ctx context.Context, companyID string) (*domain.CompanyAggregate, error)
}

func (m *MockWriter) RecordTransaction(ctx context.Context, rec *domain.TransactionRecord) (*domain.SubmissionReceipt, error) {
	return m.RecordTransactionFunc(ctx, rec)
}

func (m *MockWriter) GetCompanyAggregate(ctx context.Context, companyID string) (*domain.CompanyAggregate, error) {
	return m.GetCompanyAggregateFunc(ctx, companyID)
}

// MockLedgerReader is a mock implementation of handlers.LedgerReader for testing.
type MockLedgerReader struct {
	ReadLedgerFunc func(ctx context.Context) ([]domain.ReconciledEntry, error)
	ReadEntryFunc  func(ctx context.Context, index uint64) (domain.ReconciledEntry, error)
}

func (m *MockLedgerReader) ReadLedger(ctx context.Context) ([]domain.ReconciledEntry, error) {
	return m.ReadLedgerFunc(ctx)
}

func (m *MockLedgerReader) ReadEntry(ctx context.Context, index uint64) (domain.ReconciledEntry, error) {
	return m.ReadEntryFunc(ctx, index)
}

// MockRecordFinder is a mock implementation of handlers.RecordFinder for testing.
type MockRecordFinder struct {
	GetRecordFunc        func(ctx context.Context, recordID string) (*domain.TransactionRecord, error)
	FindRecordByHashFunc func(ctx context.Context, dataHash domain.Fingerprint) (*domain.TransactionRecord, error)
}

func (m *MockRecordFinder) GetRecord(ctx context.Context, recordID string) (*domain.TransactionRecord, error) {
	return m.GetRecordFunc(ctx, recordID)
}

func (m *MockRecordFinder) FindRecordByHash(ctx context.Context, dataHash domain.Fingerprint) (*domain.TransactionRecord, error) {
	return m.FindRecordByHashFunc(ctx, dataHash)
}

var acmeEntry = domain.ReconciledEntry{
	ID:            1,
	DataHash:      "0xabc",
	IsFraudulent:  true,
	CompanyID:     "ACME",
	SenderAddress: "N/A",
}

func newTestRouter(t *testing.T, apiKey string) (http.Handler, *inmemory.Store) {
	t.Helper()
	store := inmemory.NewStore()
	writer := &MockWriter{
		RecordTransactionFunc: func(ctx context.Context, rec *domain.TransactionRecord) (*domain.SubmissionReceipt, error) {
			switch rec.CompanyID {
			case "":
				return nil, &domain.StageError{Stage: domain.StageValidate, Err: domain.ErrInvalidIdentifier}
			case "Company With A Very Long Name Exceeding Width":
				return nil, &domain.StageError{Stage: domain.StageEncode, Err: domain.ErrIdentifierTooLong}
			case "DOWN":
				return nil, &domain.StageError{Stage: domain.StagePersist, Err: errors.New("disk full")}
			case "REVERT":
				return &domain.SubmissionReceipt{CompanyID: rec.CompanyID, SubmissionID: "job-9", Error: "reverted"},
					&domain.StageError{Stage: domain.StageSubmit, Err: domain.ErrSubmission}
			}
			return &domain.SubmissionReceipt{
				CompanyID:      rec.CompanyID,
				IsFraudulent:   rec.IsFraudulent,
				Success:        true,
				ConfirmationID: "0xbeef",
				LedgerIndex:    1,
				Aggregate:      &domain.CompanyAggregate{CompanyID: rec.CompanyID, TotalTransactions: 1, FraudulentTransactions: 1, RiskScore: 100},
			}, nil
		},
		GetCompanyAggregateFunc: func(ctx context.Context, companyID string) (*domain.CompanyAggregate, error) {
			if companyID != "ACME" {
				return nil, fmt.Errorf("GetCompanyAggregate: %w", domain.ErrNotFound)
			}
			return &domain.CompanyAggregate{CompanyID: "ACME", TotalTransactions: 2, FraudulentTransactions: 1, RiskScore: 50}, nil
		},
	}
	reader := &MockLedgerReader{
		ReadLedgerFunc: func(ctx context.Context) ([]domain.ReconciledEntry, error) {
			return []domain.ReconciledEntry{acmeEntry}, nil
		},
		ReadEntryFunc: func(ctx context.Context, index uint64) (domain.ReconciledEntry, error) {
			if index != 1 {
				return domain.ReconciledEntry{}, fmt.Errorf("%w: %w", domain.ErrLedgerRead, ledger.ErrIndexOutOfRange)
			}
			return acmeEntry, nil
		},
	}

	stored := storedRecord(t)
	records := &MockRecordFinder{
		GetRecordFunc: func(ctx context.Context, recordID string) (*domain.TransactionRecord, error) {
			switch recordID {
			case stored.RecordID:
				return stored, nil
			case "tampered":
				tampered := *stored
				tampered.RecordID = "tampered"
				tampered.IsFraudulent = false
				return &tampered, nil
			}
			return nil, fmt.Errorf("GetRecord %s: %w", recordID, domain.ErrNotFound)
		},
		FindRecordByHashFunc: func(ctx context.Context, dataHash domain.Fingerprint) (*domain.TransactionRecord, error) {
			if dataHash != stored.DataHash {
				return nil, domain.ErrNotFound
			}
			return stored, nil
		},
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.TransactionRecorded("success")

	return NewRouter(Deps{
		Transactions: writer,
		Aggregates:   writer,
		Records:      records,
		Ledger:       reader,
		Jobs:         store,
		Gatherer:     reg,
		APIKey:       apiKey,
		Logger:       zerolog.Nop(),
	}), store
}

func storedRecord(t *testing.T) *domain.TransactionRecord {
	t.Helper()
	fields := domain.NewFields()
	require.NoError(t, json.Unmarshal([]byte(`{"companyId":"ACME","Amount":100,"isFraudulent":true}`), fields))
	rec := domain.NewTransactionRecord(fields)
	rec.RecordID = "rec-1"
	hash, err := hasher.Hash(rec)
	require.NoError(t, err)
	rec.DataHash = hash
	return rec
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRecordTransactionEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, "")

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{name: "ok", method: http.MethodPost, body: `{"companyId":"ACME","Amount":100,"isFraudulent":true}`, status: http.StatusOK},
		{name: "missing company", method: http.MethodPost, body: `{"Amount":100}`, status: http.StatusBadRequest},
		{name: "too long", method: http.MethodPost, body: `{"companyId":"Company With A Very Long Name Exceeding Width"}`, status: http.StatusBadRequest},
		{name: "not an object", method: http.MethodPost, body: `[1]`, status: http.StatusBadRequest},
		{name: "store down", method: http.MethodPost, body: `{"companyId":"DOWN"}`, status: http.StatusInternalServerError},
		{name: "submission failed", method: http.MethodPost, body: `{"companyId":"REVERT"}`, status: http.StatusBadGateway},
		{name: "wrong method", method: http.MethodGet, status: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.method, "/api/transactions", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}

	rec := do(h, http.MethodPost, "/api/transactions", `{"companyId":"ACME","isFraudulent":true}`)
	var receipt domain.SubmissionReceipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.True(t, receipt.Success)
	assert.Equal(t, "0xbeef", receipt.ConfirmationID)
	require.NotNil(t, receipt.Aggregate)
	assert.InDelta(t, 100.0, receipt.Aggregate.RiskScore, 1e-9)

	rec = do(h, http.MethodPost, "/api/transactions", `{"companyId":"REVERT"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.False(t, receipt.Success)
	assert.Equal(t, "job-9", receipt.SubmissionID)
}

func TestCompanyEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, "")

	rec := do(h, http.MethodGet, "/api/companies/ACME", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var agg domain.CompanyAggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	assert.Equal(t, int64(2), agg.TotalTransactions)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/companies/GLOBEX", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/companies/", "").Code)
}

func TestLedgerEndpoints(t *testing.T) {
	h, _ := newTestRouter(t, "")

	rec := do(h, http.MethodGet, "/api/ledger", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Entries []domain.ReconciledEntry `json:"entries"`
		Count   int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, acmeEntry, list.Entries[0])

	rec = do(h, http.MethodGet, "/api/ledger/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/ledger/7", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/ledger/0", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/ledger/abc", "").Code)
}

func TestSubmissionEndpoints(t *testing.T) {
	h, store := newTestRouter(t, "")
	ctx := context.Background()

	var hash domain.Fingerprint
	hash[0] = 1
	ok := jobs.NewSubmissionJob("r1", "ACME", hash, [32]byte{}, false)
	ok.JobID = "job-ok"
	ok.Status = jobs.JobStatusCompleted
	failed := jobs.NewSubmissionJob("r2", "ACME", hash, [32]byte{}, true)
	failed.JobID = "job-failed"
	failed.Status = jobs.JobStatusFailed
	require.NoError(t, store.SaveJob(ctx, ok))
	require.NoError(t, store.SaveJob(ctx, failed))

	rec := do(h, http.MethodGet, "/api/submissions?status=failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Submissions []jobs.SubmissionJob `json:"submissions"`
		Count       int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "job-failed", list.Submissions[0].JobID)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/submissions?status=bogus", "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/submissions/job-ok", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/submissions/nope", "").Code)
}

func TestResolveSubmissionEndpoint(t *testing.T) {
	h, store := newTestRouter(t, "")
	ctx := context.Background()

	failed := jobs.NewSubmissionJob("r2", "ACME", domain.Fingerprint{}, [32]byte{}, true)
	failed.JobID = "job-failed"
	failed.Status = jobs.JobStatusFailed
	failed.Error = "nonce too low"
	require.NoError(t, store.SaveJob(ctx, failed))

	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodGet, "/api/submissions/job-failed/resolve", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/api/submissions/nope/resolve", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/submissions/job-failed/resolve", "{").Code)

	rec := do(h, http.MethodPost, "/api/submissions/job-failed/resolve", `{"note":"resubmitted"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var job jobs.SubmissionJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, jobs.JobStatusResolved, job.Status)
	assert.Equal(t, "nonce too low (resolved: resubmitted)", job.Error)

	assert.Equal(t, http.StatusConflict, do(h, http.MethodPost, "/api/submissions/job-failed/resolve", "").Code)
}

func TestRecordEndpoints(t *testing.T) {
	h, _ := newTestRouter(t, "")
	stored := storedRecord(t)

	rec := do(h, http.MethodGet, "/api/records/rec-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view domain.StoredRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "ACME", view.CompanyID)
	assert.Equal(t, stored.DataHash.Hex(), view.DataHash)
	assert.True(t, view.IsFraudulent)
	assert.True(t, view.Verified)
	amount, _ := view.Fields.Get("Amount")
	assert.Equal(t, json.Number("100"), amount)

	rec = do(h, http.MethodGet, "/api/records/tampered", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.Verified)

	rec = do(h, http.MethodGet, "/api/records?hash="+stored.DataHash.Hex(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "rec-1", view.RecordID)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/records/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/records?hash=0x"+strings.Repeat("00", 32), "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/records?hash=xyz", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/records/", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodPost, "/api/records/rec-1", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestRouter(t, "secret")

	rec := do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `fraud_ledger_transactions_recorded_total{outcome="success"} 1`)
}

func TestAuth(t *testing.T) {
	h, _ := newTestRouter(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/companies/ACME", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/companies/ACME", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/companies/ACME", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodOptions, "/api/transactions", "")
	assert.Equal(t, http.StatusNoContent, rec.Code, "preflight is answered before auth")
}
