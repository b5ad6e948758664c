package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-ledger/internal/api/middleware"
	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/hasher"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
	"github.com/dvloznov/fraud-ledger/internal/logger"
)

// maxBodyBytes bounds a single transaction payload.
const maxBodyBytes = 1 << 20

// TransactionRecorder is the write path.
type TransactionRecorder interface {
	RecordTransaction(ctx context.Context, rec *domain.TransactionRecord) (*domain.SubmissionReceipt, error)
}

// AggregateGetter reads company aggregates.
type AggregateGetter interface {
	GetCompanyAggregate(ctx context.Context, companyID string) (*domain.CompanyAggregate, error)
}

// LedgerReader replays the ledger.
type LedgerReader interface {
	ReadLedger(ctx context.Context) ([]domain.ReconciledEntry, error)
	ReadEntry(ctx context.Context, index uint64) (domain.ReconciledEntry, error)
}

// RecordFinder reads the local audit copy of submitted records.
type RecordFinder interface {
	GetRecord(ctx context.Context, recordID string) (*domain.TransactionRecord, error)
	FindRecordByHash(ctx context.Context, dataHash domain.Fingerprint) (*domain.TransactionRecord, error)
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	writer TransactionRecorder
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(writer TransactionRecorder, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		writer: writer,
		log:    log,
	}
}

// RecordTransaction handles POST /api/transactions
func (h *TransactionsHandler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	fields := domain.NewFields()
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := decodeFields(body, fields); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body: expected a flat JSON object")
		return
	}

	receipt, err := h.writer.RecordTransaction(ctx, domain.NewTransactionRecord(fields))
	if err != nil {
		status := middleware.StatusForError(err)
		if receipt != nil {
			// committed locally but not on the ledger
			log.Error().Err(err).Str("submission_id", receipt.SubmissionID).Msg("Ledger submission failed")
			middleware.WriteJSON(w, status, receipt)
			return
		}
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("stage", string(domain.StageOf(err))).Msg("Failed to record transaction")
			middleware.WriteError(w, status, "Failed to record transaction")
			return
		}
		middleware.WriteError(w, status, err.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, receipt)
}

// RecordsHandler serves stored records.
type RecordsHandler struct {
	records RecordFinder
	log     zerolog.Logger
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(records RecordFinder, log zerolog.Logger) *RecordsHandler {
	return &RecordsHandler{
		records: records,
		log:     log,
	}
}

// GetRecord handles GET /api/records/{id}
func (h *RecordsHandler) GetRecord(w http.ResponseWriter, r *http.Request, recordID string) {
	rec, err := h.records.GetRecord(r.Context(), recordID)
	h.writeRecord(w, rec, err)
}

// FindRecord handles GET /api/records?hash=0x...
func (h *RecordsHandler) FindRecord(w http.ResponseWriter, r *http.Request) {
	hash, err := domain.ParseFingerprint(r.URL.Query().Get("hash"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "hash must be a 32-byte hex fingerprint")
		return
	}
	rec, err := h.records.FindRecordByHash(r.Context(), hash)
	h.writeRecord(w, rec, err)
}

func (h *RecordsHandler) writeRecord(w http.ResponseWriter, rec *domain.TransactionRecord, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Record not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get record")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get record")
		return
	}

	view := rec.View()
	view.Verified, err = hasher.Verify(rec)
	if err != nil {
		h.log.Warn().Err(err).Str("record_id", rec.RecordID).Msg("Stored record no longer hashes")
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

// CompaniesHandler handles company aggregate endpoints.
type CompaniesHandler struct {
	aggregates AggregateGetter
	log        zerolog.Logger
}

// NewCompaniesHandler creates a new companies handler.
func NewCompaniesHandler(aggregates AggregateGetter, log zerolog.Logger) *CompaniesHandler {
	return &CompaniesHandler{
		aggregates: aggregates,
		log:        log,
	}
}

// GetCompany handles GET /api/companies/{companyId}
func (h *CompaniesHandler) GetCompany(w http.ResponseWriter, r *http.Request, companyID string) {
	agg, err := h.aggregates.GetCompanyAggregate(r.Context(), companyID)
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Company not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("company_id", companyID).Msg("Failed to get company aggregate")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get company aggregate")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, agg)
}

// LedgerHandler handles ledger replay endpoints.
type LedgerHandler struct {
	reader LedgerReader
	log    zerolog.Logger
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(reader LedgerReader, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{
		reader: reader,
		log:    log,
	}
}

// ListEntries handles GET /api/ledger
func (h *LedgerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.reader.ReadLedger(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read ledger")
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrLedgerRead) {
			status = http.StatusBadGateway
		}
		middleware.WriteError(w, status, "Failed to read ledger")
		return
	}

	if entries == nil {
		entries = []domain.ReconciledEntry{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetEntry handles GET /api/ledger/{id}
func (h *LedgerHandler) GetEntry(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Entry id must be a positive integer")
		return
	}

	entry, err := h.reader.ReadEntry(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Entry not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Uint64("ledger_index", id).Msg("Failed to read ledger entry")
		middleware.WriteError(w, middleware.StatusForError(err), "Failed to read ledger entry")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, entry)
}

// SubmissionsHandler handles submission job endpoints.
type SubmissionsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewSubmissionsHandler creates a new submissions handler.
func NewSubmissionsHandler(store jobs.JobStore, log zerolog.Logger) *SubmissionsHandler {
	return &SubmissionsHandler{
		store: store,
		log:   log,
	}
}

// GetSubmission handles GET /api/submissions/{id}
func (h *SubmissionsHandler) GetSubmission(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Submission not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get submission")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get submission")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ResolveSubmission handles POST /api/submissions/{id}/resolve. The body is
// optional: {"note": "..."}.
func (h *SubmissionsHandler) ResolveSubmission(w http.ResponseWriter, r *http.Request, jobID string) {
	var req struct {
		Note string `json:"note"`
	}
	if r.ContentLength != 0 {
		body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	job, err := jobs.Resolve(r.Context(), h.store, jobID, req.Note)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Submission not found")
		return
	case errors.Is(err, jobs.ErrNotFailed):
		middleware.WriteError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to resolve submission")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to resolve submission")
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().Str("job_id", jobID).Str("company_id", job.CompanyID).Msg("Submission resolved")
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListSubmissions handles GET /api/submissions
func (h *SubmissionsHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	status, err := jobs.ParseStatus(query.Get("status"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := jobs.JobFilter{
		CompanyID: query.Get("company_id"),
		Status:    status,
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list submissions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list submissions")
		return
	}

	if list == nil {
		list = []*jobs.SubmissionJob{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"submissions": list,
		"count":       len(list),
	})
}
