package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
	"github.com/dvloznov/fraud-ledger/internal/logger"
	"github.com/dvloznov/fraud-ledger/internal/metrics"
)

// WriterConfig wires the write path's collaborators.
type WriterConfig struct {
	Records    RecordInserter
	Aggregates AggregateStore
	Publisher  jobs.Publisher
	// Cache is optional.
	Cache   AggregateCache
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Writer is the ledger writer: hash, encode, persist, aggregate, submit.
type Writer struct {
	pipeline   *Pipeline
	aggregates AggregateReader
	cache      AggregateCache
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewWriter builds the write pipeline.
func NewWriter(cfg WriterConfig) *Writer {
	return &Writer{
		pipeline:   NewRecordPipeline(cfg.Records, cfg.Aggregates, cfg.Cache, cfg.Publisher),
		aggregates: cfg.Aggregates,
		cache:      cfg.Cache,
		metrics:    cfg.Metrics,
		log:        cfg.Logger.With().Str("component", "writer").Logger(),
	}
}

// NewRecordPipeline creates the standard six-step write pipeline.
func NewRecordPipeline(records RecordInserter, aggregates AggregateUpdater, cache AggregateCache, publisher jobs.Publisher) *Pipeline {
	return NewPipeline(
		&ValidateStep{},
		&HashStep{},
		&EncodeStep{},
		&PersistStep{Records: records},
		&AggregateStep{Aggregates: aggregates, Cache: cache},
		&SubmitStep{Publisher: publisher},
	)
}

// RecordTransaction runs the record through the write path and returns the
// ledger receipt.
//
// Failures before submission return a nil receipt and a *domain.StageError.
// A submission failure returns both a receipt with Success=false and the
// error: the record and the aggregate update are kept, and the failed job
// stays in the job store for an operator to reconcile.
func (w *Writer) RecordTransaction(ctx context.Context, rec *domain.TransactionRecord) (*domain.SubmissionReceipt, error) {
	log := w.log
	if rec != nil {
		log = logger.ForCompany(w.log, rec.CompanyID)
	}
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{Record: rec}
	err := w.pipeline.Execute(ctx, state)
	if err == nil {
		receipt := buildReceipt(state)
		w.metrics.TransactionRecorded("success")
		log.Info().
			Str("data_hash", receipt.DataHash).
			Str("confirmation_id", receipt.ConfirmationID).
			Bool("is_fraudulent", receipt.IsFraudulent).
			Msg("Transaction recorded on ledger")
		return receipt, nil
	}

	stage := domain.StageOf(err)
	w.metrics.StageFailed(string(stage))

	if stage != domain.StageSubmit {
		w.metrics.TransactionRecorded("rejected")
		log.Warn().Err(err).Str("stage", string(stage)).Msg("Transaction rejected")
		return nil, err
	}

	receipt := buildReceipt(state)
	receipt.Success = false
	receipt.Error = err.Error()
	w.metrics.TransactionRecorded("submission_failed")
	log.Error().Err(err).
		Str("record_id", receipt.RecordID).
		Str("submission_id", receipt.SubmissionID).
		Str("data_hash", receipt.DataHash).
		Msg("Ledger submission failed; aggregate is ahead of ledger until reconciled")
	return receipt, err
}

func buildReceipt(state *PipelineState) *domain.SubmissionReceipt {
	rec := state.Record
	receipt := &domain.SubmissionReceipt{
		RecordID:       rec.RecordID,
		CompanyID:      rec.CompanyID,
		DataHash:       rec.DataHash.Hex(),
		IsFraudulent:   rec.IsFraudulent,
		Success:        state.LedgerReceipt.Success,
		ConfirmationID: state.LedgerReceipt.ConfirmationID,
		LedgerIndex:    state.LedgerReceipt.LedgerIndex,
		Aggregate:      state.Aggregate,
	}
	if state.Job != nil {
		receipt.SubmissionID = state.Job.JobID
	}
	return receipt
}

// GetCompanyAggregate reads an aggregate, through the cache when configured.
// Missing companies wrap domain.ErrNotFound.
func (w *Writer) GetCompanyAggregate(ctx context.Context, companyID string) (*domain.CompanyAggregate, error) {
	if w.cache != nil {
		agg, ok, err := w.cache.Get(ctx, companyID)
		if err != nil {
			w.log.Warn().Err(err).Str("company_id", companyID).Msg("Aggregate cache read failed")
		} else {
			w.metrics.CacheLookup(ok)
			if ok {
				return agg, nil
			}
		}
	}

	agg, err := w.aggregates.GetCompanyAggregate(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("GetCompanyAggregate: %w", err)
	}

	if w.cache != nil {
		if err := w.cache.Set(ctx, agg); err != nil {
			w.log.Warn().Err(err).Str("company_id", companyID).Msg("Failed to fill aggregate cache")
		}
	}
	return agg, nil
}
