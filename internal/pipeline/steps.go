package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/hasher"
	"github.com/dvloznov/fraud-ledger/internal/idcodec"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
	"github.com/dvloznov/fraud-ledger/internal/logger"
)

var tracer = otel.Tracer("github.com/dvloznov/fraud-ledger/internal/pipeline")

// PipelineStep represents a single step of the write path.
type PipelineStep interface {
	Stage() domain.Stage
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Record           *domain.TransactionRecord
	EncodedCompanyID [32]byte
	Aggregate        *domain.CompanyAggregate
	Job              *jobs.SubmissionJob
	LedgerReceipt    domain.LedgerReceipt
}

// Step 1: ValidateStep rejects records the later steps cannot work with.
type ValidateStep struct{}

func (s *ValidateStep) Stage() domain.Stage { return domain.StageValidate }

func (s *ValidateStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Record == nil {
		return fmt.Errorf("%w: nil record", domain.ErrSerialization)
	}
	if state.Record.CompanyID == "" {
		return fmt.Errorf("%w: companyId is required", domain.ErrInvalidIdentifier)
	}
	if state.Record.Fields == nil {
		state.Record.Fields = domain.NewFields()
	}
	return nil
}

// Step 2: HashStep computes the fingerprint and attaches it to the record.
type HashStep struct{}

func (s *HashStep) Stage() domain.Stage { return domain.StageHash }

func (s *HashStep) Execute(ctx context.Context, state *PipelineState) error {
	hash, err := hasher.Hash(state.Record)
	if err != nil {
		return err
	}
	state.Record.DataHash = hash
	return nil
}

// Step 3: EncodeStep packs the company id for the ledger. It runs before
// anything is persisted so an unencodable id leaves no trace.
type EncodeStep struct{}

func (s *EncodeStep) Stage() domain.Stage { return domain.StageEncode }

func (s *EncodeStep) Execute(ctx context.Context, state *PipelineState) error {
	encoded, err := idcodec.Encode(state.Record.CompanyID)
	if err != nil {
		return err
	}
	state.EncodedCompanyID = encoded
	return nil
}

// Step 4: PersistStep stores the full record, the only copy of the payload.
type PersistStep struct {
	Records RecordInserter
}

func (s *PersistStep) Stage() domain.Stage { return domain.StagePersist }

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	return s.Records.InsertRecord(ctx, state.Record)
}

// Step 5: AggregateStep bumps the company's counters and refreshes the cache.
type AggregateStep struct {
	Aggregates AggregateUpdater
	Cache      AggregateCache
}

func (s *AggregateStep) Stage() domain.Stage { return domain.StageAggregate }

func (s *AggregateStep) Execute(ctx context.Context, state *PipelineState) error {
	agg, err := s.Aggregates.UpsertAndIncrement(ctx, state.Record.CompanyID, state.Record.IsFraudulent)
	if err != nil {
		return err
	}
	state.Aggregate = agg

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, agg); err != nil {
			// the store is authoritative; a stale cache entry expires on its own
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Str("company_id", agg.CompanyID).Msg("Failed to refresh aggregate cache")
		}
	}
	return nil
}

// Step 6: SubmitStep hands the entry to the serialization point and waits
// for the ledger's verdict. Giving up on the wait leaves the job queued.
type SubmitStep struct {
	Publisher jobs.Publisher
}

func (s *SubmitStep) Stage() domain.Stage { return domain.StageSubmit }

func (s *SubmitStep) Execute(ctx context.Context, state *PipelineState) error {
	rec := state.Record
	job := jobs.NewSubmissionJob(rec.RecordID, rec.CompanyID, rec.DataHash, state.EncodedCompanyID, rec.IsFraudulent)
	state.Job = job

	pending, err := s.Publisher.PublishSubmission(ctx, job)
	if err != nil {
		return fmt.Errorf("%w: enqueue: %w", domain.ErrSubmission, err)
	}

	receipt, err := pending.Wait(ctx)
	state.LedgerReceipt = receipt
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSubmission, err)
	}
	if !receipt.Success {
		return fmt.Errorf("%w: ledger reported failure for %s", domain.ErrSubmission, receipt.ConfirmationID)
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure, which
// is returned as a *domain.StageError.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for _, step := range p.steps {
		stage := step.Stage()
		opts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}
		if state.Record != nil {
			opts = append(opts, trace.WithAttributes(attribute.String("company_id", state.Record.CompanyID)))
		}
		stepCtx, span := tracer.Start(ctx, "write."+string(stage), opts...)
		err := step.Execute(stepCtx, state)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()

			var se *domain.StageError
			if errors.As(err, &se) {
				return err
			}
			return &domain.StageError{Stage: stage, Err: err}
		}
		if state.Record != nil && !state.Record.DataHash.IsZero() {
			span.SetAttributes(attribute.String("data_hash", state.Record.DataHash.Hex()))
		}
		span.End()
	}
	return nil
}

// Stages lists the stage of every step, in order.
func (p *Pipeline) Stages() []domain.Stage {
	out := make([]domain.Stage, 0, len(p.steps))
	for _, s := range p.steps {
		out = append(out, s.Stage())
	}
	return out
}
