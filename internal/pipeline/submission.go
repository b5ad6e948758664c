package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
	"github.com/dvloznov/fraud-ledger/internal/ledger"
	"github.com/dvloznov/fraud-ledger/internal/metrics"
)

// NewSubmissionHandler returns the job handler the submission queue runs for
// every job. When gate is non-nil the submission also holds the
// cross-process gate for its whole duration.
func NewSubmissionHandler(sub ledger.Submitter, gate SubmissionGate, m *metrics.Metrics, log zerolog.Logger) jobs.JobHandler {
	log = log.With().Str("component", "submitter").Logger()

	return func(ctx context.Context, job *jobs.SubmissionJob) (domain.LedgerReceipt, error) {
		dataHash, companyID, err := job.Payload()
		if err != nil {
			return domain.LedgerReceipt{}, err
		}

		if gate != nil {
			release, err := gate.Acquire(ctx)
			if err != nil {
				return domain.LedgerReceipt{}, fmt.Errorf("acquiring submission gate: %w", err)
			}
			defer func() {
				if err := release(ctx); err != nil {
					log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to release submission gate")
				}
			}()
		}

		ctx, span := tracer.Start(ctx, "ledger.submit",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("job_id", job.JobID),
				attribute.String("data_hash", job.DataHash),
			))
		defer span.End()

		start := time.Now()
		receipt, err := sub.Submit(ctx, dataHash, job.IsFraudulent, companyID)
		m.ObserveSubmission(time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int64("ledger_index", int64(receipt.LedgerIndex)))
		}
		return receipt, err
	}
}
