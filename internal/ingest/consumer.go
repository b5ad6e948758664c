// Package ingest moves transaction events between Pub/Sub and the write path.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/logger"
	"github.com/dvloznov/fraud-ledger/internal/metrics"
	"github.com/dvloznov/fraud-ledger/internal/scoring"
)

// Recorder is the write path as seen by the consumer.
type Recorder interface {
	RecordTransaction(ctx context.Context, rec *domain.TransactionRecord) (*domain.SubmissionReceipt, error)
}

// Outcome says what to do with a delivered message.
type Outcome string

const (
	OutcomeRecorded Outcome = "recorded"
	// OutcomePoison messages can never succeed and are acked to stop redelivery.
	OutcomePoison Outcome = "poison"
	// OutcomeRetry messages are nacked and redelivered.
	OutcomeRetry Outcome = "retry"
)

// Consumer records every message of a subscription.
type Consumer struct {
	sub        *pubsub.Subscription
	recorder   Recorder
	classifier *scoring.Classifier
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// ConsumerConfig wires a Consumer. Classifier and Metrics are optional.
type ConsumerConfig struct {
	Subscription   *pubsub.Subscription
	Recorder       Recorder
	Classifier     *scoring.Classifier
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
	MaxOutstanding int
}

// NewConsumer creates a consumer.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	if cfg.Subscription != nil && cfg.MaxOutstanding > 0 {
		cfg.Subscription.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	}
	return &Consumer{
		sub:        cfg.Subscription,
		recorder:   cfg.Recorder,
		classifier: cfg.Classifier,
		metrics:    cfg.Metrics,
		log:        cfg.Logger.With().Str("component", "ingest_consumer").Logger(),
	}
}

// Run blocks receiving messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.sub == nil {
		return errors.New("ingest: no subscription configured")
	}
	c.log.Info().Str("subscription", c.sub.ID()).Msg("Consuming transaction events")

	err := c.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		switch c.Process(ctx, msg.ID, msg.Data) {
		case OutcomeRetry:
			msg.Nack()
		default:
			msg.Ack()
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("ingest: receive: %w", err)
	}
	return nil
}

// Process decodes one event, scores it if it carries no fraud flag and
// records it.
func (c *Consumer) Process(ctx context.Context, messageID string, data []byte) Outcome {
	log := c.log.With().Str("message_id", messageID).Logger()

	fields := domain.NewFields()
	if err := fields.UnmarshalJSON(data); err != nil {
		log.Warn().Err(err).Msg("Dropping undecodable transaction event")
		return c.done(OutcomePoison)
	}

	rec := domain.NewTransactionRecord(fields)
	log = logger.ForCompany(log, rec.CompanyID)

	if !domain.HasExplicitFraudFlag(fields) && c.classifier != nil {
		flagged, err := c.classifier.Classify(ctx, rec.Fields)
		if err != nil {
			c.metrics.ScoringRequest("failed")
			log.Warn().Err(err).Msg("No fraud score available; recording as not fraudulent")
		} else {
			c.metrics.ScoringRequest("ok")
			rec.IsFraudulent = flagged
		}
	}

	receipt, err := c.recorder.RecordTransaction(logger.WithContext(ctx, log), rec)
	if err != nil {
		if isPoison(err) {
			log.Warn().Err(err).Str("stage", string(domain.StageOf(err))).Msg("Dropping unrecordable transaction event")
			return c.done(OutcomePoison)
		}
		if receipt != nil {
			// the record and aggregate are already committed; redelivery
			// would count the transaction twice
			log.Error().Err(err).Str("submission_id", receipt.SubmissionID).Msg("Ledger submission failed for event")
			return c.done(OutcomePoison)
		}
		log.Error().Err(err).Msg("Failed to record transaction event")
		return c.done(OutcomeRetry)
	}

	log.Debug().Str("data_hash", receipt.DataHash).Uint64("ledger_index", receipt.LedgerIndex).Msg("Transaction event recorded")
	return c.done(OutcomeRecorded)
}

func (c *Consumer) done(o Outcome) Outcome {
	c.metrics.IngestMessage(string(o))
	return o
}

func isPoison(err error) bool {
	return errors.Is(err, domain.ErrSerialization) ||
		errors.Is(err, domain.ErrIdentifierTooLong) ||
		errors.Is(err, domain.ErrInvalidIdentifier)
}
