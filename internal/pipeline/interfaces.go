package pipeline

import (
	"context"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// RecordInserter is the slice of the record repository the write path needs.
type RecordInserter interface {
	InsertRecord(ctx context.Context, rec *domain.TransactionRecord) error
}

// AggregateUpdater is the slice of the aggregate repository the write path needs.
type AggregateUpdater interface {
	UpsertAndIncrement(ctx context.Context, companyID string, isFraudulent bool) (*domain.CompanyAggregate, error)
}

// AggregateReader reads aggregates back for GetCompanyAggregate.
type AggregateReader interface {
	GetCompanyAggregate(ctx context.Context, companyID string) (*domain.CompanyAggregate, error)
}

// AggregateStore combines both aggregate roles.
type AggregateStore interface {
	AggregateUpdater
	AggregateReader
}

// AggregateCache is an optional write-through cache in front of the
// aggregate store. Get reports a miss with ok=false and a nil error.
type AggregateCache interface {
	Get(ctx context.Context, companyID string) (agg *domain.CompanyAggregate, ok bool, err error)
	Set(ctx context.Context, agg *domain.CompanyAggregate) error
}

// SubmissionGate serializes submissions across processes that share one
// signing key. Acquire blocks until the gate is held.
type SubmissionGate interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}
