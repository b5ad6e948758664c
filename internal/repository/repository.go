// Package repository declares the durable local store used by the write and
// read paths. Implementations live under internal/infra.
package repository

import (
	"context"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// RecordRepository provides the audit copy of every submitted transaction.
type RecordRepository interface {
	// InsertRecord stores a hashed record. Records are never updated or deleted.
	InsertRecord(ctx context.Context, rec *domain.TransactionRecord) error

	// GetRecord retrieves a record by id. Missing records wrap domain.ErrNotFound.
	GetRecord(ctx context.Context, recordID string) (*domain.TransactionRecord, error)

	// FindRecordByHash retrieves the first record with the given fingerprint.
	FindRecordByHash(ctx context.Context, dataHash domain.Fingerprint) (*domain.TransactionRecord, error)
}

// AggregateRepository provides the per-company risk counters.
type AggregateRepository interface {
	// UpsertAndIncrement creates the aggregate if needed, bumps its counters and
	// recomputes the risk score in one atomic step, then returns the post-update
	// snapshot. A snapshot that cannot be read back wraps domain.ErrAggregateReadBack.
	UpsertAndIncrement(ctx context.Context, companyID string, isFraudulent bool) (*domain.CompanyAggregate, error)

	// GetCompanyAggregate retrieves one aggregate. Missing ones wrap domain.ErrNotFound.
	GetCompanyAggregate(ctx context.Context, companyID string) (*domain.CompanyAggregate, error)

	// ListCompanyAggregates returns every aggregate ordered by company id.
	ListCompanyAggregates(ctx context.Context) ([]*domain.CompanyAggregate, error)
}

// Store bundles both repositories behind one connection.
type Store interface {
	RecordRepository
	AggregateRepository
	Close() error
}
