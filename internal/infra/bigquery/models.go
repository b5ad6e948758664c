package bigquery

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// RecordRow is one row of the transactions table.
type RecordRow struct {
	RecordID     string            `bigquery:"record_id"`     // REQUIRED
	CompanyID    string            `bigquery:"company_id"`    // REQUIRED
	IsFraudulent bool              `bigquery:"is_fraudulent"` // REQUIRED
	DataHash     string            `bigquery:"data_hash"`     // REQUIRED, 0x-prefixed hex
	Fields       bigquery.NullJSON `bigquery:"fields"`        // NULLABLE JSON
	CreatedTS    time.Time         `bigquery:"created_ts"`    // REQUIRED
}

// CompanyRow is one row of the companies table.
type CompanyRow struct {
	CompanyID              string    `bigquery:"company_id"`
	TotalTransactions      int64     `bigquery:"total_transactions"`
	FraudulentTransactions int64     `bigquery:"fraudulent_transactions"`
	RiskScore              float64   `bigquery:"risk_score"`
	UpdatedTS              time.Time `bigquery:"updated_ts"`
}

func recordToRow(rec *domain.TransactionRecord) (*RecordRow, error) {
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshaling fields: %w", err)
	}
	return &RecordRow{
		RecordID:     rec.RecordID,
		CompanyID:    rec.CompanyID,
		IsFraudulent: rec.IsFraudulent,
		DataHash:     rec.DataHash.Hex(),
		Fields:       bigquery.NullJSON{JSONVal: string(payload), Valid: true},
		CreatedTS:    rec.CreatedAt,
	}, nil
}

func (r *RecordRow) toDomain() (*domain.TransactionRecord, error) {
	fields := domain.NewFields()
	if r.Fields.Valid && r.Fields.JSONVal != "" {
		if err := json.Unmarshal([]byte(r.Fields.JSONVal), fields); err != nil {
			return nil, fmt.Errorf("decoding fields of %s: %w", r.RecordID, err)
		}
	}
	hash, err := domain.ParseFingerprint(r.DataHash)
	if err != nil {
		return nil, fmt.Errorf("decoding data hash of %s: %w", r.RecordID, err)
	}
	return &domain.TransactionRecord{
		RecordID:     r.RecordID,
		CompanyID:    r.CompanyID,
		IsFraudulent: r.IsFraudulent,
		Fields:       fields,
		DataHash:     hash,
		CreatedAt:    r.CreatedTS,
	}, nil
}

func (r *CompanyRow) toDomain() *domain.CompanyAggregate {
	return &domain.CompanyAggregate{
		CompanyID:              r.CompanyID,
		TotalTransactions:      r.TotalTransactions,
		FraudulentTransactions: r.FraudulentTransactions,
		RiskScore:              r.RiskScore,
		UpdatedAt:              r.UpdatedTS,
	}
}

// checkAggregate rejects snapshots that could not have come from a
// successful increment.
func checkAggregate(row *CompanyRow) error {
	if row.TotalTransactions < 1 || row.FraudulentTransactions < 0 ||
		row.FraudulentTransactions > row.TotalTransactions {
		return fmt.Errorf("%w: inconsistent counters for %s (%d/%d)",
			domain.ErrAggregateReadBack, row.CompanyID, row.FraudulentTransactions, row.TotalTransactions)
	}
	return nil
}
