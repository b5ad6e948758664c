package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// InsertRecord streams the record into the transactions table. The record id
// doubles as the insert id so a retried Put is deduplicated.
func (s *Store) InsertRecord(ctx context.Context, rec *domain.TransactionRecord) error {
	if rec.DataHash.IsZero() {
		return errors.New("InsertRecord: record has no data hash")
	}
	if rec.RecordID == "" {
		rec.RecordID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	row, err := recordToRow(rec)
	if err != nil {
		return fmt.Errorf("InsertRecord: %w", err)
	}

	inserter := s.client.Dataset(s.dataset).Table(recordsTable).Inserter()
	saver := &bigquery.StructSaver{Struct: row, InsertID: row.RecordID}
	if err := inserter.Put(ctx, saver); err != nil {
		return fmt.Errorf("InsertRecord: inserting row: %w", err)
	}
	return nil
}

// GetRecord retrieves a record by id.
func (s *Store) GetRecord(ctx context.Context, recordID string) (*domain.TransactionRecord, error) {
	row, err := s.queryRecord(ctx, selectRecordByIDSQL(s.table(recordsTable)), recordID)
	if err != nil {
		return nil, fmt.Errorf("GetRecord: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("GetRecord: %s: %w", recordID, domain.ErrNotFound)
	}
	return row.toDomain()
}

// FindRecordByHash retrieves the oldest record with the given fingerprint.
func (s *Store) FindRecordByHash(ctx context.Context, dataHash domain.Fingerprint) (*domain.TransactionRecord, error) {
	row, err := s.queryRecord(ctx, selectRecordByHashSQL(s.table(recordsTable)), dataHash.Hex())
	if err != nil {
		return nil, fmt.Errorf("FindRecordByHash: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("FindRecordByHash: %s: %w", dataHash.Hex(), domain.ErrNotFound)
	}
	return row.toDomain()
}

// queryRecord runs a single-parameter lookup and returns the first row, or
// nil when nothing matched.
func (s *Store) queryRecord(ctx context.Context, sql string, key string) (*RecordRow, error) {
	q := s.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "key", Value: key},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}

	var row RecordRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading row: %w", err)
	}
	return &row, nil
}

func selectRecordByIDSQL(table string) string {
	return `
SELECT record_id, company_id, is_fraudulent, data_hash, fields, created_ts
FROM ` + table + `
WHERE record_id = @key
LIMIT 1
`
}

func selectRecordByHashSQL(table string) string {
	return `
SELECT record_id, company_id, is_fraudulent, data_hash, fields, created_ts
FROM ` + table + `
WHERE data_hash = @key
ORDER BY created_ts ASC
LIMIT 1
`
}
