package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// InsertRecord stores the hashed record. A missing RecordID is generated.
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

	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("InsertRecord: marshaling fields: %w", err)
	}

	row := RecordRow{
		RecordID:     rec.RecordID,
		CompanyID:    rec.CompanyID,
		IsFraudulent: rec.IsFraudulent,
		DataHash:     rec.DataHash.Hex(),
		Fields:       string(payload),
		CreatedAt:    rec.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("InsertRecord: inserting row: %w", err)
	}
	return nil
}

// GetRecord retrieves a record by id.
func (s *Store) GetRecord(ctx context.Context, recordID string) (*domain.TransactionRecord, error) {
	var row RecordRow
	if err := s.db.WithContext(ctx).First(&row, "record_id = ?", recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("GetRecord: %s: %w", recordID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetRecord: query: %w", err)
	}
	return row.toDomain()
}

// FindRecordByHash retrieves the oldest record with the given fingerprint.
func (s *Store) FindRecordByHash(ctx context.Context, dataHash domain.Fingerprint) (*domain.TransactionRecord, error) {
	var row RecordRow
	err := s.db.WithContext(ctx).
		Where("data_hash = ?", dataHash.Hex()).
		Order("created_at ASC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("FindRecordByHash: %s: %w", dataHash.Hex(), domain.ErrNotFound)
		}
		return nil, fmt.Errorf("FindRecordByHash: query: %w", err)
	}
	return row.toDomain()
}

func (r *RecordRow) toDomain() (*domain.TransactionRecord, error) {
	fields := domain.NewFields()
	if err := json.Unmarshal([]byte(r.Fields), fields); err != nil {
		return nil, fmt.Errorf("decoding fields of %s: %w", r.RecordID, err)
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
		CreatedAt:    r.CreatedAt,
	}, nil
}
