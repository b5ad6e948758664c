package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// UpsertAndIncrement bumps a company's counters with a single
// INSERT ... ON CONFLICT DO UPDATE. The SET expressions read the pre-update
// row, so the risk score is recomputed from the new counters in the same
// statement. The snapshot is read back inside the same transaction.
func (s *Store) UpsertAndIncrement(ctx context.Context, companyID string, isFraudulent bool) (*domain.CompanyAggregate, error) {
	var fraud int64
	if isFraudulent {
		fraud = 1
	}
	now := time.Now().UTC()

	var out CompanyRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := CompanyRow{
			CompanyID:              companyID,
			TotalTransactions:      1,
			FraudulentTransactions: fraud,
			RiskScore:              domain.ComputeRiskScore(1, fraud),
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		onConflict := clause.OnConflict{
			Columns: []clause.Column{{Name: "company_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"total_transactions":      gorm.Expr("total_transactions + 1"),
				"fraudulent_transactions": gorm.Expr("fraudulent_transactions + ?", fraud),
				"risk_score":              gorm.Expr("CAST(fraudulent_transactions + ? AS REAL) * 100.0 / (total_transactions + 1)", fraud),
				"updated_at":              now,
			}),
		}
		if err := tx.Clauses(onConflict).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert: %w", err)
		}

		if err := tx.First(&out, "company_id = ?", companyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s missing after upsert", domain.ErrAggregateReadBack, companyID)
			}
			return fmt.Errorf("%w: %v", domain.ErrAggregateReadBack, err)
		}
		if out.TotalTransactions < 1 || out.FraudulentTransactions > out.TotalTransactions {
			return fmt.Errorf("%w: inconsistent counters for %s (%d/%d)",
				domain.ErrAggregateReadBack, companyID, out.FraudulentTransactions, out.TotalTransactions)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("UpsertAndIncrement: %w", err)
	}

	return out.toDomain(), nil
}

// GetCompanyAggregate retrieves one company's aggregate.
func (s *Store) GetCompanyAggregate(ctx context.Context, companyID string) (*domain.CompanyAggregate, error) {
	var row CompanyRow
	if err := s.db.WithContext(ctx).First(&row, "company_id = ?", companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("GetCompanyAggregate: %s: %w", companyID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetCompanyAggregate: query: %w", err)
	}
	return row.toDomain(), nil
}

// ListCompanyAggregates returns every aggregate ordered by company id.
func (s *Store) ListCompanyAggregates(ctx context.Context) ([]*domain.CompanyAggregate, error) {
	var rows []CompanyRow
	if err := s.db.WithContext(ctx).Order("company_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListCompanyAggregates: query: %w", err)
	}
	out := make([]*domain.CompanyAggregate, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (r *CompanyRow) toDomain() *domain.CompanyAggregate {
	return &domain.CompanyAggregate{
		CompanyID:              r.CompanyID,
		TotalTransactions:      r.TotalTransactions,
		FraudulentTransactions: r.FraudulentTransactions,
		RiskScore:              r.RiskScore,
		UpdatedAt:              r.UpdatedAt,
	}
}
