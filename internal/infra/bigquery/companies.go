package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// UpsertAndIncrement runs a MERGE followed by a read-back in one script.
// BigQuery queues mutating DML per table, so concurrent increments never
// overwrite each other. The read-back may already include increments that
// committed right after ours.
func (s *Store) UpsertAndIncrement(ctx context.Context, companyID string, isFraudulent bool) (*domain.CompanyAggregate, error) {
	var fraud int64
	if isFraudulent {
		fraud = 1
	}

	q := s.client.Query(upsertCompanySQL(s.table(companiesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "company_id", Value: companyID},
		{Name: "fraud", Value: fraud},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("UpsertAndIncrement: running merge: %w", err)
	}

	var row CompanyRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("UpsertAndIncrement: %w: %s missing after upsert", domain.ErrAggregateReadBack, companyID)
	}
	if err != nil {
		return nil, fmt.Errorf("UpsertAndIncrement: %w: %v", domain.ErrAggregateReadBack, err)
	}
	if err := checkAggregate(&row); err != nil {
		return nil, fmt.Errorf("UpsertAndIncrement: %w", err)
	}
	return row.toDomain(), nil
}

// GetCompanyAggregate retrieves one company's aggregate.
func (s *Store) GetCompanyAggregate(ctx context.Context, companyID string) (*domain.CompanyAggregate, error) {
	q := s.client.Query(selectCompanySQL(s.table(companiesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "company_id", Value: companyID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetCompanyAggregate: running query: %w", err)
	}

	var row CompanyRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetCompanyAggregate: %s: %w", companyID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetCompanyAggregate: reading row: %w", err)
	}
	return row.toDomain(), nil
}

// ListCompanyAggregates returns every aggregate ordered by company id.
func (s *Store) ListCompanyAggregates(ctx context.Context) ([]*domain.CompanyAggregate, error) {
	q := s.client.Query(listCompaniesSQL(s.table(companiesTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCompanyAggregates: running query: %w", err)
	}

	var out []*domain.CompanyAggregate
	for {
		var row CompanyRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCompanyAggregates: reading row: %w", err)
		}
		out = append(out, row.toDomain())
	}
	return out, nil
}

func upsertCompanySQL(table string) string {
	return `
MERGE ` + table + ` T
USING (SELECT @company_id AS company_id) S
ON T.company_id = S.company_id
WHEN MATCHED THEN UPDATE SET
  total_transactions = T.total_transactions + 1,
  fraudulent_transactions = T.fraudulent_transactions + @fraud,
  risk_score = (T.fraudulent_transactions + @fraud) * 100.0 / (T.total_transactions + 1),
  updated_ts = CURRENT_TIMESTAMP()
WHEN NOT MATCHED THEN
  INSERT (company_id, total_transactions, fraudulent_transactions, risk_score, updated_ts)
  VALUES (@company_id, 1, @fraud, @fraud * 100.0, CURRENT_TIMESTAMP());
` + selectCompanySQL(table)
}

func selectCompanySQL(table string) string {
	return `
SELECT company_id, total_transactions, fraudulent_transactions, risk_score, updated_ts
FROM ` + table + `
WHERE company_id = @company_id
`
}

func listCompaniesSQL(table string) string {
	return `
SELECT company_id, total_transactions, fraudulent_transactions, risk_score, updated_ts
FROM ` + table + `
ORDER BY company_id ASC
`
}
