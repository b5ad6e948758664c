// Package bigquery implements repository.Store on top of BigQuery for
// deployments that keep the audit copy in the warehouse.
package bigquery

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/fraud-ledger/internal/repository"
)

const (
	recordsTable   = "transactions"
	companiesTable = "companies"
)

// Store holds a BigQuery client bound to one dataset.
type Store struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewStore creates a store for project.dataset using default credentials.
func NewStore(ctx context.Context, project, dataset string) (*Store, error) {
	if project == "" || dataset == "" {
		return nil, errors.New("NewStore: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating BigQuery client: %w", err)
	}
	return NewStoreWithClient(client, dataset), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *bigquery.Client, dataset string) *Store {
	return &Store{client: client, project: client.Project(), dataset: dataset}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// table returns the fully qualified, backtick-quoted table reference.
func (s *Store) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.project, s.dataset, name)
}

var _ repository.Store = (*Store)(nil)
