package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

const aggregateKeyPrefix = "fraudledger:aggregate:"

// AggregateCache stores company aggregates as JSON with a TTL. The store
// stays authoritative; entries are overwritten after every increment.
type AggregateCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewAggregateCache creates a cache. A zero ttl keeps entries forever.
func NewAggregateCache(client goredis.UniversalClient, ttl time.Duration) *AggregateCache {
	return &AggregateCache{client: client, ttl: ttl}
}

func aggregateKey(companyID string) string {
	return aggregateKeyPrefix + companyID
}

// Get returns the cached aggregate. A miss is ok=false with a nil error.
func (c *AggregateCache) Get(ctx context.Context, companyID string) (*domain.CompanyAggregate, bool, error) {
	val, err := c.client.Get(ctx, aggregateKey(companyID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", companyID, err)
	}

	var agg domain.CompanyAggregate
	if err := json.Unmarshal(val, &agg); err != nil {
		return nil, false, fmt.Errorf("cache decode %s: %w", companyID, err)
	}
	return &agg, true, nil
}

// Set overwrites the cached aggregate.
func (c *AggregateCache) Set(ctx context.Context, agg *domain.CompanyAggregate) error {
	if agg == nil {
		return nil
	}
	payload, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", agg.CompanyID, err)
	}
	if err := c.client.Set(ctx, aggregateKey(agg.CompanyID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", agg.CompanyID, err)
	}
	return nil
}

// Invalidate drops a cached aggregate.
func (c *AggregateCache) Invalidate(ctx context.Context, companyID string) error {
	return c.client.Del(ctx, aggregateKey(companyID)).Err()
}
