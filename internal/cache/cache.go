package cache

import (
	"context"
	"time"
)

// Rate is a cached exchange-rate quote.
type Rate struct {
	SomPerUSD float64   `json:"som_per_usd"`
	FetchedAt time.Time `json:"fetched_at"`
}

type RateCache interface {
	Get(ctx context.Context, key string) (*Rate, bool, error)
	Set(ctx context.Context, key string, value *Rate, ttl time.Duration) error
}

type NoopRateCache struct{}

func (NoopRateCache) Get(_ context.Context, _ string) (*Rate, bool, error) {
	return nil, false, nil
}

func (NoopRateCache) Set(_ context.Context, _ string, _ *Rate, _ time.Duration) error {
	return nil
}
