package cache

import (
	"context"
	"time"

	"pizzatruck/backend/internal/domain"
)

// StockCache holds the last computed current-stock report. Writers to the
// ledger invalidate it after commit.
type StockCache interface {
	Get(ctx context.Context) ([]domain.StockLevel, bool, error)
	Set(ctx context.Context, levels []domain.StockLevel, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopStockCache struct{}

func (NoopStockCache) Get(_ context.Context) ([]domain.StockLevel, bool, error) {
	return nil, false, nil
}

func (NoopStockCache) Set(_ context.Context, _ []domain.StockLevel, _ time.Duration) error {
	return nil
}

func (NoopStockCache) Invalidate(_ context.Context) error {
	return nil
}
