package cache

import (
	"context"
	"time"

	"kedaipos/backend/internal/domain"
)

// SnapshotCache stores the per-product read model the sale path uses
// (unit cost plus recipe lines). Entries are invalidated whenever the
// product or its recipe changes.
type SnapshotCache interface {
	Get(ctx context.Context, productID string) (*domain.ProductSnapshot, bool, error)
	Set(ctx context.Context, productID string, snapshot *domain.ProductSnapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, productID string) error
}

type NoopSnapshotCache struct{}

func (NoopSnapshotCache) Get(_ context.Context, _ string) (*domain.ProductSnapshot, bool, error) {
	return nil, false, nil
}

func (NoopSnapshotCache) Set(_ context.Context, _ string, _ *domain.ProductSnapshot, _ time.Duration) error {
	return nil
}

func (NoopSnapshotCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
