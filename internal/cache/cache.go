// Package cache holds computed sales analytics between sale mutations.
package cache

import (
	"context"
	"time"

	"medipos/backend/internal/domain"
)

type AnalyticsCache interface {
	Get(ctx context.Context, key string) (*domain.SalesAnalytics, bool, error)
	Set(ctx context.Context, key string, value *domain.SalesAnalytics, ttl time.Duration) error
}

type NoopAnalyticsCache struct{}

func (NoopAnalyticsCache) Get(_ context.Context, _ string) (*domain.SalesAnalytics, bool, error) {
	return nil, false, nil
}

func (NoopAnalyticsCache) Set(_ context.Context, _ string, _ *domain.SalesAnalytics, _ time.Duration) error {
	return nil
}
