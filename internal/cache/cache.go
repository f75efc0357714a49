package cache

import (
	"context"
	"time"

	"pharmapos/backend/internal/domain"
)

// ReportCache memoizes analytics reports by a key derived from the input
// window. A miss is (nil, false, nil).
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.AnalyticsReport, bool, error)
	Set(ctx context.Context, key string, value *domain.AnalyticsReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.AnalyticsReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.AnalyticsReport, _ time.Duration) error {
	return nil
}
