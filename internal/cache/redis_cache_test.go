package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/backend/internal/domain"
)

func newTestCache(t *testing.T) (*RedisReportCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisReportCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func sampleReport() *domain.AnalyticsReport {
	hourly := make([]domain.HourlySales, 24)
	for h := range hourly {
		hourly[h] = domain.HourlySales{Hour: h, Sales: decimal.Zero, Label: "x"}
	}
	hourly[10].Sales = decimal.RequireFromString("10.00")
	return &domain.AnalyticsReport{
		TotalSales:        decimal.RequireFromString("10.00"),
		TotalTransactions: 1,
		TotalItemsSold:    2,
		TopSellingMedicines: []domain.MedicineSales{
			{MedicineID: "1", MedicineName: "Paracetamol", Quantity: 2, Revenue: decimal.RequireFromString("10.00")},
		},
		DailySales:             []domain.DailySales{{Date: "2024-01-01", Sales: decimal.RequireFromString("10.00")}},
		PaymentMethodBreakdown: map[string]decimal.Decimal{"cash": decimal.RequireFromString("10.00")},
		HourlySalesPattern:     hourly,
	}
}

func TestRedisReportCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	got, ok, err := c.Get(ctx, "pos:analytics:missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, "pos:analytics:k", sampleReport(), time.Minute))

	got, ok, err = c.Get(ctx, "pos:analytics:k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.TotalSales.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 2, got.TotalItemsSold)
	require.Len(t, got.HourlySalesPattern, 24)
	assert.True(t, got.PaymentMethodBreakdown["cash"].Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "Paracetamol", got.TopSellingMedicines[0].MedicineName)
}

func TestRedisReportCacheExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "pos:analytics:ttl", sampleReport(), 30*time.Second))
	mr.FastForward(31 * time.Second)

	_, ok, err := c.Get(ctx, "pos:analytics:ttl")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisReportCacheCorruptPayload(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("pos:analytics:bad", "{not json"))

	_, ok, err := c.Get(context.Background(), "pos:analytics:bad")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestRedisReportCacheIgnoresNil(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, c.Set(context.Background(), "pos:analytics:nil", nil, time.Minute))
	assert.False(t, mr.Exists("pos:analytics:nil"))
}

func TestNoopReportCache(t *testing.T) {
	var c ReportCache = NoopReportCache{}
	require.NoError(t, c.Set(context.Background(), "k", sampleReport(), time.Minute))
	got, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}
