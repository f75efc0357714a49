package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "time/tzdata"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/printing"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/store/memory"
)

const testPIN = "4827"

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type staticPIN string

func (p staticPIN) ApproveReturn(pin string) bool {
	return pin != "" && pin == string(p)
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]domain.AnalyticsReport
	sets int
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.AnalyticsReport, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	report, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	return &report, true, nil
}

func (c *mapCache) Set(_ context.Context, key string, value *domain.AnalyticsReport, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string]domain.AnalyticsReport)
	}
	c.data[key] = *value
	c.sets++
	return nil
}

func newTestService(t *testing.T) (*Service, *memory.Store, *mapCache) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	repo := memory.NewSeeded()
	reports := &mapCache{}
	svc := New(repo, reports, staticPIN(testPIN), Options{
		Location:    loc,
		PhoneRegion: "IN",
		Shop:        printing.ShopInfo{Name: "City Pharmacy"},
		Logger:      logger,
		Now:         func() time.Time { return fixedNow },
	})
	return svc, repo, reports
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func TestCheckoutMergesCartAndFreezesPrices(t *testing.T) {
	svc, repo, _ := newTestService(t)

	sale, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items: []domain.CartItem{
			{MedicineID: "med-002", Quantity: 1},
			{MedicineID: "med-001", Quantity: 2},
			{MedicineID: "med-002", Quantity: 1},
		},
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		PaymentMethod: domain.PaymentUPI,
		Customer:      &domain.Customer{Name: " Asha ", Phone: "+91 98765 43210"},
	})
	require.NoError(t, err)

	require.Len(t, sale.Items, 2)
	assert.Equal(t, "med-002", sale.Items[0].MedicineID)
	assert.Equal(t, 2, sale.Items[0].Quantity)
	assert.Equal(t, "85", sale.Items[0].Total.String())
	assert.Equal(t, "med-001", sale.Items[1].MedicineID)

	assert.Equal(t, "135", sale.SubtotalAmount.String())
	assert.Equal(t, "13.5", sale.DiscountAmount.String())
	assert.Equal(t, "121.5", sale.TotalAmount.String())
	assert.Equal(t, "cashier", sale.CashierID)
	assert.Equal(t, "RCP-20240501-0001", sale.ReceiptNumber)
	assert.Equal(t, "Asha", sale.Customer.Name)
	assert.Equal(t, fixedNow, sale.CreatedAt)

	stock, err := repo.GetStockMap(context.Background(), []string{"med-001", "med-002"})
	require.NoError(t, err)
	assert.Equal(t, 118, stock["med-001"])
	assert.Equal(t, 118, stock["med-002"])

	next, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items:         []domain.CartItem{{MedicineID: "med-003", Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)
	assert.Equal(t, "RCP-20240501-0002", next.ReceiptNumber)
	assert.Equal(t, domain.DiscountNone, next.DiscountType)
	assert.Nil(t, next.Customer)
}

func TestCheckoutRejections(t *testing.T) {
	svc, _, _ := newTestService(t)
	valid := domain.CheckoutRequest{
		Items:         []domain.CartItem{{MedicineID: "med-001", Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	}

	_, err := svc.Checkout(context.Background(), valid)
	require.ErrorIs(t, err, ErrForbidden)

	bad := valid
	bad.PaymentMethod = "cheque"
	_, err = svc.Checkout(cashierCtx(), bad)
	require.ErrorIs(t, err, ErrInvalidRequest)

	bad = valid
	bad.Items = nil
	_, err = svc.Checkout(cashierCtx(), bad)
	require.ErrorIs(t, err, ErrInvalidRequest)

	bad = valid
	bad.Items = []domain.CartItem{{MedicineID: "med-001", Quantity: 0}}
	_, err = svc.Checkout(cashierCtx(), bad)
	require.ErrorIs(t, err, ErrInvalidRequest)

	bad = valid
	bad.Customer = &domain.Customer{Name: "X", Phone: "12"}
	_, err = svc.Checkout(cashierCtx(), bad)
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.ErrorIs(t, err, domain.ErrInvalidCustomer)

	bad = valid
	bad.DiscountType = domain.DiscountFixed
	bad.DiscountValue = decimal.NewFromInt(500)
	_, err = svc.Checkout(cashierCtx(), bad)
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.ErrorIs(t, err, domain.ErrInvalidDiscount)

	bad = valid
	bad.Items = []domain.CartItem{{MedicineID: "med-404", Quantity: 1}}
	_, err = svc.Checkout(cashierCtx(), bad)
	require.ErrorIs(t, err, store.ErrNotFound)

	bad = valid
	bad.Items = []domain.CartItem{{MedicineID: "med-001", Quantity: 500}}
	_, err = svc.Checkout(cashierCtx(), bad)
	require.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestProcessReturnProratesFixedDiscount(t *testing.T) {
	svc, repo, _ := newTestService(t)

	original, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items:         []domain.CartItem{{MedicineID: "med-001", Quantity: 4}},
		DiscountType:  domain.DiscountFixed,
		DiscountValue: decimal.NewFromInt(30),
		PaymentMethod: domain.PaymentCard,
	})
	require.NoError(t, err)
	require.Equal(t, "70", original.TotalAmount.String())

	req := domain.ReturnRequest{
		OriginalSaleID: original.ID,
		Items:          []domain.CartItem{{MedicineID: "med-001", Quantity: 1}},
		Reason:         "damaged strip",
	}

	_, err = svc.ProcessReturn(cashierCtx(), req)
	require.ErrorIs(t, err, ErrForbidden)

	req.ManagerPIN = testPIN
	ret, err := svc.ProcessReturn(cashierCtx(), req)
	require.NoError(t, err)

	assert.True(t, ret.IsReturn)
	assert.Equal(t, original.ID, ret.ReturnOf)
	assert.Equal(t, domain.PaymentCard, ret.PaymentMethod)
	assert.True(t, ret.Items[0].IsReturn)
	assert.Equal(t, domain.DiscountFixed, ret.DiscountType)
	assert.Equal(t, "7.5", ret.DiscountAmount.String())
	assert.Equal(t, "-17.5", ret.TotalAmount.String())
	assert.Equal(t, "RCP-20240501-0002", ret.ReceiptNumber)

	stock, err := repo.GetStockMap(context.Background(), []string{"med-001"})
	require.NoError(t, err)
	assert.Equal(t, 117, stock["med-001"])

	req.Items = []domain.CartItem{{MedicineID: "med-001", Quantity: 4}}
	_, err = svc.ProcessReturn(adminCtx(), req)
	require.ErrorIs(t, err, ErrInvalidRequest)

	req.Items = []domain.CartItem{{MedicineID: "med-002", Quantity: 1}}
	_, err = svc.ProcessReturn(adminCtx(), req)
	require.ErrorIs(t, err, ErrInvalidRequest)

	req.OriginalSaleID = ret.ID
	req.Items = []domain.CartItem{{MedicineID: "med-001", Quantity: 1}}
	_, err = svc.ProcessReturn(adminCtx(), req)
	require.ErrorIs(t, err, ErrInvalidRequest)

	req.OriginalSaleID = "missing"
	_, err = svc.ProcessReturn(adminCtx(), req)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessReturnKeepsPercentageDiscount(t *testing.T) {
	svc, _, _ := newTestService(t)

	original, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items:         []domain.CartItem{{MedicineID: "med-001", Quantity: 2}},
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(20),
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	ret, err := svc.ProcessReturn(adminCtx(), domain.ReturnRequest{
		OriginalSaleID: original.ID,
		Items:          []domain.CartItem{{MedicineID: "med-001", Quantity: 2}},
		Reason:         "wrong item",
	})
	require.NoError(t, err)
	assert.True(t, original.TotalAmount.Neg().Equal(ret.TotalAmount))
}

func TestAnalyticsUsesShopDatesAndCache(t *testing.T) {
	svc, _, reports := newTestService(t)

	sale, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items:         []domain.CartItem{{MedicineID: "med-001", Quantity: 4}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)
	_, err = svc.ProcessReturn(adminCtx(), domain.ReturnRequest{
		OriginalSaleID: sale.ID,
		Items:          []domain.CartItem{{MedicineID: "med-001", Quantity: 1}},
		Reason:         "expired",
	})
	require.NoError(t, err)

	report, err := svc.Analytics(context.Background(), domain.AnalyticsQuery{From: "2024-05-01", To: "2024-05-01"})
	require.NoError(t, err)
	assert.Equal(t, "75", report.TotalSales.String())
	assert.Equal(t, 2, report.TotalTransactions)
	assert.Equal(t, 3, report.TotalItemsSold)
	require.Len(t, report.TopSellingMedicines, 1)
	assert.Equal(t, 3, report.TopSellingMedicines[0].Quantity)
	require.Len(t, report.DailySales, 1)
	assert.Equal(t, "2024-05-01", report.DailySales[0].Date)
	assert.Equal(t, "75", report.HourlySalesPattern[15].Sales.String())
	assert.Equal(t, 1, reports.sets)

	again, err := svc.Analytics(context.Background(), domain.AnalyticsQuery{From: "2024-05-01", To: "2024-05-01"})
	require.NoError(t, err)
	assert.Equal(t, report.TotalSales.String(), again.TotalSales.String())
	assert.Equal(t, 1, reports.sets)

	empty, err := svc.Analytics(context.Background(), domain.AnalyticsQuery{From: "2024-05-02"})
	require.NoError(t, err)
	assert.True(t, empty.TotalSales.IsZero())
	assert.Empty(t, empty.TopSellingMedicines)
}

func TestAnalyticsRejectsBadWindow(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Analytics(context.Background(), domain.AnalyticsQuery{From: "01/05/2024"})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Analytics(context.Background(), domain.AnalyticsQuery{From: "2024-05-03", To: "2024-05-01"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAnalyticsHonorsCancelledContext(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Analytics(ctx, domain.AnalyticsQuery{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRestockRequiresAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Restock(cashierCtx(), "med-005", domain.RestockRequest{Quantity: 10})
	require.ErrorIs(t, err, ErrForbidden)

	movement, err := svc.Restock(adminCtx(), "med-005", domain.RestockRequest{Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, 130, movement.NewStock)

	_, err = svc.Restock(adminCtx(), "med-005", domain.RestockRequest{Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidRequest)

	movements, err := svc.ListStockMovements(context.Background(), "med-005", 0)
	require.NoError(t, err)
	assert.Len(t, movements, 2)
}

func TestListMedicinesCarriesStock(t *testing.T) {
	svc, _, _ := newTestService(t)

	medicines, err := svc.ListMedicines(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, medicines)
	assert.Equal(t, "med-001", medicines[0].ID)
	assert.Equal(t, 120, medicines[0].Stock)
}

func TestSaleDocument(t *testing.T) {
	svc, _, _ := newTestService(t)

	sale, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items:         []domain.CartItem{{MedicineID: "med-001", Quantity: 2}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	doc, err := svc.SaleDocument(context.Background(), sale.ID, printing.DocumentInvoice, "en")
	require.NoError(t, err)
	assert.Equal(t, "Tax Invoice", doc.Title)
	assert.Equal(t, "City Pharmacy", doc.Shop.Name)
	assert.Equal(t, "2024-05-01 15:30", doc.IssuedAt)
	assert.Equal(t, "50.00", doc.Total)

	_, err = svc.SaleDocument(context.Background(), "nope", printing.DocumentReceipt, "en")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckoutLogsSale(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	logger, hook := test.NewNullLogger()
	svc := New(memory.NewSeeded(), nil, nil, Options{Location: loc, Logger: logger})

	_, err = svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items:         []domain.CartItem{{MedicineID: "med-001", Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "sale recorded", entry.Message)
	assert.Equal(t, "25", entry.Data["total"])
}
