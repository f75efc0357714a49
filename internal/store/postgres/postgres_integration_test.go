package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

func TestSaleAndReturnAdjustStock(t *testing.T) {
	databaseURL := os.Getenv("PHARMAPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PHARMAPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	medicineID := fmt.Sprintf("med-it-%d", stamp)
	saleID := fmt.Sprintf("sale-it-%d", stamp)
	returnID := fmt.Sprintf("ret-it-%d", stamp)
	at := time.Now().UTC().Truncate(time.Second)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = ANY($1)`, []string{saleID, returnID})
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, returnID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE medicine_id = $1`, medicineID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM medicine_stocks WHERE medicine_id = $1`, medicineID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = $1`, medicineID)
	})

	price := decimal.RequireFromString("12.50")
	err = s.ImportHistory(ctx, store.History{
		Medicines: []domain.Medicine{{ID: medicineID, Name: "Integration Tablet", Category: "test", Price: price, Active: true}},
		Stock:     map[string]int{medicineID: 10},
	})
	if err != nil {
		t.Fatalf("import medicine: %v", err)
	}

	item, err := domain.NewLineItem(medicineID, "Integration Tablet", 4, price)
	if err != nil {
		t.Fatalf("line item: %v", err)
	}
	sale, err := domain.NewSale(domain.SaleParams{
		ID:            saleID,
		ReceiptNumber: "IT-" + saleID,
		Items:         []domain.LineItem{item},
		PaymentMethod: domain.PaymentCard,
		CashierID:     "it",
		CreatedAt:     at,
	})
	if err != nil {
		t.Fatalf("new sale: %v", err)
	}
	if _, _, err := s.CreateSale(ctx, sale); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	retItem, _ := domain.NewLineItem(medicineID, "Integration Tablet", 3, price)
	retItem.IsReturn = true
	ret, err := domain.NewSale(domain.SaleParams{
		ID:            returnID,
		ReceiptNumber: "IT-" + returnID,
		Items:         []domain.LineItem{retItem},
		PaymentMethod: domain.PaymentCard,
		CashierID:     "it",
		IsReturn:      true,
		ReturnOf:      saleID,
		CreatedAt:     at.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("new return: %v", err)
	}
	if _, _, err := s.CreateSale(ctx, ret); err != nil {
		t.Fatalf("create return: %v", err)
	}

	stock, err := s.GetStockMap(ctx, []string{medicineID})
	if err != nil {
		t.Fatalf("stock map: %v", err)
	}
	if stock[medicineID] != 9 {
		t.Fatalf("expected stock 9 after sale and return, got %d", stock[medicineID])
	}

	sales, err := s.ListSales(ctx, at, at.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	found := 0
	for _, got := range sales {
		if got.ID == saleID || got.ID == returnID {
			found++
			if len(got.Items) != 1 {
				t.Fatalf("expected one item on %s, got %d", got.ID, len(got.Items))
			}
		}
	}
	if found != 2 {
		t.Fatalf("expected sale and return in window, found %d", found)
	}

	over := ret
	over.ID = returnID + "-over"
	over.ReceiptNumber = "IT-" + over.ID
	if _, _, err := s.CreateSale(ctx, over); err == nil {
		t.Fatalf("expected over-return to fail")
	}
}
