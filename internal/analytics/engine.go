package analytics

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

const topSellingLimit = 10

// Engine folds a window of sales into an AnalyticsReport. It holds no mutable
// state, so one Engine can serve concurrent callers.
type Engine struct {
	loc *time.Location
}

// NewEngine buckets days and hours in loc. A nil loc means UTC; the host
// timezone is never consulted.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{loc: loc}
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

// Compute is shorthand for NewEngine(loc).Compute(sales).
func Compute(sales []domain.Sale, loc *time.Location) domain.AnalyticsReport {
	return NewEngine(loc).Compute(sales)
}

// Compute aggregates sales in a single pass. Input order does not matter except
// for breaking quantity ties in the top-selling list, where the medicine seen
// first wins. A sale with nil Items counts as a sale without lines.
func (e *Engine) Compute(sales []domain.Sale) domain.AnalyticsReport {
	totalSales := decimal.Zero
	totalItems := 0

	medicines := newMedicineTally()
	daily := make(map[string]decimal.Decimal)
	payments := make(map[string]decimal.Decimal)
	hourly := make([]decimal.Decimal, 24)
	for h := range hourly {
		hourly[h] = decimal.Zero
	}

	for _, sale := range sales {
		amount := sale.TotalAmount
		totalSales = totalSales.Add(amount)

		local := sale.CreatedAt.In(e.loc)
		day := local.Format(time.DateOnly)
		daily[day] = sumOrZero(daily, day).Add(amount)
		hourly[local.Hour()] = hourly[local.Hour()].Add(amount)
		payments[sale.PaymentMethod] = sumOrZero(payments, sale.PaymentMethod).Add(amount)

		for _, item := range sale.Items {
			quantity := item.Quantity
			revenue := item.Total
			if sale.IsReturn || item.IsReturn {
				quantity = -quantity
				revenue = revenue.Neg()
			}
			totalItems += quantity
			medicines.add(item.MedicineID, item.MedicineName, quantity, revenue)
		}
	}

	return domain.AnalyticsReport{
		TotalSales:             totalSales,
		TotalTransactions:      len(sales),
		TotalItemsSold:         totalItems,
		TopSellingMedicines:    medicines.top(topSellingLimit),
		DailySales:             dailySeries(daily),
		PaymentMethodBreakdown: payments,
		HourlySalesPattern:     hourlySeries(hourly),
	}
}

// medicineTally is an insert-or-update reducer that remembers first-seen order.
type medicineTally struct {
	byID  map[string]*domain.MedicineSales
	order []string
}

func newMedicineTally() *medicineTally {
	return &medicineTally{byID: make(map[string]*domain.MedicineSales)}
}

func (t *medicineTally) add(id string, name string, quantity int, revenue decimal.Decimal) {
	entry, ok := t.byID[id]
	if !ok {
		entry = &domain.MedicineSales{MedicineID: id, Revenue: decimal.Zero}
		t.byID[id] = entry
		t.order = append(t.order, id)
	}
	entry.MedicineName = name
	entry.Quantity += quantity
	entry.Revenue = entry.Revenue.Add(revenue)
}

func (t *medicineTally) top(limit int) []domain.MedicineSales {
	result := make([]domain.MedicineSales, 0, len(t.order))
	for _, id := range t.order {
		result = append(result, *t.byID[id])
	}
	slices.SortStableFunc(result, func(a, b domain.MedicineSales) int {
		return b.Quantity - a.Quantity
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

func dailySeries(days map[string]decimal.Decimal) []domain.DailySales {
	result := make([]domain.DailySales, 0, len(days))
	for date, sales := range days {
		result = append(result, domain.DailySales{Date: date, Sales: sales})
	}
	// ISO dates sort lexically
	slices.SortFunc(result, func(a, b domain.DailySales) int {
		return strings.Compare(a.Date, b.Date)
	})
	return result
}

func hourlySeries(hours []decimal.Decimal) []domain.HourlySales {
	result := make([]domain.HourlySales, len(hours))
	for h, sales := range hours {
		result[h] = domain.HourlySales{Hour: h, Sales: sales, Label: HourLabel(h)}
	}
	return result
}

// HourLabel renders an hour-of-day bucket as "HH:00".
func HourLabel(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

func sumOrZero(m map[string]decimal.Decimal, key string) decimal.Decimal {
	if v, ok := m[key]; ok {
		return v
	}
	return decimal.Zero
}
