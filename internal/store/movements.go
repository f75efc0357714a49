package store

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"pharmapos/backend/internal/domain"
)

// RequestedQuantities sums line quantities per medicine.
func RequestedQuantities(items []domain.LineItem) map[string]int {
	result := make(map[string]int, len(items))
	for _, item := range items {
		result[item.MedicineID] += item.Quantity
	}
	return result
}

// MedicineIDs returns the distinct medicine ids of items, sorted.
func MedicineIDs(items []domain.LineItem) []string {
	ids := make([]string, 0, len(items))
	for id := range RequestedQuantities(items) {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// CheckStock fails with ErrInsufficientStock when a sale asks for more than is
// on hand.
func CheckStock(requested map[string]int, levels map[string]int) error {
	for _, id := range slices.Sorted(maps.Keys(requested)) {
		if levels[id] < requested[id] {
			return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientStock, id, levels[id], requested[id])
		}
	}
	return nil
}

// CheckReturnable fails with ErrInvalidSale when a return asks for more than
// was sold minus what earlier returns already took back.
func CheckReturnable(requested map[string]int, sold map[string]int, returned map[string]int) error {
	for _, id := range slices.Sorted(maps.Keys(requested)) {
		if requested[id] > sold[id]-returned[id] {
			return fmt.Errorf("%w: return of %d x %s exceeds remaining %d", ErrInvalidSale, requested[id], id, sold[id]-returned[id])
		}
	}
	return nil
}

// SaleMovements derives one sale movement per line, walking levels forward.
// A return re-credits stock. levels is updated in place.
func SaleMovements(sale domain.Sale, levels map[string]int, newID func() string) ([]domain.StockMovement, error) {
	movements := make([]domain.StockMovement, 0, len(sale.Items))
	for _, item := range sale.Items {
		change := -item.Quantity
		if sale.IsReturn {
			change = item.Quantity
		}
		movement, err := domain.NewStockMovement(item.MedicineID, item.MedicineName, domain.MovementSale, levels[item.MedicineID], change, sale.CreatedAt)
		if err != nil {
			if errors.Is(err, domain.ErrNegativeStock) {
				return nil, fmt.Errorf("%w: %w", ErrInsufficientStock, err)
			}
			return nil, err
		}
		movement.ID = newID()
		movement.SaleID = sale.ID
		levels[item.MedicineID] = movement.NewStock
		movements = append(movements, movement)
	}
	return movements, nil
}
