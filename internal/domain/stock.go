package domain

import (
	"fmt"
	"strings"
	"time"
)

// NewStockMovement records a stock change against the current level. A change
// that would take stock below zero is refused, never clamped.
func NewStockMovement(medicineID string, medicineName string, movementType MovementType, previousStock int, change int, at time.Time) (StockMovement, error) {
	movement := StockMovement{
		MedicineID:     medicineID,
		MedicineName:   medicineName,
		MovementType:   movementType,
		QuantityChange: change,
		PreviousStock:  previousStock,
		NewStock:       previousStock + change,
		CreatedAt:      at,
	}
	if err := movement.Validate(); err != nil {
		return StockMovement{}, err
	}
	return movement, nil
}

func (m StockMovement) Validate() error {
	if strings.TrimSpace(m.MedicineID) == "" {
		return fmt.Errorf("%w: medicine id is required", ErrInvalidStockMovement)
	}
	switch m.MovementType {
	case MovementAddition:
		if m.QuantityChange < 1 {
			return fmt.Errorf("%w: addition must increase stock", ErrInvalidStockMovement)
		}
	case MovementSale:
		// returns flow back as positive sale movements
		if m.QuantityChange == 0 {
			return fmt.Errorf("%w: sale movement without quantity", ErrInvalidStockMovement)
		}
	default:
		return fmt.Errorf("%w: unknown movement type %q", ErrInvalidStockMovement, m.MovementType)
	}
	if m.PreviousStock < 0 {
		return fmt.Errorf("%w: negative previous stock for %s", ErrInvalidStockMovement, m.MedicineID)
	}
	if m.NewStock != m.PreviousStock+m.QuantityChange {
		return fmt.Errorf("%w: %d + %d != %d", ErrInvalidStockMovement, m.PreviousStock, m.QuantityChange, m.NewStock)
	}
	if m.NewStock < 0 {
		return fmt.Errorf("%w: %s would reach %d", ErrNegativeStock, m.MedicineID, m.NewStock)
	}
	return nil
}
