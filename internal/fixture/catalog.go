package fixture

import (
	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

// DefaultCatalog is the demo pharmacy catalog shared by the fixture generator
// and the seeded memory store.
func DefaultCatalog() []domain.Medicine {
	entries := []struct {
		id       string
		name     string
		category string
		price    string
	}{
		{"med-001", "Paracetamol 500mg (10 tabs)", "analgesic", "25.00"},
		{"med-002", "Ibuprofen 400mg (10 tabs)", "analgesic", "42.50"},
		{"med-003", "Amoxicillin 500mg (10 caps)", "antibiotic", "98.00"},
		{"med-004", "Azithromycin 500mg (3 tabs)", "antibiotic", "119.00"},
		{"med-005", "Cetirizine 10mg (10 tabs)", "antihistamine", "18.75"},
		{"med-006", "Omeprazole 20mg (15 caps)", "gastro", "65.00"},
		{"med-007", "ORS Sachet 21g", "gastro", "21.00"},
		{"med-008", "Metformin 500mg (20 tabs)", "diabetes", "34.20"},
		{"med-009", "Amlodipine 5mg (15 tabs)", "cardio", "48.00"},
		{"med-010", "Cough Syrup 100ml", "respiratory", "89.00"},
		{"med-011", "Vitamin C 500mg (15 tabs)", "supplement", "30.00"},
		{"med-012", "Multivitamin (30 tabs)", "supplement", "145.00"},
		{"med-013", "Antiseptic Liquid 100ml", "first-aid", "56.00"},
		{"med-014", "Bandage Roll 5cm", "first-aid", "15.50"},
		{"med-015", "Digital Thermometer", "device", "199.00"},
	}

	catalog := make([]domain.Medicine, 0, len(entries))
	for _, e := range entries {
		catalog = append(catalog, domain.Medicine{
			ID:       e.id,
			Name:     e.name,
			Category: e.category,
			Price:    decimal.RequireFromString(e.price),
			Active:   true,
		})
	}
	return catalog
}
