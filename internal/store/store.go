package store

import (
	"context"
	"errors"
	"time"

	"pharmapos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidSale       = errors.New("invalid sale")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
)

// History is a bulk trading history, typically produced by the fixture
// generator. Stock is the level each medicine ends at.
type History struct {
	Medicines []domain.Medicine
	Sales     []domain.Sale
	Movements []domain.StockMovement
	Stock     map[string]int
}

type Repository interface {
	ListMedicines(ctx context.Context) ([]domain.Medicine, error)
	GetMedicinesByIDs(ctx context.Context, ids []string) (map[string]domain.Medicine, error)
	GetStockMap(ctx context.Context, ids []string) (map[string]int, error)

	// CreateSale stores the sale and applies its stock movements in one unit.
	// A normal sale draws stock down and fails with ErrInsufficientStock when a
	// level would go negative; a return re-credits stock and fails with
	// ErrInvalidSale when it exceeds what is left to return on the original.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, []domain.StockMovement, error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	// ListSales returns sales with createdAt in [from, to) ordered by createdAt
	// then id. A zero bound is unbounded.
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	ReturnedQuantities(ctx context.Context, originalSaleID string) (map[string]int, error)
	// NextReceiptSequence issues the next per-day counter, starting at 1. day is
	// the shop-local business date.
	NextReceiptSequence(ctx context.Context, day time.Time) (int, error)

	AddStock(ctx context.Context, medicineID string, quantity int, at time.Time) (*domain.StockMovement, error)
	ListStockMovements(ctx context.Context, medicineID string, limit int) ([]domain.StockMovement, error)
	ImportHistory(ctx context.Context, history History) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
