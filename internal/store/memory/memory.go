package memory

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/fixture"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

const seededStock = 120

type Store struct {
	mu              sync.RWMutex
	medicines       map[string]domain.Medicine
	medicineOrder   []string
	stock           map[string]int
	salesByID       map[string]*domain.Sale
	returned        map[string]map[string]int
	movements       []domain.StockMovement
	receiptSeq      map[string]int
	usersByUsername map[string]domain.UserAccount
}

// New returns an empty store without users or catalog.
func New() *Store {
	return &Store{
		medicines:       make(map[string]domain.Medicine),
		stock:           make(map[string]int),
		salesByID:       make(map[string]*domain.Sale),
		returned:        make(map[string]map[string]int),
		movements:       make([]domain.StockMovement, 0, 256),
		receiptSeq:      make(map[string]int),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewWithDevUsers returns a store holding only the dev accounts. Demo history
// imports start from it so the imported ledger owns every opening movement.
func NewWithDevUsers() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	return s
}

// NewSeeded returns a store with the demo catalog, opening stock and dev
// users, ready for local runs and tests.
func NewSeeded() *Store {
	s := NewWithDevUsers()
	now := time.Now().UTC()
	for _, med := range fixture.DefaultCatalog() {
		s.putMedicine(med)
		movement, err := domain.NewStockMovement(med.ID, med.Name, domain.MovementAddition, 0, seededStock, now)
		if err != nil {
			panic(err)
		}
		movement.ID = xid.New("mov")
		s.stock[med.ID] = movement.NewStock
		s.movements = append(s.movements, movement)
	}
	return s
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; unset values fall back to
// dev defaults with a warning. Production runs use postgres instead.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logrus.WithField("component", "memory-store").Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithError(err).Fatalf("hash seed password for %s", u.username)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) putMedicine(med domain.Medicine) {
	if _, exists := s.medicines[med.ID]; !exists {
		s.medicineOrder = append(s.medicineOrder, med.ID)
	}
	s.medicines[med.ID] = med
}

func (s *Store) ListMedicines(_ context.Context) ([]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Medicine, 0, len(s.medicineOrder))
	for _, id := range s.medicineOrder {
		result = append(result, s.medicines[id])
	}
	return result, nil
}

func (s *Store) GetMedicinesByIDs(_ context.Context, ids []string) (map[string]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Medicine, len(ids))
	for _, id := range ids {
		if med, ok := s.medicines[id]; ok && med.Active {
			result[id] = med
		}
	}
	return result, nil
}

func (s *Store) GetStockMap(_ context.Context, ids []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int, len(ids))
	for _, id := range ids {
		result[id] = s.stock[id]
	}
	return result, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, []domain.StockMovement, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if err := sale.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", store.ErrInvalidSale, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, nil, fmt.Errorf("%w: duplicate id %s", store.ErrConflict, sale.ID)
	}

	requested := store.RequestedQuantities(sale.Items)
	level := make(map[string]int, len(requested))
	for id := range requested {
		if _, ok := s.medicines[id]; !ok {
			return nil, nil, fmt.Errorf("%w: medicine %s", store.ErrNotFound, id)
		}
		level[id] = s.stock[id]
	}

	if sale.IsReturn {
		if err := s.checkReturnable(sale.ReturnOf, requested); err != nil {
			return nil, nil, err
		}
	} else if err := store.CheckStock(requested, level); err != nil {
		return nil, nil, err
	}

	movements, err := store.SaleMovements(sale, level, func() string { return xid.New("mov") })
	if err != nil {
		return nil, nil, err
	}

	for id, qty := range level {
		s.stock[id] = qty
	}
	s.movements = append(s.movements, movements...)
	if sale.IsReturn {
		returned := s.returned[sale.ReturnOf]
		if returned == nil {
			returned = make(map[string]int)
			s.returned[sale.ReturnOf] = returned
		}
		for id, qty := range requested {
			returned[id] += qty
		}
	}
	stored := cloneSale(sale)
	s.salesByID[sale.ID] = &stored

	result := cloneSale(sale)
	return &result, movements, nil
}

func (s *Store) checkReturnable(originalID string, requested map[string]int) error {
	original, ok := s.salesByID[originalID]
	if !ok {
		return fmt.Errorf("%w: original sale %s", store.ErrNotFound, originalID)
	}
	if original.IsReturn {
		return fmt.Errorf("%w: %s is itself a return", store.ErrInvalidSale, originalID)
	}
	return store.CheckReturnable(requested, store.RequestedQuantities(original.Items), s.returned[originalID])
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := cloneSale(*sale)
	return &result, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !from.IsZero() && sale.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !sale.CreatedAt.Before(to) {
			continue
		}
		result = append(result, cloneSale(*sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) ReturnedQuantities(_ context.Context, originalSaleID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.salesByID[originalSaleID]; !ok {
		return nil, store.ErrNotFound
	}
	result := make(map[string]int, len(s.returned[originalSaleID]))
	for id, qty := range s.returned[originalSaleID] {
		result[id] = qty
	}
	return result, nil
}

func (s *Store) NextReceiptSequence(_ context.Context, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := day.Format("20060102")
	s.receiptSeq[key]++
	return s.receiptSeq[key], nil
}

func (s *Store) AddStock(_ context.Context, medicineID string, quantity int, at time.Time) (*domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	med, ok := s.medicines[medicineID]
	if !ok {
		return nil, store.ErrNotFound
	}
	movement, err := domain.NewStockMovement(med.ID, med.Name, domain.MovementAddition, s.stock[med.ID], quantity, at)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	}
	movement.ID = xid.New("mov")
	s.stock[med.ID] = movement.NewStock
	s.movements = append(s.movements, movement)
	return &movement, nil
}

// ListStockMovements returns the newest movements first by CreatedAt. An empty medicineID
// matches every medicine; limit < 1 means no limit.
func (s *Store) ListStockMovements(_ context.Context, medicineID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, 64)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if medicineID != "" && m.MedicineID != medicineID {
			continue
		}
		result = append(result, m)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// ImportHistory merges a bulk history. Sales that already exist are rejected
// so an accidental double import does not double count revenue.
func (s *Store) ImportHistory(_ context.Context, history store.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sale := range history.Sales {
		if _, exists := s.salesByID[sale.ID]; exists {
			return fmt.Errorf("%w: sale %s already imported", store.ErrConflict, sale.ID)
		}
		if err := sale.Validate(); err != nil {
			return fmt.Errorf("%w: %w", store.ErrInvalidSale, err)
		}
	}

	for _, med := range history.Medicines {
		s.putMedicine(med)
	}
	for _, sale := range history.Sales {
		stored := cloneSale(sale)
		s.salesByID[sale.ID] = &stored
		if day, seq, ok := domain.ParseReceiptNumber(sale.ReceiptNumber); ok && seq > s.receiptSeq[day] {
			s.receiptSeq[day] = seq
		}
		if !sale.IsReturn {
			continue
		}
		returned := s.returned[sale.ReturnOf]
		if returned == nil {
			returned = make(map[string]int)
			s.returned[sale.ReturnOf] = returned
		}
		for _, item := range sale.Items {
			returned[item.MedicineID] += item.Quantity
		}
	}
	s.movements = append(s.movements, history.Movements...)
	slices.SortStableFunc(s.movements, func(a, b domain.StockMovement) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	for id, qty := range history.Stock {
		s.stock[id] = qty
	}
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		result = append(result, user)
	}
	slices.SortFunc(result, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = slices.Clone(src.Items)
	if src.Customer != nil {
		customer := *src.Customer
		dst.Customer = &customer
	}
	return dst
}
