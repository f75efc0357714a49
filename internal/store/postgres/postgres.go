package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the pool, checks connectivity and applies pending migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price, active
		FROM medicines
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	medicines := make([]domain.Medicine, 0, 32)
	for rows.Next() {
		var m domain.Medicine
		if err := rows.Scan(&m.ID, &m.Name, &m.Category, &m.Price, &m.Active); err != nil {
			return nil, err
		}
		medicines = append(medicines, m)
	}
	return medicines, rows.Err()
}

func (s *Store) GetMedicinesByIDs(ctx context.Context, ids []string) (map[string]domain.Medicine, error) {
	result := make(map[string]domain.Medicine, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price, active
		FROM medicines
		WHERE active = true AND id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Medicine
		if err := rows.Scan(&m.ID, &m.Name, &m.Category, &m.Price, &m.Active); err != nil {
			return nil, err
		}
		result[m.ID] = m
	}
	return result, rows.Err()
}

func (s *Store) GetStockMap(ctx context.Context, ids []string) (map[string]int, error) {
	stockMap := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return stockMap, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT medicine_id, qty
		FROM medicine_stocks
		WHERE medicine_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		stockMap[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, ok := stockMap[id]; !ok {
			stockMap[id] = 0
		}
	}
	return stockMap, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, []domain.StockMovement, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if err := sale.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", store.ErrInvalidSale, err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	requested := store.RequestedQuantities(sale.Items)
	levels, err := lockStock(ctx, tx, store.MedicineIDs(sale.Items))
	if err != nil {
		return nil, nil, err
	}

	if sale.IsReturn {
		if err := checkReturnable(ctx, tx, sale.ReturnOf, requested); err != nil {
			return nil, nil, err
		}
	} else if err := store.CheckStock(requested, levels); err != nil {
		return nil, nil, err
	}

	movements, err := store.SaleMovements(sale, levels, func() string { return xid.New("mov") })
	if err != nil {
		return nil, nil, err
	}

	if err := insertSale(ctx, tx, sale); err != nil {
		return nil, nil, err
	}
	for _, movement := range movements {
		if err := insertMovement(ctx, tx, movement); err != nil {
			return nil, nil, err
		}
	}
	for id, qty := range levels {
		if err := upsertStock(ctx, tx, id, qty); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &sale, movements, nil
}

// lockStock row-locks the medicines so concurrent sales of the same medicine
// serialize. Unknown ids fail with ErrNotFound.
func lockStock(ctx context.Context, tx *sql.Tx, ids []string) (map[string]int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT m.id, COALESCE(st.qty, 0)
		FROM medicines m
		LEFT JOIN medicine_stocks st ON st.medicine_id = m.id
		WHERE m.id = ANY($1)
		FOR UPDATE OF m
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make(map[string]int, len(ids))
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		levels[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := levels[id]; !ok {
			return nil, fmt.Errorf("%w: medicine %s", store.ErrNotFound, id)
		}
	}
	return levels, nil
}

func checkReturnable(ctx context.Context, tx *sql.Tx, originalID string, requested map[string]int) error {
	var isReturn bool
	err := tx.QueryRowContext(ctx, `SELECT is_return FROM sales WHERE id = $1 FOR UPDATE`, originalID).Scan(&isReturn)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: original sale %s", store.ErrNotFound, originalID)
	}
	if err != nil {
		return err
	}
	if isReturn {
		return fmt.Errorf("%w: %s is itself a return", store.ErrInvalidSale, originalID)
	}

	sold, err := quantityMap(ctx, tx, `
		SELECT medicine_id, SUM(quantity)
		FROM sale_items
		WHERE sale_id = $1
		GROUP BY medicine_id
	`, originalID)
	if err != nil {
		return err
	}
	returned, err := returnedQuantities(ctx, tx, originalID)
	if err != nil {
		return err
	}
	return store.CheckReturnable(requested, sold, returned)
}

func returnedQuantities(ctx context.Context, q queryer, originalID string) (map[string]int, error) {
	return quantityMap(ctx, q, `
		SELECT i.medicine_id, SUM(i.quantity)
		FROM sales s
		JOIN sale_items i ON i.sale_id = s.id
		WHERE s.return_of = $1
		GROUP BY i.medicine_id
	`, originalID)
}

func quantityMap(ctx context.Context, q queryer, query string, args ...any) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		result[id] = qty
	}
	return result, rows.Err()
}

func insertSale(ctx context.Context, tx *sql.Tx, sale domain.Sale) error {
	var customerName, customerPhone any
	if sale.Customer != nil {
		customerName = nullIfEmpty(sale.Customer.Name)
		customerPhone = nullIfEmpty(sale.Customer.Phone)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, receipt_number, subtotal_amount, discount_type, discount_value,
			discount_amount, total_amount, payment_method, customer_name, customer_phone,
			cashier_id, is_return, return_of, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.ReceiptNumber, sale.SubtotalAmount, string(sale.DiscountType), sale.DiscountValue,
		sale.DiscountAmount, sale.TotalAmount, sale.PaymentMethod, customerName, customerPhone,
		sale.CashierID, sale.IsReturn, nullIfEmpty(sale.ReturnOf), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: sale %s or receipt %s exists", store.ErrConflict, sale.ID, sale.ReceiptNumber)
		}
		return err
	}

	for i, item := range sale.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, medicine_id, medicine_name, quantity, price, total, is_return)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, sale.ID, i+1, item.MedicineID, item.MedicineName, item.Quantity, item.Price, item.Total, item.IsReturn)
		if err != nil {
			return err
		}
	}
	return nil
}

func insertMovement(ctx context.Context, tx *sql.Tx, m domain.StockMovement) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (
			id, medicine_id, medicine_name, movement_type, quantity_change,
			previous_stock, new_stock, sale_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING
	`, m.ID, m.MedicineID, m.MedicineName, string(m.MovementType), m.QuantityChange,
		m.PreviousStock, m.NewStock, nullIfEmpty(m.SaleID), m.CreatedAt)
	return err
}

func upsertStock(ctx context.Context, tx *sql.Tx, medicineID string, qty int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO medicine_stocks (medicine_id, qty, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (medicine_id)
		DO UPDATE SET qty = EXCLUDED.qty, updated_at = now()
	`, medicineID, qty)
	return err
}

const saleColumns = `
	id, receipt_number, subtotal_amount, discount_type, discount_value,
	discount_amount, total_amount, payment_method, customer_name, customer_phone,
	cashier_id, is_return, return_of, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var discountType string
	var customerName, customerPhone, returnOf sql.NullString
	err := row.Scan(
		&sale.ID, &sale.ReceiptNumber, &sale.SubtotalAmount, &discountType, &sale.DiscountValue,
		&sale.DiscountAmount, &sale.TotalAmount, &sale.PaymentMethod, &customerName, &customerPhone,
		&sale.CashierID, &sale.IsReturn, &returnOf, &sale.CreatedAt,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.DiscountType = domain.DiscountType(discountType)
	sale.ReturnOf = returnOf.String
	sale.CreatedAt = sale.CreatedAt.UTC()
	if customerName.Valid || customerPhone.Valid {
		sale.Customer = &domain.Customer{Name: customerName.String, Phone: customerPhone.String}
	}
	return sale, nil
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := loadItems(ctx, s.db, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at ASC, id ASC
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 128)
	ids := make([]string, 0, 128)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return sales, nil
	}

	items, err := loadItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

func loadItems(ctx context.Context, q queryer, saleIDs []string) (map[string][]domain.LineItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT sale_id, medicine_id, medicine_name, quantity, price, total, is_return
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id ASC, line_no ASC
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]domain.LineItem, len(saleIDs))
	for rows.Next() {
		var saleID string
		var item domain.LineItem
		if err := rows.Scan(&saleID, &item.MedicineID, &item.MedicineName, &item.Quantity, &item.Price, &item.Total, &item.IsReturn); err != nil {
			return nil, err
		}
		result[saleID] = append(result[saleID], item)
	}
	return result, rows.Err()
}

func (s *Store) ReturnedQuantities(ctx context.Context, originalSaleID string) (map[string]int, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sales WHERE id = $1)`, originalSaleID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return returnedQuantities(ctx, s.db, originalSaleID)
}

func (s *Store) NextReceiptSequence(ctx context.Context, day time.Time) (int, error) {
	var seq int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO receipt_sequences (day, last_value)
		VALUES ($1, 1)
		ON CONFLICT (day)
		DO UPDATE SET last_value = receipt_sequences.last_value + 1
		RETURNING last_value
	`, day.Format("20060102")).Scan(&seq)
	return seq, err
}

func (s *Store) AddStock(ctx context.Context, medicineID string, quantity int, at time.Time) (*domain.StockMovement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var name string
	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT m.name, COALESCE(st.qty, 0)
		FROM medicines m
		LEFT JOIN medicine_stocks st ON st.medicine_id = m.id
		WHERE m.id = $1
		FOR UPDATE OF m
	`, medicineID).Scan(&name, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	movement, err := domain.NewStockMovement(medicineID, name, domain.MovementAddition, current, quantity, at)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	}
	movement.ID = xid.New("mov")

	if err := insertMovement(ctx, tx, movement); err != nil {
		return nil, err
	}
	if err := upsertStock(ctx, tx, medicineID, movement.NewStock); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &movement, nil
}

func (s *Store) ListStockMovements(ctx context.Context, medicineID string, limit int) ([]domain.StockMovement, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, medicine_id, medicine_name, movement_type, quantity_change,
			previous_stock, new_stock, sale_id, created_at
		FROM stock_movements
		WHERE ($1 = '' OR medicine_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, medicineID, limitArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, 64)
	for rows.Next() {
		var m domain.StockMovement
		var movementType string
		var saleID sql.NullString
		if err := rows.Scan(&m.ID, &m.MedicineID, &m.MedicineName, &movementType, &m.QuantityChange,
			&m.PreviousStock, &m.NewStock, &saleID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.MovementType = domain.MovementType(movementType)
		m.SaleID = saleID.String
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ImportHistory loads a bulk history in one transaction. Medicines are
// upserted; an already present sale id or receipt aborts the import.
func (s *Store) ImportHistory(ctx context.Context, history store.History) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range history.Medicines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO medicines (id, name, category, price, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,now(),now())
			ON CONFLICT (id)
			DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category,
				price = EXCLUDED.price, active = EXCLUDED.active, updated_at = now()
		`, m.ID, m.Name, m.Category, m.Price, m.Active); err != nil {
			return err
		}
	}

	receipts := make(map[string]int)
	for _, sale := range history.Sales {
		if err := sale.Validate(); err != nil {
			return fmt.Errorf("%w: %w", store.ErrInvalidSale, err)
		}
		if err := insertSale(ctx, tx, sale); err != nil {
			return err
		}
		if day, seq, ok := domain.ParseReceiptNumber(sale.ReceiptNumber); ok && seq > receipts[day] {
			receipts[day] = seq
		}
	}
	for _, movement := range history.Movements {
		if err := insertMovement(ctx, tx, movement); err != nil {
			return err
		}
	}
	for id, qty := range history.Stock {
		if err := upsertStock(ctx, tx, id, qty); err != nil {
			return err
		}
	}
	for day, seq := range receipts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO receipt_sequences (day, last_value)
			VALUES ($1, $2)
			ON CONFLICT (day)
			DO UPDATE SET last_value = GREATEST(receipt_sequences.last_value, EXCLUDED.last_value)
		`, day, seq); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
