package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"pharmapos/backend/internal/analytics"
	"pharmapos/backend/internal/cache"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/printing"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

var (
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid request")
)

const (
	defaultMovementLimit = 50
	maxMovementLimit     = 500
	dateLayout           = "2006-01-02"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// ReturnApprover checks the manager PIN a cashier presents for a return.
type ReturnApprover interface {
	ApproveReturn(pin string) bool
}

type Options struct {
	Location       *time.Location
	PhoneRegion    string
	ReportCacheTTL time.Duration
	Shop           printing.ShopInfo
	Logger         *logrus.Logger
	Now            func() time.Time
}

type Service struct {
	repo     store.Repository
	cache    cache.ReportCache
	approver ReturnApprover
	engine   *analytics.Engine
	group    singleflight.Group

	loc         *time.Location
	phoneRegion string
	reportTTL   time.Duration
	shop        printing.ShopInfo
	log         *logrus.Logger
	now         func() time.Time
}

func New(repo store.Repository, reportCache cache.ReportCache, approver ReturnApprover, opts Options) *Service {
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.PhoneRegion == "" {
		opts.PhoneRegion = "IN"
	}
	if opts.ReportCacheTTL <= 0 {
		opts.ReportCacheTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:        repo,
		cache:       reportCache,
		approver:    approver,
		engine:      analytics.NewEngine(opts.Location),
		loc:         opts.Location,
		phoneRegion: opts.PhoneRegion,
		reportTTL:   opts.ReportCacheTTL,
		shop:        opts.Shop,
		log:         opts.Logger,
		now:         opts.Now,
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) ListMedicines(ctx context.Context) ([]domain.MedicineStock, error) {
	medicines, err := s.repo.ListMedicines(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(medicines))
	for _, m := range medicines {
		ids = append(ids, m.ID)
	}
	stock, err := s.repo.GetStockMap(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]domain.MedicineStock, 0, len(medicines))
	for _, m := range medicines {
		result = append(result, domain.MedicineStock{Medicine: m, Stock: stock[m.ID]})
	}
	return result, nil
}

// Checkout prices the cart from the catalog and records the sale.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, ErrForbidden
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, fmt.Errorf("%w: payment method %q", ErrInvalidRequest, req.PaymentMethod)
	}

	cart, err := normalizeItems(req.Items)
	if err != nil {
		return domain.Sale{}, err
	}

	customer := normalizeCustomer(req.Customer)
	if err := domain.ValidateCustomer(customer, s.phoneRegion); err != nil {
		return domain.Sale{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	ids := make([]string, 0, len(cart))
	for _, item := range cart {
		ids = append(ids, item.MedicineID)
	}
	medicines, err := s.repo.GetMedicinesByIDs(ctx, ids)
	if err != nil {
		return domain.Sale{}, err
	}

	items := make([]domain.LineItem, 0, len(cart))
	for _, c := range cart {
		med, exists := medicines[c.MedicineID]
		if !exists {
			return domain.Sale{}, fmt.Errorf("%w: medicine %s", store.ErrNotFound, c.MedicineID)
		}
		item, err := domain.NewLineItem(med.ID, med.Name, c.Quantity, med.Price)
		if err != nil {
			return domain.Sale{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		items = append(items, item)
	}

	now := s.now().In(s.loc)
	receipt, err := s.nextReceipt(ctx, now)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, err := domain.NewSale(domain.SaleParams{
		ID:            xid.New("sale"),
		ReceiptNumber: receipt,
		Items:         items,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		PaymentMethod: req.PaymentMethod,
		Customer:      customer,
		CashierID:     actor.Username,
		CreatedAt:     now.UTC(),
	})
	if err != nil {
		return domain.Sale{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	created, _, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	s.log.WithFields(logrus.Fields{
		"sale_id": created.ID,
		"receipt": created.ReceiptNumber,
		"total":   created.TotalAmount.String(),
		"payment": created.PaymentMethod,
		"items":   created.ItemCount(),
		"cashier": created.CashierID,
	}).Info("sale recorded")

	return *created, nil
}

// ProcessReturn refunds part or all of an earlier sale at its frozen prices.
// Cashiers need a valid manager PIN; admins do not.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, ErrForbidden
	}
	if actor.Role != domain.RoleAdmin {
		if s.approver == nil || !s.approver.ApproveReturn(req.ManagerPIN) {
			return domain.Sale{}, fmt.Errorf("%w: manager approval required", ErrForbidden)
		}
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.Sale{}, fmt.Errorf("%w: reason is required", ErrInvalidRequest)
	}

	original, err := s.repo.FindSaleByID(ctx, strings.TrimSpace(req.OriginalSaleID))
	if err != nil {
		return domain.Sale{}, err
	}
	if original.IsReturn {
		return domain.Sale{}, fmt.Errorf("%w: %s is a return", ErrInvalidRequest, original.ID)
	}

	cart, err := normalizeItems(req.Items)
	if err != nil {
		return domain.Sale{}, err
	}
	returned, err := s.repo.ReturnedQuantities(ctx, original.ID)
	if err != nil {
		return domain.Sale{}, err
	}

	sold := make(map[string]int, len(original.Items))
	frozen := make(map[string]domain.LineItem, len(original.Items))
	for _, item := range original.Items {
		sold[item.MedicineID] += item.Quantity
		if _, seen := frozen[item.MedicineID]; !seen {
			frozen[item.MedicineID] = item
		}
	}

	items := make([]domain.LineItem, 0, len(cart))
	subtotal := decimal.Zero
	for _, c := range cart {
		line, exists := frozen[c.MedicineID]
		if !exists {
			return domain.Sale{}, fmt.Errorf("%w: %s was not on sale %s", ErrInvalidRequest, c.MedicineID, original.ID)
		}
		if remaining := sold[c.MedicineID] - returned[c.MedicineID]; c.Quantity > remaining {
			return domain.Sale{}, fmt.Errorf("%w: return of %d x %s exceeds remaining %d", ErrInvalidRequest, c.Quantity, c.MedicineID, remaining)
		}
		item, err := domain.NewLineItem(line.MedicineID, line.MedicineName, c.Quantity, line.Price)
		if err != nil {
			return domain.Sale{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		item.IsReturn = true
		items = append(items, item)
		subtotal = subtotal.Add(item.Total)
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = original.PaymentMethod
	}
	discountType, discountValue := domain.ReturnDiscount(*original, subtotal)

	now := s.now().In(s.loc)
	receipt, err := s.nextReceipt(ctx, now)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, err := domain.NewSale(domain.SaleParams{
		ID:            xid.New("ret"),
		ReceiptNumber: receipt,
		Items:         items,
		DiscountType:  discountType,
		DiscountValue: discountValue,
		PaymentMethod: paymentMethod,
		Customer:      original.Customer,
		CashierID:     actor.Username,
		IsReturn:      true,
		ReturnOf:      original.ID,
		CreatedAt:     now.UTC(),
	})
	if err != nil {
		return domain.Sale{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	created, _, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	s.log.WithFields(logrus.Fields{
		"sale_id":   created.ID,
		"return_of": created.ReturnOf,
		"total":     created.TotalAmount.String(),
		"actor":     actor.Username,
		"role":      actor.Role,
		"reason":    req.Reason,
	}).Info("return recorded")

	return *created, nil
}

// Analytics aggregates the sales in the local-date window [From, To]. Both
// bounds are optional. Identical concurrent requests share one computation.
func (s *Service) Analytics(ctx context.Context, q domain.AnalyticsQuery) (domain.AnalyticsReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.AnalyticsReport{}, err
	}
	sales, err := s.salesInWindow(ctx, q)
	if err != nil {
		return domain.AnalyticsReport{}, err
	}

	key := analytics.CacheKey(sales, s.loc)
	cached, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("report cache read failed")
	}
	if hit && cached != nil {
		return *cached, nil
	}

	resultChan := s.group.DoChan(key, func() (any, error) {
		report := s.engine.Compute(sales)
		if err := s.cache.Set(context.WithoutCancel(ctx), key, &report, s.reportTTL); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("report cache write failed")
		}
		return report, nil
	})

	select {
	case <-ctx.Done():
		return domain.AnalyticsReport{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return domain.AnalyticsReport{}, res.Err
		}
		return res.Val.(domain.AnalyticsReport), nil
	}
}

func (s *Service) ListSales(ctx context.Context, q domain.AnalyticsQuery) ([]domain.Sale, error) {
	return s.salesInWindow(ctx, q)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Sale{}, ErrInvalidRequest
	}
	sale, err := s.repo.FindSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) Restock(ctx context.Context, medicineID string, req domain.RestockRequest) (domain.StockMovement, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.StockMovement{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	medicineID = strings.TrimSpace(medicineID)
	if medicineID == "" || req.Quantity < 1 {
		return domain.StockMovement{}, ErrInvalidRequest
	}

	movement, err := s.repo.AddStock(ctx, medicineID, req.Quantity, s.now().UTC())
	if err != nil {
		return domain.StockMovement{}, err
	}

	s.log.WithFields(logrus.Fields{
		"medicine_id": medicineID,
		"quantity":    req.Quantity,
		"new_stock":   movement.NewStock,
		"actor":       actor.Username,
	}).Info("stock added")

	return *movement, nil
}

func (s *Service) ListStockMovements(ctx context.Context, medicineID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = defaultMovementLimit
	}
	if limit > maxMovementLimit {
		limit = maxMovementLimit
	}
	return s.repo.ListStockMovements(ctx, strings.TrimSpace(medicineID), limit)
}

// SaleDocument builds the printable view of a sale in the requested language.
func (s *Service) SaleDocument(ctx context.Context, id string, docType printing.DocumentType, lang string) (printing.Document, error) {
	sale, err := s.GetSale(ctx, id)
	if err != nil {
		return printing.Document{}, err
	}
	return printing.NewPresenter(lang, s.loc).SaleDocument(sale, s.shop, docType), nil
}

func (s *Service) nextReceipt(ctx context.Context, localNow time.Time) (string, error) {
	seq, err := s.repo.NextReceiptSequence(ctx, localNow)
	if err != nil {
		return "", err
	}
	return domain.ReceiptNumber(localNow, seq), nil
}

// salesInWindow resolves local calendar dates to the half-open instant range
// [from 00:00, to+1 00:00) in the shop timezone.
func (s *Service) salesInWindow(ctx context.Context, q domain.AnalyticsQuery) ([]domain.Sale, error) {
	var from, to time.Time
	if raw := strings.TrimSpace(q.From); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, s.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: from %q", ErrInvalidRequest, raw)
		}
		from = parsed
	}
	if raw := strings.TrimSpace(q.To); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, s.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: to %q", ErrInvalidRequest, raw)
		}
		to = parsed.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidRequest)
	}
	return s.repo.ListSales(ctx, from, to)
}

// normalizeItems merges duplicate medicines, keeping first-appearance order.
func normalizeItems(items []domain.CartItem) ([]domain.CartItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrInvalidRequest)
	}
	index := make(map[string]int, len(items))
	normalized := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.MedicineID)
		if id == "" || item.Quantity < 1 {
			return nil, fmt.Errorf("%w: cart line needs a medicine and a positive quantity", ErrInvalidRequest)
		}
		if i, ok := index[id]; ok {
			normalized[i].Quantity += item.Quantity
			continue
		}
		index[id] = len(normalized)
		normalized = append(normalized, domain.CartItem{MedicineID: id, Quantity: item.Quantity})
	}
	return normalized, nil
}

func normalizeCustomer(customer *domain.Customer) *domain.Customer {
	if customer == nil {
		return nil
	}
	normalized := domain.Customer{
		Name:  strings.TrimSpace(customer.Name),
		Phone: strings.TrimSpace(customer.Phone),
	}
	if normalized.Name == "" && normalized.Phone == "" {
		return nil
	}
	return &normalized
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentUPI:
		return true
	default:
		return false
	}
}
