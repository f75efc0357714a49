package fixture

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

var ErrInvalidOptions = errors.New("invalid fixture options")

const (
	maxItemsPerSale = 4
	maxQuantity     = 5

	discountChance  = 0.20
	percentageShare = 0.70
	fixedMin        = 10
	fixedMax        = 50

	openHour  = 9
	closeHour = 21
)

var (
	paymentMethods = []string{domain.PaymentCash, domain.PaymentCard, domain.PaymentUPI}
	percentages    = []int64{5, 10, 15}
	customerNames  = []string{"Aarav Sharma", "Diya Patel", "Kabir Singh", "Meera Iyer", "Rohan Gupta", "Sneha Reddy", "Vikram Nair", "Ananya Das"}
)

type Options struct {
	Seed             uint64
	Start            time.Time
	Days             int
	MinSalesPerDay   int
	MaxSalesPerDay   int
	Location         *time.Location
	Catalog          []domain.Medicine
	CashierIDs       []string
	InitialStock     int
	RestockThreshold int
	RestockQuantity  int
	ReturnRate       float64
	CustomerRate     float64
}

func DefaultOptions() Options {
	return Options{
		Seed:             1,
		Start:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:             30,
		MinSalesPerDay:   8,
		MaxSalesPerDay:   25,
		Location:         time.UTC,
		Catalog:          DefaultCatalog(),
		CashierIDs:       []string{"cashier"},
		InitialStock:     200,
		RestockThreshold: 20,
		RestockQuantity:  150,
		ReturnRate:       0.03,
		CustomerRate:     0.30,
	}
}

// Corpus is a generated trading history. Stock holds the per-medicine level
// after the last movement.
type Corpus struct {
	Catalog   []domain.Medicine      `json:"catalog"`
	Sales     []domain.Sale          `json:"sales"`
	Movements []domain.StockMovement `json:"movements"`
	Stock     map[string]int         `json:"stock"`
}

type Generator struct {
	opts Options
}

// New fills zero-valued sizing fields (dates, counts, catalog, stock levels)
// from DefaultOptions. Seed and the rates are taken as given.
func New(opts Options) *Generator {
	def := DefaultOptions()
	if opts.Start.IsZero() {
		opts.Start = def.Start
	}
	if opts.Days == 0 {
		opts.Days = def.Days
	}
	if opts.MinSalesPerDay == 0 && opts.MaxSalesPerDay == 0 {
		opts.MinSalesPerDay = def.MinSalesPerDay
		opts.MaxSalesPerDay = def.MaxSalesPerDay
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if len(opts.Catalog) == 0 {
		opts.Catalog = def.Catalog
	}
	if len(opts.CashierIDs) == 0 {
		opts.CashierIDs = def.CashierIDs
	}
	if opts.InitialStock == 0 {
		opts.InitialStock = def.InitialStock
	}
	if opts.RestockThreshold == 0 {
		opts.RestockThreshold = def.RestockThreshold
	}
	if opts.RestockQuantity == 0 {
		opts.RestockQuantity = def.RestockQuantity
	}
	return &Generator{opts: opts}
}

func (g *Generator) Options() Options {
	return g.opts
}

func (o Options) validate() error {
	switch {
	case o.Days < 1:
		return fmt.Errorf("%w: days must be positive", ErrInvalidOptions)
	case o.MinSalesPerDay < 0 || o.MaxSalesPerDay < o.MinSalesPerDay:
		return fmt.Errorf("%w: sales per day range %d-%d", ErrInvalidOptions, o.MinSalesPerDay, o.MaxSalesPerDay)
	case o.InitialStock < 0 || o.RestockThreshold < 0 || o.RestockQuantity < 1:
		return fmt.Errorf("%w: stock levels", ErrInvalidOptions)
	case o.ReturnRate < 0 || o.ReturnRate > 1 || o.CustomerRate < 0 || o.CustomerRate > 1:
		return fmt.Errorf("%w: rates must be within 0-1", ErrInvalidOptions)
	}
	return nil
}

// Generate builds the corpus. Every call restarts from the seed, so repeated
// calls return identical data.
func (g *Generator) Generate() (Corpus, error) {
	if err := g.opts.validate(); err != nil {
		return Corpus{}, err
	}

	r := &run{
		opts:     g.opts,
		rng:      rand.New(rand.NewPCG(g.opts.Seed, g.opts.Seed^0x9e3779b97f4a7c15)),
		stock:    make(map[string]int, len(g.opts.Catalog)),
		returned: make(map[string]map[string]int),
	}
	r.corpus.Catalog = slices.Clone(g.opts.Catalog)

	y, m, d := g.opts.Start.In(g.opts.Location).Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, g.opts.Location)

	if g.opts.InitialStock > 0 {
		at := first.Add((openHour - 1) * time.Hour)
		for _, med := range g.opts.Catalog {
			if err := r.move(med.ID, med.Name, domain.MovementAddition, g.opts.InitialStock, at, ""); err != nil {
				return Corpus{}, err
			}
		}
	}

	for day := 0; day < g.opts.Days; day++ {
		date := first.AddDate(0, 0, day)
		if err := r.day(date); err != nil {
			return Corpus{}, err
		}
	}

	r.corpus.Stock = maps.Clone(r.stock)
	return r.corpus, nil
}

type run struct {
	opts        Options
	rng         *rand.Rand
	stock       map[string]int
	returned    map[string]map[string]int
	corpus      Corpus
	saleSeq     int
	movementSeq int
}

func (r *run) day(date time.Time) error {
	count := r.opts.MinSalesPerDay
	if spread := r.opts.MaxSalesPerDay - r.opts.MinSalesPerDay; spread > 0 {
		count += r.rng.IntN(spread + 1)
	}

	open := time.Date(date.Year(), date.Month(), date.Day(), openHour, 0, 0, 0, r.opts.Location)
	window := int64((closeHour - openHour) * 3600)
	offsets := make([]int64, count)
	for i := range offsets {
		offsets[i] = r.rng.Int64N(window)
	}
	slices.Sort(offsets)

	receipt := 0
	for _, offset := range offsets {
		at := open.Add(time.Duration(offset) * time.Second)
		added, err := r.next(at, date, receipt+1)
		if err != nil {
			return err
		}
		if added {
			receipt++
		}
	}
	return nil
}

func (r *run) next(at time.Time, date time.Time, receipt int) (bool, error) {
	if len(r.corpus.Sales) > 0 && r.rng.Float64() < r.opts.ReturnRate {
		added, err := r.returnSale(at, date, receipt)
		if err != nil || added {
			return added, err
		}
	}
	return r.sale(at, date, receipt)
}

func (r *run) sale(at time.Time, date time.Time, receipt int) (bool, error) {
	catalog := r.opts.Catalog
	count := min(1+r.rng.IntN(maxItemsPerSale), len(catalog))
	picks := r.rng.Perm(len(catalog))[:count]

	items := make([]domain.LineItem, 0, count)
	subtotal := decimal.Zero
	for _, idx := range picks {
		med := catalog[idx]
		qty := 1 + r.rng.IntN(maxQuantity)
		if r.stock[med.ID] < qty {
			continue
		}
		item, err := domain.NewLineItem(med.ID, med.Name, qty, med.Price)
		if err != nil {
			return false, err
		}
		items = append(items, item)
		subtotal = subtotal.Add(item.Total)
	}
	if len(items) == 0 {
		return false, nil
	}

	discountType, discountValue := r.discount(subtotal)
	sale, err := domain.NewSale(domain.SaleParams{
		ID:            r.nextSaleID(),
		ReceiptNumber: domain.ReceiptNumber(date, receipt),
		Items:         items,
		DiscountType:  discountType,
		DiscountValue: discountValue,
		PaymentMethod: paymentMethods[r.rng.IntN(len(paymentMethods))],
		Customer:      r.customer(),
		CashierID:     r.cashier(),
		CreatedAt:     at,
	})
	if err != nil {
		return false, err
	}
	r.corpus.Sales = append(r.corpus.Sales, sale)

	for _, item := range sale.Items {
		if err := r.move(item.MedicineID, item.MedicineName, domain.MovementSale, -item.Quantity, at, sale.ID); err != nil {
			return false, err
		}
		if r.stock[item.MedicineID] < r.opts.RestockThreshold {
			if err := r.move(item.MedicineID, item.MedicineName, domain.MovementAddition, r.opts.RestockQuantity, at, ""); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

// returnSale takes back part of one line of an earlier sale. It reports false
// when the drawn line has nothing left to return.
func (r *run) returnSale(at time.Time, date time.Time, receipt int) (bool, error) {
	original := r.corpus.Sales[r.rng.IntN(len(r.corpus.Sales))]
	if original.IsReturn {
		return false, nil
	}
	line := original.Items[r.rng.IntN(len(original.Items))]
	remaining := line.Quantity - r.returned[original.ID][line.MedicineID]
	if remaining < 1 {
		return false, nil
	}
	qty := 1 + r.rng.IntN(remaining)

	item, err := domain.NewLineItem(line.MedicineID, line.MedicineName, qty, line.Price)
	if err != nil {
		return false, err
	}
	item.IsReturn = true

	discountType, discountValue := domain.ReturnDiscount(original, item.Total)
	sale, err := domain.NewSale(domain.SaleParams{
		ID:            r.nextSaleID(),
		ReceiptNumber: domain.ReceiptNumber(date, receipt),
		Items:         []domain.LineItem{item},
		DiscountType:  discountType,
		DiscountValue: discountValue,
		PaymentMethod: original.PaymentMethod,
		Customer:      original.Customer,
		CashierID:     r.cashier(),
		IsReturn:      true,
		ReturnOf:      original.ID,
		CreatedAt:     at,
	})
	if err != nil {
		return false, err
	}
	r.corpus.Sales = append(r.corpus.Sales, sale)

	if r.returned[original.ID] == nil {
		r.returned[original.ID] = make(map[string]int)
	}
	r.returned[original.ID][line.MedicineID] += qty

	if err := r.move(item.MedicineID, item.MedicineName, domain.MovementSale, qty, at, sale.ID); err != nil {
		return false, err
	}
	return true, nil
}

func (r *run) discount(subtotal decimal.Decimal) (domain.DiscountType, decimal.Decimal) {
	if r.rng.Float64() >= discountChance {
		return domain.DiscountNone, decimal.Zero
	}
	if r.rng.Float64() < percentageShare {
		return domain.DiscountPercentage, decimal.NewFromInt(percentages[r.rng.IntN(len(percentages))])
	}
	value := decimal.NewFromInt(int64(fixedMin + r.rng.IntN(fixedMax-fixedMin+1)))
	if value.GreaterThan(subtotal) {
		value = subtotal
	}
	return domain.DiscountFixed, value
}

func (r *run) customer() *domain.Customer {
	if r.rng.Float64() >= r.opts.CustomerRate {
		return nil
	}
	return &domain.Customer{
		Name:  customerNames[r.rng.IntN(len(customerNames))],
		Phone: fmt.Sprintf("+91 98%08d", r.rng.IntN(100_000_000)),
	}
}

func (r *run) cashier() string {
	return r.opts.CashierIDs[r.rng.IntN(len(r.opts.CashierIDs))]
}

func (r *run) nextSaleID() string {
	r.saleSeq++
	return fmt.Sprintf("sale-%06d", r.saleSeq)
}

func (r *run) move(medicineID string, medicineName string, kind domain.MovementType, change int, at time.Time, saleID string) error {
	movement, err := domain.NewStockMovement(medicineID, medicineName, kind, r.stock[medicineID], change, at)
	if err != nil {
		return err
	}
	r.movementSeq++
	movement.ID = fmt.Sprintf("mov-%06d", r.movementSeq)
	movement.SaleID = saleID
	r.stock[medicineID] = movement.NewStock
	r.corpus.Movements = append(r.corpus.Movements, movement)
	return nil
}
