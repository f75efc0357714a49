package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

var (
	ErrInvalidSale          = errors.New("invalid sale")
	ErrInvalidLineItem      = errors.New("invalid line item")
	ErrInvalidDiscount      = errors.New("invalid discount")
	ErrInvalidCustomer      = errors.New("invalid customer")
	ErrInvalidStockMovement = errors.New("invalid stock movement")
	ErrNegativeStock        = errors.New("stock would go negative")
)

var hundred = decimal.NewFromInt(100)

// NewLineItem builds a line item with total = price x quantity.
func NewLineItem(medicineID string, medicineName string, quantity int, price decimal.Decimal) (LineItem, error) {
	item := LineItem{
		MedicineID:   medicineID,
		MedicineName: medicineName,
		Quantity:     quantity,
		Price:        price,
		Total:        price.Mul(decimal.NewFromInt(int64(quantity))),
	}
	if err := item.Validate(); err != nil {
		return LineItem{}, err
	}
	return item, nil
}

// Validate enforces the positive-quantity convention: the return sign lives on
// the parent sale, never on the item.
func (i LineItem) Validate() error {
	if strings.TrimSpace(i.MedicineID) == "" {
		return fmt.Errorf("%w: medicine id is required", ErrInvalidLineItem)
	}
	if i.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be positive for %s", ErrInvalidLineItem, i.MedicineID)
	}
	if i.Price.IsNegative() {
		return fmt.Errorf("%w: negative price for %s", ErrInvalidLineItem, i.MedicineID)
	}
	expected := i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
	if !i.Total.Equal(expected) {
		return fmt.Errorf("%w: total %s does not match price x quantity %s for %s", ErrInvalidLineItem, i.Total, expected, i.MedicineID)
	}
	return nil
}

// ComputeDiscount returns the currency amount a discount policy subtracts from
// subtotal. Out-of-range inputs are rejected rather than clamped.
func ComputeDiscount(subtotal decimal.Decimal, discountType DiscountType, value decimal.Decimal) (decimal.Decimal, error) {
	if subtotal.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative subtotal", ErrInvalidDiscount)
	}
	switch discountType {
	case DiscountNone, "":
		if !value.IsZero() {
			return decimal.Zero, fmt.Errorf("%w: value must be 0 without a discount type", ErrInvalidDiscount)
		}
		return decimal.Zero, nil
	case DiscountPercentage:
		if value.IsNegative() || value.GreaterThan(hundred) {
			return decimal.Zero, fmt.Errorf("%w: percentage %s outside 0-100", ErrInvalidDiscount, value)
		}
		return subtotal.Mul(value).Div(hundred).Round(2), nil
	case DiscountFixed:
		if value.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: negative fixed discount", ErrInvalidDiscount)
		}
		if value.GreaterThan(subtotal) {
			return decimal.Zero, fmt.Errorf("%w: fixed discount %s exceeds subtotal %s", ErrInvalidDiscount, value, subtotal)
		}
		return value, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown type %q", ErrInvalidDiscount, discountType)
	}
}

type SaleParams struct {
	ID            string
	ReceiptNumber string
	Items         []LineItem
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	PaymentMethod string
	Customer      *Customer
	CashierID     string
	IsReturn      bool
	ReturnOf      string
	CreatedAt     time.Time
}

// NewSale derives subtotal, discount and total from the line items. A return
// carries the negated total.
func NewSale(p SaleParams) (Sale, error) {
	discountType := p.DiscountType
	if discountType == "" {
		discountType = DiscountNone
	}

	subtotal := decimal.Zero
	items := make([]LineItem, len(p.Items))
	copy(items, p.Items)
	for _, item := range items {
		subtotal = subtotal.Add(item.Total)
	}

	discount, err := ComputeDiscount(subtotal, discountType, p.DiscountValue)
	if err != nil {
		return Sale{}, err
	}

	total := subtotal.Sub(discount)
	if p.IsReturn {
		total = total.Neg()
	}

	sale := Sale{
		ID:             p.ID,
		ReceiptNumber:  p.ReceiptNumber,
		Items:          items,
		SubtotalAmount: subtotal,
		DiscountType:   discountType,
		DiscountValue:  p.DiscountValue,
		DiscountAmount: discount,
		TotalAmount:    total,
		PaymentMethod:  p.PaymentMethod,
		Customer:       p.Customer,
		CashierID:      p.CashierID,
		IsReturn:       p.IsReturn,
		ReturnOf:       p.ReturnOf,
		CreatedAt:      p.CreatedAt,
	}
	if err := sale.Validate(); err != nil {
		return Sale{}, err
	}
	return sale, nil
}

// Validate checks the structural contract of a sale. It does not look at the
// customer phone; see ValidateCustomer.
func (s Sale) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidSale)
	}
	if strings.TrimSpace(s.ReceiptNumber) == "" {
		return fmt.Errorf("%w: receipt number is required", ErrInvalidSale)
	}
	if len(s.Items) == 0 {
		return fmt.Errorf("%w: sale %s has no items", ErrInvalidSale, s.ID)
	}
	if strings.TrimSpace(s.PaymentMethod) == "" {
		return fmt.Errorf("%w: payment method is required", ErrInvalidSale)
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created at is required", ErrInvalidSale)
	}

	subtotal := decimal.Zero
	for _, item := range s.Items {
		if err := item.Validate(); err != nil {
			return err
		}
		if item.IsReturn && !s.IsReturn {
			return fmt.Errorf("%w: return line %s on a non-return sale", ErrInvalidSale, item.MedicineID)
		}
		subtotal = subtotal.Add(item.Total)
	}
	if !s.SubtotalAmount.Equal(subtotal) {
		return fmt.Errorf("%w: subtotal %s does not match items %s", ErrInvalidSale, s.SubtotalAmount, subtotal)
	}

	discount, err := ComputeDiscount(s.SubtotalAmount, s.DiscountType, s.DiscountValue)
	if err != nil {
		return err
	}
	if !s.DiscountAmount.Equal(discount) {
		return fmt.Errorf("%w: discount amount %s, expected %s", ErrInvalidDiscount, s.DiscountAmount, discount)
	}

	expected := s.SubtotalAmount.Sub(s.DiscountAmount)
	if s.IsReturn {
		expected = expected.Neg()
	}
	if !s.TotalAmount.Equal(expected) {
		return fmt.Errorf("%w: total %s, expected %s", ErrInvalidSale, s.TotalAmount, expected)
	}
	return nil
}

// ValidateCustomer checks a customer against a default phone region (ISO 3166
// alpha-2). A nil customer is a walk-in and always valid.
func ValidateCustomer(customer *Customer, region string) error {
	if customer == nil {
		return nil
	}
	if strings.TrimSpace(customer.Name) == "" && strings.TrimSpace(customer.Phone) == "" {
		return fmt.Errorf("%w: name or phone is required", ErrInvalidCustomer)
	}
	phone := strings.TrimSpace(customer.Phone)
	if phone == "" {
		return nil
	}
	parsed, err := libphonenumber.Parse(phone, region)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCustomer, err)
	}
	if !libphonenumber.IsValidNumber(parsed) {
		return fmt.Errorf("%w: phone number is not valid", ErrInvalidCustomer)
	}
	return nil
}

// ReceiptNumber formats the human-facing receipt label for the n-th sale of a
// business day, e.g. RCP-20240101-0001.
func ReceiptNumber(day time.Time, seq int) string {
	return fmt.Sprintf("RCP-%s-%04d", day.Format("20060102"), seq)
}

// ReturnDiscount carries the original sale's discount over to a return of
// returnSubtotal. A percentage is reused as-is; a fixed amount is prorated by
// the returned share of the original subtotal.
func ReturnDiscount(original Sale, returnSubtotal decimal.Decimal) (DiscountType, decimal.Decimal) {
	switch original.DiscountType {
	case DiscountPercentage:
		return DiscountPercentage, original.DiscountValue
	case DiscountFixed:
		if original.SubtotalAmount.IsZero() {
			return DiscountNone, decimal.Zero
		}
		share := original.DiscountAmount.Mul(returnSubtotal).Div(original.SubtotalAmount).Round(2)
		if share.IsZero() {
			return DiscountNone, decimal.Zero
		}
		if share.GreaterThan(returnSubtotal) {
			share = returnSubtotal
		}
		return DiscountFixed, share
	default:
		return DiscountNone, decimal.Zero
	}
}

// ParseReceiptNumber splits a receipt produced by ReceiptNumber into its
// YYYYMMDD day key and sequence.
func ParseReceiptNumber(receipt string) (string, int, bool) {
	parts := strings.Split(receipt, "-")
	if len(parts) != 3 || parts[0] != "RCP" || len(parts[1]) != 8 {
		return "", 0, false
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq < 1 {
		return "", 0, false
	}
	return parts[1], seq, true
}
