package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountNone       DiscountType = "none"
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Payment methods the checkout accepts. Reporting treats the method as an open
// label, so stored sales may carry values outside this list.
const (
	PaymentCash = "cash"
	PaymentCard = "card"
	PaymentUPI  = "upi"
)

type MovementType string

const (
	MovementAddition MovementType = "addition"
	MovementSale     MovementType = "sale"
)

type Medicine struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Active   bool            `json:"active"`
}

// MedicineStock is a catalog entry with its current on-hand level.
type MedicineStock struct {
	Medicine
	Stock int `json:"stock"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// LineItem freezes the unit price at the time of sale so historical reports
// do not move when catalog prices change.
type LineItem struct {
	MedicineID   string          `json:"medicineId"`
	MedicineName string          `json:"medicineName"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Total        decimal.Decimal `json:"total"`
	IsReturn     bool            `json:"isReturn,omitempty"`
}

type Sale struct {
	ID             string          `json:"id"`
	ReceiptNumber  string          `json:"receiptNumber"`
	Items          []LineItem      `json:"items"`
	SubtotalAmount decimal.Decimal `json:"subtotalAmount"`
	DiscountType   DiscountType    `json:"discountType"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	PaymentMethod  string          `json:"paymentMethod"`
	Customer       *Customer       `json:"customer,omitempty"`
	CashierID      string          `json:"cashierId"`
	IsReturn       bool            `json:"isReturn"`
	ReturnOf       string          `json:"returnOf,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ItemCount is the number of units on the sale, ignoring the return sign.
func (s Sale) ItemCount() int {
	count := 0
	for _, item := range s.Items {
		count += item.Quantity
	}
	return count
}

type StockMovement struct {
	ID             string       `json:"id"`
	MedicineID     string       `json:"medicineId"`
	MedicineName   string       `json:"medicineName"`
	MovementType   MovementType `json:"movementType"`
	QuantityChange int          `json:"quantityChange"`
	PreviousStock  int          `json:"previousStock"`
	NewStock       int          `json:"newStock"`
	SaleID         string       `json:"saleId,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

type MedicineSales struct {
	MedicineID   string          `json:"medicineId"`
	MedicineName string          `json:"medicineName"`
	Quantity     int             `json:"quantity"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type DailySales struct {
	Date  string          `json:"date"`
	Sales decimal.Decimal `json:"sales"`
}

type HourlySales struct {
	Hour  int             `json:"hour"`
	Sales decimal.Decimal `json:"sales"`
	Label string          `json:"label"`
}

type AnalyticsReport struct {
	TotalSales             decimal.Decimal            `json:"totalSales"`
	TotalTransactions      int                        `json:"totalTransactions"`
	TotalItemsSold         int                        `json:"totalItemsSold"`
	TopSellingMedicines    []MedicineSales            `json:"topSellingMedicines"`
	DailySales             []DailySales               `json:"dailySales"`
	PaymentMethodBreakdown map[string]decimal.Decimal `json:"paymentMethodBreakdown"`
	HourlySalesPattern     []HourlySales              `json:"hourlySalesPattern"`
}

type CartItem struct {
	MedicineID string `json:"medicineId" validate:"required"`
	Quantity   int    `json:"quantity" validate:"min=1"`
}

type CheckoutRequest struct {
	Items         []CartItem      `json:"items" validate:"required,min=1,dive"`
	DiscountType  DiscountType    `json:"discountType" validate:"omitempty,oneof=none percentage fixed"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	PaymentMethod string          `json:"paymentMethod" validate:"required,oneof=cash card upi"`
	Customer      *Customer       `json:"customer,omitempty"`
}

type ReturnRequest struct {
	OriginalSaleID string     `json:"originalSaleId" validate:"required"`
	Items          []CartItem `json:"items" validate:"required,min=1,dive"`
	Reason         string     `json:"reason" validate:"required"`
	ManagerPIN     string     `json:"managerPin,omitempty"`
	PaymentMethod  string     `json:"paymentMethod,omitempty" validate:"omitempty,oneof=cash card upi"`
}

type RestockRequest struct {
	Quantity int `json:"quantity" validate:"min=1"`
}

type AnalyticsQuery struct {
	From string
	To   string
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=32"`
	Password string `json:"password" validate:"required,min=6"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
