package printing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pharmapos/backend/internal/domain"
)

var (
	ErrInvalidConfig   = errors.New("invalid print config")
	ErrUnknownDocument = errors.New("unknown document type")
)

type DocumentType string

const (
	DocumentInvoice DocumentType = "invoice"
	DocumentReceipt DocumentType = "receipt"
)

// ParseDocumentType accepts invoice or receipt, case-insensitively. An empty
// value means receipt.
func ParseDocumentType(raw string) (DocumentType, error) {
	switch DocumentType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DocumentReceipt:
		return DocumentReceipt, nil
	case DocumentInvoice:
		return DocumentInvoice, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDocument, raw)
	}
}

type ShopInfo struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	LicenseNumber string `json:"licenseNumber"`
	GSTNumber     string `json:"gstNumber"`
}

type PaperSize string

const (
	PaperA4      PaperSize = "A4"
	PaperA5      PaperSize = "A5"
	PaperLetter  PaperSize = "Letter"
	PaperLegal   PaperSize = "Legal"
	PaperReceipt PaperSize = "Receipt"
)

type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

type Margins string

const (
	MarginsNarrow  Margins = "narrow"
	MarginsDefault Margins = "default"
	MarginsWide    Margins = "wide"
)

type PrintConfig struct {
	DefaultPrinter string      `json:"defaultPrinter"`
	PaperSize      PaperSize   `json:"paperSize"`
	Orientation    Orientation `json:"orientation"`
	Margins        Margins     `json:"margins"`
	AutoPrint      bool        `json:"autoPrint"`
	PrintPreview   bool        `json:"printPreview"`
}

func DefaultPrintConfig() PrintConfig {
	return PrintConfig{
		PaperSize:    PaperA4,
		Orientation:  OrientationPortrait,
		Margins:      MarginsDefault,
		PrintPreview: true,
	}
}

func (c PrintConfig) Validate() error {
	switch c.PaperSize {
	case PaperA4, PaperA5, PaperLetter, PaperLegal, PaperReceipt:
	default:
		return fmt.Errorf("%w: paper size %q", ErrInvalidConfig, c.PaperSize)
	}
	switch c.Orientation {
	case OrientationPortrait, OrientationLandscape:
	default:
		return fmt.Errorf("%w: orientation %q", ErrInvalidConfig, c.Orientation)
	}
	switch c.Margins {
	case MarginsNarrow, MarginsDefault, MarginsWide:
	default:
		return fmt.Errorf("%w: margins %q", ErrInvalidConfig, c.Margins)
	}
	return nil
}

type Outcome string

const (
	OutcomePrinted   Outcome = "printed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Document is the display-ready form of a sale. Amounts are already
// localized; a return carries negative quantities and amounts.
type Document struct {
	Type          DocumentType     `json:"type"`
	Title         string           `json:"title"`
	Shop          ShopInfo         `json:"shop"`
	SaleID        string           `json:"saleId"`
	ReceiptNumber string           `json:"receiptNumber"`
	ReturnOf      string           `json:"returnOf,omitempty"`
	IssuedAt      string           `json:"issuedAt"`
	Cashier       string           `json:"cashier"`
	PaymentMethod string           `json:"paymentMethod"`
	Customer      *domain.Customer `json:"customer,omitempty"`
	Lines         []DocumentLine   `json:"lines"`
	Subtotal      string           `json:"subtotal"`
	Discount      string           `json:"discount"`
	Total         string           `json:"total"`
	IsReturn      bool             `json:"isReturn"`
}

type DocumentLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
	Amount   string `json:"amount"`
}

// Renderer turns a document into a printer payload (PDF, ESC/POS, HTML...).
type Renderer interface {
	Render(ctx context.Context, doc Document, cfg PrintConfig) ([]byte, error)
}

// Dispatcher hands a rendered payload to a platform print queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload []byte, cfg PrintConfig) (Outcome, error)
}

// Print renders doc and dispatches it. Render errors are reported as
// OutcomeFailed without reaching the dispatcher.
func Print(ctx context.Context, renderer Renderer, dispatcher Dispatcher, doc Document, cfg PrintConfig) (Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return OutcomeFailed, err
	}
	payload, err := renderer.Render(ctx, doc, cfg)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("render %s: %w", doc.Type, err)
	}
	outcome, err := dispatcher.Dispatch(ctx, payload, cfg)
	if err != nil {
		return OutcomeFailed, err
	}
	return outcome, nil
}
