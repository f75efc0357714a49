package printing

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"pharmapos/backend/internal/domain"
)

const (
	titleInvoice       = "Tax Invoice"
	titleReceipt       = "Sales Receipt"
	titleCreditNote    = "Credit Note"
	titleReturnReceipt = "Return Receipt"
)

var supportedLanguages = []language.Tag{
	language.English,
	language.MustParse("en-IN"),
	language.Hindi,
	language.Indonesian,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

func init() {
	for _, entry := range []struct {
		tag   language.Tag
		key   string
		value string
	}{
		{language.Hindi, titleInvoice, "कर बीजक"},
		{language.Hindi, titleReceipt, "बिक्री रसीद"},
		{language.Hindi, titleCreditNote, "क्रेडिट नोट"},
		{language.Hindi, titleReturnReceipt, "वापसी रसीद"},
		{language.Indonesian, titleInvoice, "Faktur Pajak"},
		{language.Indonesian, titleReceipt, "Struk Penjualan"},
		{language.Indonesian, titleCreditNote, "Nota Kredit"},
		{language.Indonesian, titleReturnReceipt, "Struk Retur"},
	} {
		if err := message.SetString(entry.tag, entry.key, entry.value); err != nil {
			panic(err)
		}
	}
}

// Presenter turns sales into localized documents.
type Presenter struct {
	tag     language.Tag
	printer *message.Printer
	loc     *time.Location
}

// NewPresenter picks the closest supported language for lang (a BCP 47 tag or
// an Accept-Language value). Unknown or empty input falls back to English.
func NewPresenter(lang string, loc *time.Location) *Presenter {
	if loc == nil {
		loc = time.UTC
	}
	_, index := language.MatchStrings(languageMatcher, lang)
	tag := supportedLanguages[index]
	return &Presenter{
		tag:     tag,
		printer: message.NewPrinter(tag),
		loc:     loc,
	}
}

func (p *Presenter) Language() language.Tag {
	return p.tag
}

// Amount formats d with two fraction digits and locale grouping.
func (p *Presenter) Amount(d decimal.Decimal) string {
	return p.printer.Sprintf("%v", number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

func (p *Presenter) SaleDocument(sale domain.Sale, shop ShopInfo, docType DocumentType) Document {
	sign := decimal.NewFromInt(1)
	qtySign := 1
	if sale.IsReturn {
		sign = decimal.NewFromInt(-1)
		qtySign = -1
	}

	lines := make([]DocumentLine, 0, len(sale.Items))
	for _, item := range sale.Items {
		lines = append(lines, DocumentLine{
			Name:     item.MedicineName,
			Quantity: item.Quantity * qtySign,
			Price:    p.Amount(item.Price),
			Amount:   p.Amount(item.Total.Mul(sign)),
		})
	}

	return Document{
		Type:          docType,
		Title:         p.title(docType, sale.IsReturn),
		Shop:          shop,
		SaleID:        sale.ID,
		ReceiptNumber: sale.ReceiptNumber,
		ReturnOf:      sale.ReturnOf,
		IssuedAt:      sale.CreatedAt.In(p.loc).Format("2006-01-02 15:04"),
		Cashier:       sale.CashierID,
		PaymentMethod: sale.PaymentMethod,
		Customer:      sale.Customer,
		Lines:         lines,
		Subtotal:      p.Amount(sale.SubtotalAmount.Mul(sign)),
		Discount:      p.Amount(sale.DiscountAmount.Mul(sign)),
		Total:         p.Amount(sale.TotalAmount),
		IsReturn:      sale.IsReturn,
	}
}

func (p *Presenter) title(docType DocumentType, isReturn bool) string {
	switch {
	case docType == DocumentInvoice && isReturn:
		return p.printer.Sprintf(titleCreditNote)
	case docType == DocumentInvoice:
		return p.printer.Sprintf(titleInvoice)
	case isReturn:
		return p.printer.Sprintf(titleReturnReceipt)
	default:
		return p.printer.Sprintf(titleReceipt)
	}
}
