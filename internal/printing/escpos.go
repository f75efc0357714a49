package printing

import (
	"context"
	"fmt"
	"strings"
)

var (
	escposInit = []byte{0x1b, 0x40}
	escposCut  = []byte{0x1d, 0x56, 0x41, 0x10}
)

// ESCPOSRenderer renders a document as plain ESC/POS text for thermal
// receipt printers.
type ESCPOSRenderer struct{}

func (ESCPOSRenderer) Render(_ context.Context, doc Document, _ PrintConfig) ([]byte, error) {
	payload := append([]byte{}, escposInit...)
	for _, line := range PreviewLines(doc) {
		payload = append(payload, line...)
		payload = append(payload, '\n')
	}
	return append(payload, escposCut...), nil
}

// PreviewLines is the text layout shared by the ESC/POS renderer and on-screen
// previews.
func PreviewLines(doc Document) []string {
	lines := []string{
		doc.Shop.Name,
		"========================",
		doc.Title,
		"No: " + doc.ReceiptNumber,
		"Date: " + doc.IssuedAt,
	}
	if doc.ReturnOf != "" {
		lines = append(lines, "Return of: "+doc.ReturnOf)
	}
	if doc.Customer != nil {
		lines = append(lines, strings.TrimSpace("Customer: "+doc.Customer.Name+" "+doc.Customer.Phone))
	}
	lines = append(lines, "------------------------")
	for _, line := range doc.Lines {
		lines = append(lines, fmt.Sprintf("%s x%d", line.Name, line.Quantity))
		lines = append(lines, "  "+line.Amount)
	}
	lines = append(lines,
		"------------------------",
		"Subtotal : "+doc.Subtotal,
		"Discount : "+doc.Discount,
		"Total    : "+doc.Total,
		"Payment  : "+doc.PaymentMethod,
		"========================",
	)
	if doc.Shop.GSTNumber != "" {
		lines = append(lines, "GSTIN: "+doc.Shop.GSTNumber)
	}
	return append(lines, "Thank you", "")
}
