package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"pharmapos/backend/internal/domain"
)

const (
	sheetSummary   = "Summary"
	sheetTop       = "Top Medicines"
	sheetDaily     = "Daily"
	sheetHourly    = "Hourly"
	sheetPayments  = "Payments"
	amountNumFmtID = 2 // 0.00
)

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// CSV flattens a report into section,key,value rows.
func CSV(report domain.AnalyticsReport) ([]byte, error) {
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "total_sales", amount(report.TotalSales)},
		{"summary", "total_transactions", strconv.Itoa(report.TotalTransactions)},
		{"summary", "total_items_sold", strconv.Itoa(report.TotalItemsSold)},
	}
	for _, m := range report.TopSellingMedicines {
		rows = append(rows,
			[]string{"top_medicine", m.MedicineID + "_name", m.MedicineName},
			[]string{"top_medicine", m.MedicineID + "_quantity", strconv.Itoa(m.Quantity)},
			[]string{"top_medicine", m.MedicineID + "_revenue", amount(m.Revenue)},
		)
	}
	for _, d := range report.DailySales {
		rows = append(rows, []string{"daily", d.Date, amount(d.Sales)})
	}
	for _, h := range report.HourlySalesPattern {
		rows = append(rows, []string{"hourly", h.Label, amount(h.Sales)})
	}
	for _, method := range slices.Sorted(maps.Keys(report.PaymentMethodBreakdown)) {
		rows = append(rows, []string{"payment", method, amount(report.PaymentMethodBreakdown[method])})
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// XLSX renders a report as a workbook with one sheet per report section.
func XLSX(report domain.AnalyticsReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetTop, sheetDaily, sheetHourly, sheetPayments} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	style, err := f.NewStyle(&excelize.Style{NumFmt: amountNumFmtID})
	if err != nil {
		return nil, err
	}

	summary := [][]any{
		{"Metric", "Value"},
		{"Total sales", money(report.TotalSales)},
		{"Total transactions", report.TotalTransactions},
		{"Total items sold", report.TotalItemsSold},
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return nil, err
	}

	top := [][]any{{"Rank", "Medicine ID", "Medicine", "Quantity", "Revenue"}}
	for i, m := range report.TopSellingMedicines {
		top = append(top, []any{i + 1, m.MedicineID, m.MedicineName, m.Quantity, money(m.Revenue)})
	}
	if err := writeRows(f, sheetTop, top); err != nil {
		return nil, err
	}

	daily := [][]any{{"Date", "Sales"}}
	for _, d := range report.DailySales {
		daily = append(daily, []any{d.Date, money(d.Sales)})
	}
	if err := writeRows(f, sheetDaily, daily); err != nil {
		return nil, err
	}

	hourly := [][]any{{"Hour", "Sales"}}
	for _, h := range report.HourlySalesPattern {
		hourly = append(hourly, []any{h.Label, money(h.Sales)})
	}
	if err := writeRows(f, sheetHourly, hourly); err != nil {
		return nil, err
	}

	payments := [][]any{{"Payment method", "Sales"}}
	for _, method := range slices.Sorted(maps.Keys(report.PaymentMethodBreakdown)) {
		payments = append(payments, []any{method, money(report.PaymentMethodBreakdown[method])})
	}
	if err := writeRows(f, sheetPayments, payments); err != nil {
		return nil, err
	}

	for sheet, col := range map[string]string{
		sheetSummary:  "B",
		sheetTop:      "E",
		sheetDaily:    "B",
		sheetHourly:   "B",
		sheetPayments: "B",
	} {
		if err := f.SetColStyle(sheet, col, style); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
