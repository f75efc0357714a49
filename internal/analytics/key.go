package analytics

import (
	"crypto/sha1"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"time"

	"pharmapos/backend/internal/domain"
)

const cacheKeyPrefix = "pos:analytics:"

// CacheKey fingerprints a sales window for report memoization. Sales are
// fingerprinted individually and sorted, so the key ignores input order.
// Every field is length-prefixed, so free-text names cannot collide.
func CacheKey(sales []domain.Sale, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	prints := make([]string, 0, len(sales))
	for _, sale := range sales {
		prints = append(prints, saleFingerprint(sale))
	}
	slices.Sort(prints)

	var b strings.Builder
	writeField(&b, loc.String())
	for _, fp := range prints {
		writeField(&b, fp)
	}

	hash := sha1.Sum([]byte(b.String()))
	return cacheKeyPrefix + hex.EncodeToString(hash[:])
}

func saleFingerprint(sale domain.Sale) string {
	var b strings.Builder
	writeField(&b, sale.ID)
	writeField(&b, strconv.FormatInt(sale.CreatedAt.UnixNano(), 10))
	writeField(&b, sale.TotalAmount.String())
	writeField(&b, sale.PaymentMethod)
	writeField(&b, strconv.FormatBool(sale.IsReturn))
	writeField(&b, strconv.Itoa(len(sale.Items)))
	for _, item := range sale.Items {
		writeField(&b, item.MedicineID)
		writeField(&b, item.MedicineName)
		writeField(&b, strconv.Itoa(item.Quantity))
		writeField(&b, item.Total.String())
		writeField(&b, strconv.FormatBool(item.IsReturn))
	}
	return b.String()
}

func writeField(b *strings.Builder, value string) {
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteByte(':')
	b.WriteString(value)
}
