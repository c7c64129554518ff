// Package money holds the fixed-point arithmetic used for prices and GST.
// All amounts are tax-inclusive rupee values with two fractional digits.
package money

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const scale = 2

var hundred = decimal.NewFromInt(100)

// Round rounds x to two fractional digits, half away from zero.
func Round(x decimal.Decimal) decimal.Decimal {
	return x.Round(scale)
}

// Split is the per-unit tax breakdown of an inclusive price.
type Split struct {
	Taxable decimal.Decimal
	Tax     decimal.Decimal
	CGST    decimal.Decimal
	SGST    decimal.Decimal
}

// SplitInclusive recovers the taxable value and GST components from an
// inclusive unit price. Each component is rounded on its own, so
// Taxable+Tax may drift from price by a cent.
func SplitInclusive(price, gstRate decimal.Decimal) Split {
	if gstRate.LessThanOrEqual(decimal.Zero) {
		return Split{
			Taxable: Round(price),
			Tax:     decimal.Zero,
			CGST:    decimal.Zero,
			SGST:    decimal.Zero,
		}
	}

	divisor := decimal.NewFromInt(1).Add(gstRate.Div(hundred))
	taxable := price.DivRound(divisor, 16)
	tax := price.Sub(taxable)
	half := tax.Div(decimal.NewFromInt(2))

	return Split{
		Taxable: Round(taxable),
		Tax:     Round(tax),
		CGST:    Round(half),
		SGST:    Round(half),
	}
}

// Line is the frozen breakdown of one order line.
type Line struct {
	UnitPrice decimal.Decimal
	GSTRate   decimal.Decimal
	Quantity  int
	Taxable   decimal.Decimal
	Tax       decimal.Decimal
	CGST      decimal.Decimal
	SGST      decimal.Decimal
	Total     decimal.Decimal
}

// NewLine multiplies the rounded unit split by quantity. The multiplication
// happens after rounding, never before.
func NewLine(unitPrice, gstRate decimal.Decimal, quantity int) Line {
	unit := SplitInclusive(unitPrice, gstRate)
	qty := decimal.NewFromInt(int64(quantity))
	return Line{
		UnitPrice: Round(unitPrice),
		GSTRate:   gstRate,
		Quantity:  quantity,
		Taxable:   unit.Taxable.Mul(qty),
		Tax:       unit.Tax.Mul(qty),
		CGST:      unit.CGST.Mul(qty),
		SGST:      unit.SGST.Mul(qty),
		Total:     Round(unitPrice).Mul(qty),
	}
}

// Totals aggregates lines into order level amounts. IGST is carried for the
// schema but stays zero for intra-state orders.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	CGST     decimal.Decimal
	SGST     decimal.Decimal
	IGST     decimal.Decimal
	Total    decimal.Decimal
	Items    int
}

func Sum(lines []Line) Totals {
	t := Totals{
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
		CGST:     decimal.Zero,
		SGST:     decimal.Zero,
		IGST:     decimal.Zero,
		Total:    decimal.Zero,
	}
	for _, line := range lines {
		t.Subtotal = t.Subtotal.Add(line.Taxable)
		t.Tax = t.Tax.Add(line.Tax)
		t.CGST = t.CGST.Add(line.CGST)
		t.SGST = t.SGST.Add(line.SGST)
		t.Total = t.Total.Add(line.Total)
		t.Items += line.Quantity
	}
	t.Subtotal = Round(t.Subtotal)
	t.Tax = Round(t.Tax)
	t.CGST = Round(t.CGST)
	t.SGST = Round(t.SGST)
	t.Total = Round(t.Total)
	return t
}

// FingerprintEntry is one (product, quantity) pair of a cart.
type FingerprintEntry struct {
	ProductID string
	Quantity  int
}

// Fingerprint hashes the sorted "product_id:quantity" pairs of a cart, joined
// with "|". Order of entries does not matter.
func Fingerprint(entries []FingerprintEntry) string {
	sorted := make([]FingerprintEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID < sorted[j].ProductID
	})

	parts := make([]string, 0, len(sorted))
	for _, entry := range sorted {
		parts = append(parts, fmt.Sprintf("%s:%d", entry.ProductID, entry.Quantity))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
