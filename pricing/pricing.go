// Package pricing derives discounted line prices and order totals from
// catalog data. All functions are pure; input validation is the catalog's job.
package pricing

import "math"

// Line is one cart line priced against the live catalog.
type Line struct {
	UnitPrice float64
	Discount  float64
	Quantity  int
}

// DiscountedPrice returns the unit price after applying the percentage
// discount, unrounded.
func DiscountedPrice(price, discount float64) float64 {
	return price - price*discount/100
}

// SnapshotPrice is the per-line price frozen into an order item.
func SnapshotPrice(price, discount float64) int64 {
	return int64(math.Round(DiscountedPrice(price, discount)))
}

// Total sums the unrounded discounted line amounts and rounds once at the
// end. Rounding per line would compound error across lines.
func Total(lines []Line) int64 {
	var sum float64
	for _, l := range lines {
		sum += DiscountedPrice(l.UnitPrice, l.Discount) * float64(l.Quantity)
	}
	return int64(math.Round(sum))
}
