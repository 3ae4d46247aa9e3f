package pricing

import "testing"

func TestDiscountedPrice(t *testing.T) {
	if got := DiscountedPrice(1000, 10); got != 900 {
		t.Errorf("Expected 900, got %v", got)
	}
	if got := DiscountedPrice(999, 15); got != 849.15 {
		t.Errorf("Expected 849.15, got %v", got)
	}
	if got := DiscountedPrice(500, 0); got != 500 {
		t.Errorf("Expected 500, got %v", got)
	}
	if got := DiscountedPrice(300, 100); got != 0 {
		t.Errorf("Expected 0, got %v", got)
	}
}

func TestSnapshotPrice(t *testing.T) {
	if got := SnapshotPrice(999, 15); got != 849 {
		t.Errorf("Expected 849, got %d", got)
	}
	if got := SnapshotPrice(1000, 10); got != 900 {
		t.Errorf("Expected 900, got %d", got)
	}
}

func TestTotal_WholeLines(t *testing.T) {
	lines := []Line{
		{UnitPrice: 1000, Discount: 10, Quantity: 3},
	}
	if got := Total(lines); got != 2700 {
		t.Errorf("Expected 2700, got %d", got)
	}
}

func TestTotal_CheckoutScenario(t *testing.T) {
	// 500 x2 at no discount plus 300 x1 at 50% off
	lines := []Line{
		{UnitPrice: 500, Discount: 0, Quantity: 2},
		{UnitPrice: 300, Discount: 50, Quantity: 1},
	}
	if got := Total(lines); got != 1150 {
		t.Errorf("Expected 1150, got %d", got)
	}
}

func TestTotal_RoundsOnceAfterSumming(t *testing.T) {
	// Each line is 299.70; rounding per line would give 300+300=600.
	lines := []Line{
		{UnitPrice: 333, Discount: 10, Quantity: 1},
		{UnitPrice: 333, Discount: 10, Quantity: 1},
	}
	if got := Total(lines); got != 599 {
		t.Errorf("Expected 599 (rounded after summation), got %d", got)
	}
}

func TestTotal_FractionalDiscount(t *testing.T) {
	// 849.15 x 2 = 1698.30, rounded once
	lines := []Line{
		{UnitPrice: 999, Discount: 15, Quantity: 2},
	}
	if got := Total(lines); got != 1698 {
		t.Errorf("Expected 1698, got %d", got)
	}
}

func TestTotal_Empty(t *testing.T) {
	if got := Total(nil); got != 0 {
		t.Errorf("Expected 0, got %d", got)
	}
}
