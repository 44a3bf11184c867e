package enums

import "testing"

func TestParseWarrantyStatus(t *testing.T) {
	for _, status := range validWarrantyStatuses {
		got, err := ParseWarrantyStatus(status.String())
		if err != nil {
			t.Fatalf("parse %q: %v", status, err)
		}
		if got != status || !got.IsValid() {
			t.Fatalf("expected %q, got %q", status, got)
		}
	}
	if _, err := ParseWarrantyStatus("refunded"); err == nil {
		t.Fatalf("expected error for unknown warranty status")
	}
	if WarrantyStatus("").IsValid() {
		t.Fatalf("empty status must not be valid")
	}
}

func TestParseStockStatus(t *testing.T) {
	got, err := ParseStockStatus("in_stock")
	if err != nil || got != StockStatusInStock {
		t.Fatalf("expected in_stock, got %q (%v)", got, err)
	}
	if _, err := ParseStockStatus("IN_STOCK"); err == nil {
		t.Fatalf("parsing must be case sensitive")
	}
}
