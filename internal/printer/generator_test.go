package printer

import (
	"bytes"
	"testing"
	"time"

	"github.com/rxstack/pharmgo/internal/models"
)

func TestGenerateShelfLabelsPDF(t *testing.T) {
	meds := []models.Medicine{
		{ID: "med-1", Name: "Aspirin 500mg", Barcode: "8901234", SalePrice: 2.5, RackLocation: "A3"},
		{ID: "med-2", Name: "A medicine with a very long name that must be truncated", SalePrice: 10},
	}

	pdf, err := GenerateShelfLabelsPDF(LabelConfig{}, meds)
	if err != nil {
		t.Fatalf("GenerateShelfLabelsPDF failed: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Error("Expected PDF magic bytes")
	}
}

func TestGenerateReceiptPDF(t *testing.T) {
	med := &models.Medicine{ID: "med-1", Name: "Paracetamol"}
	sale := &models.Sale{
		ID:            "sale-1",
		InvoiceNumber: "INV-BR-001-1",
		Subtotal:      6.0,
		Tax:           0.6,
		Discount:      1.0,
		Total:         5.6,
		SoldAt:        time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC),
		Items: []models.SaleItem{
			{MedicineID: "med-1", Medicine: med, Quantity: 2, UnitPrice: 3.0, LineTotal: 6.0},
		},
	}

	pdf, err := GenerateReceiptPDF(sale, "BR-001")
	if err != nil {
		t.Fatalf("GenerateReceiptPDF failed: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Error("Expected PDF magic bytes")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected unchanged string, got %q", got)
	}
	if got := truncate("0123456789", 5); got != "0123." {
		t.Errorf("Expected truncation with marker, got %q", got)
	}
	if len(truncate("0123456789", 5)) != 5 {
		t.Error("Expected truncated length to honor the limit")
	}
}
