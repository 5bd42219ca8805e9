package printer

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/rxstack/pharmgo/internal/models"
)

// LabelConfig holds configuration for shelf label PDF generation
type LabelConfig struct {
	Cols       int     `json:"cols"`
	Rows       int     `json:"rows"`
	MarginTop  float64 `json:"marginTop"`
	MarginLeft float64 `json:"marginLeft"`
	GapX       float64 `json:"gapX"`
	GapY       float64 `json:"gapY"`
}

// GenerateShelfLabelsPDF creates an A4 sheet of shelf labels, one per
// medicine, with the barcode encoded as a QR code so handheld scanners
// can resolve the item without network access.
func GenerateShelfLabelsPDF(cfg LabelConfig, meds []models.Medicine) ([]byte, error) {
	if cfg.Cols == 0 {
		cfg.Cols = 3
	}
	if cfg.Rows == 0 {
		cfg.Rows = 7
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 10)

	pageWidth, pageHeight := 210.0, 297.0

	totalGapX := float64(cfg.Cols-1) * cfg.GapX
	totalGapY := float64(cfg.Rows-1) * cfg.GapY

	availW := pageWidth - (cfg.MarginLeft * 2)
	availH := pageHeight - (cfg.MarginTop * 2)

	labelW := (availW - totalGapX) / float64(cfg.Cols)
	labelH := (availH - totalGapY) / float64(cfg.Rows)

	labelsPerPage := cfg.Cols * cfg.Rows

	for i, med := range meds {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		indexOnPage := i % labelsPerPage
		col := indexOnPage % cfg.Cols
		row := indexOnPage / cfg.Cols

		x := cfg.MarginLeft + float64(col)*(labelW+cfg.GapX)
		y := cfg.MarginTop + float64(row)*(labelH+cfg.GapY)

		qrContent := med.Barcode
		if qrContent == "" {
			qrContent = med.ID
		}

		qrPng, err := qrcode.Encode(qrContent, qrcode.Low, 256)
		if err != nil {
			return nil, err
		}

		imgName := fmt.Sprintf("qr_%d", i)
		imgOptions := gofpdf.ImageOptions{
			ImageType: "PNG",
			ReadDpi:   true,
		}

		reader := bytes.NewReader(qrPng)
		_ = pdf.RegisterImageOptionsReader(imgName, imgOptions, reader)

		// QR centered, taking up 60% of the label height to leave room for text
		qrSize := labelH * 0.6
		if qrSize > labelW {
			qrSize = labelW * 0.9
		}

		qrX := x + (labelW-qrSize)/2
		qrY := y + 2

		pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, imgOptions, 0, "")

		pdf.SetXY(x, y+labelH-10)
		pdf.SetFontSize(8)
		pdf.CellFormat(labelW, 4, truncate(med.Name, 28), "", 0, "C", false, 0, "")

		pdf.SetXY(x, y+labelH-6)
		pdf.SetFontSize(7)
		pdf.CellFormat(labelW, 4, fmt.Sprintf("%.2f  %s", med.SalePrice, med.RackLocation), "", 0, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GenerateReceiptPDF renders a thermal-style sale receipt (80mm roll width).
func GenerateReceiptPDF(sale *models.Sale, branchCode string) ([]byte, error) {
	// Height grows with line count; gofpdf needs it up front
	height := 60.0 + float64(len(sale.Items))*5.0
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "mm",
		Size:    gofpdf.SizeType{Wd: 80, Ht: height},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(72, 5, "PHARMACY RECEIPT", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(72, 4, fmt.Sprintf("Branch: %s", branchCode), "", 1, "C", false, 0, "")
	pdf.CellFormat(72, 4, fmt.Sprintf("Invoice: %s", sale.InvoiceNumber), "", 1, "C", false, 0, "")
	pdf.CellFormat(72, 4, sale.SoldAt.Format("2006-01-02 15:04"), "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 8)
	pdf.CellFormat(36, 4, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(10, 4, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(13, 4, "Price", "B", 0, "R", false, 0, "")
	pdf.CellFormat(13, 4, "Total", "B", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 8)
	for _, item := range sale.Items {
		name := item.MedicineID
		if item.Medicine != nil {
			name = item.Medicine.Name
		}
		pdf.CellFormat(36, 4, truncate(name, 22), "", 0, "L", false, 0, "")
		pdf.CellFormat(10, 4, fmt.Sprintf("%d", item.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(13, 4, fmt.Sprintf("%.2f", item.UnitPrice), "", 0, "R", false, 0, "")
		pdf.CellFormat(13, 4, fmt.Sprintf("%.2f", item.LineTotal), "", 1, "R", false, 0, "")
	}

	pdf.Ln(1)
	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(59, 4, "Subtotal", "T", 0, "R", false, 0, "")
	pdf.CellFormat(13, 4, fmt.Sprintf("%.2f", sale.Subtotal), "T", 1, "R", false, 0, "")
	if sale.Discount > 0 {
		pdf.CellFormat(59, 4, "Discount", "", 0, "R", false, 0, "")
		pdf.CellFormat(13, 4, fmt.Sprintf("-%.2f", sale.Discount), "", 1, "R", false, 0, "")
	}
	if sale.Tax > 0 {
		pdf.CellFormat(59, 4, "Tax", "", 0, "R", false, 0, "")
		pdf.CellFormat(13, 4, fmt.Sprintf("%.2f", sale.Tax), "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(59, 5, "TOTAL", "", 0, "R", false, 0, "")
	pdf.CellFormat(13, 5, fmt.Sprintf("%.2f", sale.Total), "", 1, "R", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Arial", "", 7)
	pdf.CellFormat(72, 4, "Thank you for your purchase", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "."
}
