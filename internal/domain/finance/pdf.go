package finance

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

func newReportPDF(title, currency string, generated time.Time) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, title)
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s. Amounts in %s.",
		generated.Format("02 Jan 2006 15:04"), currency))
	pdf.Ln(10)
	return pdf
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// truncate shortens s to at most max runes, marking the cut with an
// ellipsis. Patient-entered text can hold multi-byte characters, so byte
// slicing is not safe here.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func renderRevenuePDF(trend *Trend, currency string, generated time.Time) ([]byte, error) {
	pdf := newReportPDF(fmt.Sprintf("Revenue Report - Last %d Days", trend.Days), currency, generated)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(50, 7, "Date", "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 7, "Collected", "1", 0, "R", false, 0, "")
	pdf.CellFormat(50, 7, "Cumulative", "1", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, p := range trend.Points {
		pdf.CellFormat(50, 6, p.Date, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, money(p.Amount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, money(p.Cumulative), "1", 1, "R", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 7, "Total collected: "+money(trend.TotalRevenue))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Growth rate: %.1f%%", trend.GrowthRate))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render revenue report: %w", err)
	}
	return buf.Bytes(), nil
}

func renderOutstandingPDF(rows []OutstandingRow, currency string, generated time.Time) ([]byte, error) {
	pdf := newReportPDF("Outstanding Bills Report", currency, generated)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(45, 7, "Patient", "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 7, "Description", "1", 0, "L", false, 0, "")
	pdf.CellFormat(25, 7, "Type", "1", 0, "L", false, 0, "")
	pdf.CellFormat(23, 7, "Amount", "1", 0, "R", false, 0, "")
	pdf.CellFormat(23, 7, "Paid", "1", 0, "R", false, 0, "")
	pdf.CellFormat(24, 7, "Balance", "1", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	total := decimal.Zero
	for _, r := range rows {
		desc := truncate(r.Description, 32)
		pdf.CellFormat(45, 6, r.PatientName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, desc, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, r.BillType, "1", 0, "L", false, 0, "")
		pdf.CellFormat(23, 6, money(r.Amount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(23, 6, money(r.AmountPaid), "1", 0, "R", false, 0, "")
		pdf.CellFormat(24, 6, money(r.Outstanding), "1", 1, "R", false, 0, "")
		total = total.Add(r.Outstanding)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Open bills: %d", len(rows)))
	pdf.Ln(6)
	pdf.Cell(0, 7, "Total outstanding: "+money(total))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render outstanding report: %w", err)
	}
	return buf.Bytes(), nil
}
