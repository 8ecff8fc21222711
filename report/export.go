package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/Govind-619/paysync/models"
	"github.com/jung-kurt/gofpdf"
	"github.com/tealeg/xlsx"
)

const title = "PAYSYNC - Payment Reconciliation Report"

// WriteExcel writes the report as an xlsx workbook
func WriteExcel(w io.Writer, period Period, payments []models.Payment) error {
	rows, summary := Build(payments)

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Payments")
	if err != nil {
		return fmt.Errorf("failed to create Excel sheet: %v", err)
	}

	bold := xlsx.NewStyle()
	font := xlsx.DefaultFont()
	font.Bold = true
	bold.Font = *font

	titleRow := sheet.AddRow()
	titleRow.AddCell().SetString(title)
	titleRow.Cells[0].SetStyle(bold)
	sheet.AddRow().AddCell().SetString("Period: " + strings.ToUpper(period.String()))
	sheet.AddRow()

	headerRow := sheet.AddRow()
	for _, h := range headers {
		cell := headerRow.AddCell()
		cell.SetString(h)
		cell.SetStyle(bold)
	}

	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ID)
		row.AddCell().SetString(r.OrderRef)
		row.AddCell().SetString(r.Method)
		amount, _ := r.Amount.Float64()
		row.AddCell().SetFloat(amount)
		row.AddCell().SetString(r.ProviderReference)
		row.AddCell().SetString(r.Status)
		row.AddCell().SetInt(r.PollCount)
		row.AddCell().SetInt(r.Signals)
		row.AddCell().SetString(r.CreatedAt.Format("2006-01-02 15:04:05"))
		row.AddCell().SetString(r.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	sheet.AddRow()
	summaryRow := sheet.AddRow()
	summaryRow.AddCell().SetString("Summary")
	summaryRow.Cells[0].SetStyle(bold)
	for _, line := range summary.lines() {
		row := sheet.AddRow()
		row.AddCell().SetString(line[0])
		row.AddCell().SetString(line[1])
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %v", err)
	}
	return nil
}

// WritePDF writes the report as a landscape A4 PDF
func WritePDF(w io.Writer, period Period, payments []models.Payment) error {
	rows, summary := Build(payments)

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(0, 12, title)
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(0, 8, "Period: "+strings.ToUpper(period.String()))
	pdf.Ln(12)

	colWidths := []float64{42, 16, 24, 22, 40, 34, 14, 16, 34, 34}
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	for i, h := range headers {
		pdf.CellFormat(colWidths[i], 9, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	fill := false
	for _, r := range rows {
		pdf.SetFillColor(245, 245, 245)
		if fill {
			pdf.SetFillColor(230, 240, 255)
		}
		fill = !fill
		pdf.CellFormat(colWidths[0], 7, shorten(r.ID, 24), "1", 0, "L", fill, 0, "")
		pdf.CellFormat(colWidths[1], 7, r.OrderRef, "1", 0, "C", fill, 0, "")
		pdf.CellFormat(colWidths[2], 7, r.Method, "1", 0, "C", fill, 0, "")
		pdf.CellFormat(colWidths[3], 7, r.Amount.StringFixed(2), "1", 0, "R", fill, 0, "")
		pdf.CellFormat(colWidths[4], 7, shorten(r.ProviderReference, 24), "1", 0, "L", fill, 0, "")
		pdf.CellFormat(colWidths[5], 7, r.Status, "1", 0, "C", fill, 0, "")
		pdf.CellFormat(colWidths[6], 7, fmt.Sprintf("%d", r.PollCount), "1", 0, "C", fill, 0, "")
		pdf.CellFormat(colWidths[7], 7, fmt.Sprintf("%d", r.Signals), "1", 0, "C", fill, 0, "")
		pdf.CellFormat(colWidths[8], 7, r.CreatedAt.Format("2006-01-02 15:04"), "1", 0, "C", fill, 0, "")
		pdf.CellFormat(colWidths[9], 7, r.UpdatedAt.Format("2006-01-02 15:04"), "1", 0, "C", fill, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "B", 12)
	pdf.SetFillColor(220, 230, 250)
	pdf.CellFormat(90, 10, "Summary", "1", 0, "C", true, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range summary.lines() {
		pdf.CellFormat(50, 8, line[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 8, line[1], "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write PDF file: %v", err)
	}
	return nil
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
