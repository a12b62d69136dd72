package services

import (
	"bytes"
	"fmt"
	"time"

	"hive/internal/domain"
	"hive/internal/utils"

	"github.com/phpdave11/gofpdf"
)

const (
	pdfMargin     = 10.0
	pdfRowHeight  = 7.0
	pdfSerialW    = 12.0
	pdfFontSize   = 9.0
	pdfHeaderSize = 8.0
)

func encodePDF(records []domain.Record, schema Schema, now time.Time) ([]byte, error) {
	orientation := "P"
	if schema.Landscape {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetTitle(schema.Title, false)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	widths := columnWidths(schema, pageW-2*pdfMargin)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfMargin)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	drawHeader := func() {
		pdf.SetFont("Helvetica", "B", pdfHeaderSize)
		pdf.SetFillColor(244, 244, 244)
		pdf.SetTextColor(0, 0, 0)
		for i, h := range schema.Headers() {
			align := "L"
			if i == 0 {
				align = "C"
			}
			pdf.CellFormat(widths[i], pdfRowHeight, tr(h), "1", 0, align, true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", pdfFontSize)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, tr(schema.Title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(102, 102, 102)
	pdf.CellFormat(0, 6, "Generated on: "+utils.FormatDateMinute(now), "", 1, "C", false, 0, "")
	pdf.Ln(3)
	drawHeader()

	if len(records) == 0 {
		pdf.CellFormat(pageW-2*pdfMargin, pdfRowHeight*2, "No records found.", "1", 1, "C", false, 0, "")
	}

	bottom := pageH - 2*pdfMargin
	for i, rec := range records {
		if pdf.GetY()+pdfRowHeight > bottom {
			pdf.AddPage()
			drawHeader()
		}
		fill := i%2 == 1
		pdf.SetFillColor(250, 250, 250)
		for j, cell := range schema.Cells(i+1, rec) {
			align := "L"
			if j == 0 {
				align = "C"
			}
			text := fitText(pdf, tr, cell, widths[j]-2)
			pdf.CellFormat(widths[j], pdfRowHeight, text, "1", 0, align, fill, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// columnWidths splits the usable width by the schema weights after the
// fixed serial column.
func columnWidths(schema Schema, usable float64) []float64 {
	widths := make([]float64, 0, len(schema.Columns)+1)
	widths = append(widths, pdfSerialW)
	var total float64
	for _, c := range schema.Columns {
		total += c.Width
	}
	rest := usable - pdfSerialW
	for _, c := range schema.Columns {
		w := rest / float64(len(schema.Columns))
		if total > 0 {
			w = rest * c.Width / total
		}
		widths = append(widths, w)
	}
	return widths
}

// fitText translates s for the core font and cuts it so that it fits
// within w, marking the cut with "...".
func fitText(pdf *gofpdf.Fpdf, tr func(string) string, s string, w float64) string {
	if out := tr(s); pdf.GetStringWidth(out) <= w {
		return out
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		if cand := tr(string(runes) + "..."); pdf.GetStringWidth(cand) <= w {
			return cand
		}
	}
	return ""
}
