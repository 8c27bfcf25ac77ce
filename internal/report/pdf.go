package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
)

// PDFOptions controls the fixed-layout report
type PDFOptions struct {
	// MaxPages bounds the document; fields that do not fit are replaced by a
	// single "N additional fields omitted" line. Values below one mean one.
	MaxPages int
	// Heatmap is an optional PNG drawn after the fields when it fits
	Heatmap []byte
}

// PDFStats describes what was rendered
type PDFStats struct {
	Pages          int
	Written        int
	Omitted        int
	HeatmapDrawn   bool
	HeatmapOmitted bool
}

const (
	pdfMargin     = 15.0
	pdfLineHeight = 8.0
	pdfLabelWidth = 65.0
	pdfHeatmapMM  = 70.0
	pdfFooterMM   = 12.0

	// pdfMaxValueLines caps how far one field value may wrap; the last kept
	// line ends in an ellipsis
	pdfMaxValueLines = 6
)

// WriteReportPDF draws the document's labeled fields top to bottom on A4 pages
func WriteReportPDF(w io.Writer, doc Document, opts PDFOptions) (PDFStats, error) {
	maxPages := opts.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfFooterMM)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(0, 6, fmt.Sprintf("For research and educational purposes only. Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pageWidth, pageHeight := pdf.GetPageSize()
	limit := pageHeight - pdfMargin - pdfFooterMM
	valueWidth := pageWidth - 2*pdfMargin - pdfLabelWidth

	var stats PDFStats
	addPage := func() {
		pdf.AddPage()
		stats.Pages++
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "", 11)
	}

	addPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(27, 94, 32)
	pdf.CellFormat(0, 12, tr(doc.Title), "", 1, "L", false, 0, "")
	pdf.SetDrawColor(46, 125, 50)
	pdf.Line(pdfMargin, pdf.GetY(), 210-pdfMargin, pdf.GetY())
	pdf.Ln(4)
	pdf.SetTextColor(0, 0, 0)

	i := 0
	for i < len(doc.Fields) {
		field := doc.Fields[i]
		pdf.SetFont("Helvetica", "", 11)
		lines := wrapValue(pdf, tr(field.Value), valueWidth)

		need := float64(len(lines)) * pdfLineHeight
		if stats.Pages == maxPages && i < len(doc.Fields)-1 {
			need += pdfLineHeight
		}
		if pdf.GetY()+need > limit {
			if stats.Pages < maxPages {
				addPage()
				continue
			}
			break
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(pdfLabelWidth, pdfLineHeight, tr(field.Label+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		for j, line := range lines {
			if j > 0 {
				pdf.SetX(pdfMargin + pdfLabelWidth)
			}
			pdf.CellFormat(valueWidth, pdfLineHeight, line, "", 1, "L", false, 0, "")
		}
		i++
	}
	stats.Written = i
	stats.Omitted = len(doc.Fields) - i

	if stats.Omitted > 0 {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.CellFormat(0, pdfLineHeight, fmt.Sprintf("%d additional fields omitted", stats.Omitted), "", 1, "L", false, 0, "")
	} else if len(opts.Heatmap) > 0 {
		if pdf.GetY()+pdfHeatmapMM+pdfLineHeight > limit && stats.Pages < maxPages {
			addPage()
		}
		if pdf.GetY()+pdfHeatmapMM+pdfLineHeight <= limit {
			pdf.Ln(4)
			pdf.SetFont("Helvetica", "B", 11)
			pdf.CellFormat(0, pdfLineHeight, "Attention Heatmap", "", 1, "L", false, 0, "")
			pdf.RegisterImageOptionsReader("heatmap", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(opts.Heatmap))
			pdf.ImageOptions("heatmap", pdfMargin, pdf.GetY(), pdfHeatmapMM, pdfHeatmapMM, true, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
			stats.HeatmapDrawn = true
		} else {
			stats.HeatmapOmitted = true
		}
	}

	if err := pdf.Output(w); err != nil {
		return stats, fmt.Errorf("render pdf: %w", err)
	}
	return stats, nil
}

// wrapValue breaks text at spaces into lines no wider than width in the
// current font, splitting words that are wider than a whole line, and
// truncates to pdfMaxValueLines. text is already in the font's code page,
// so widths are measured per byte.
func wrapValue(pdf *fpdf.Fpdf, text string, width float64) []string {
	var lines []string
	line := ""
	for _, word := range strings.Fields(text) {
		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if pdf.GetStringWidth(candidate) <= width {
			line = candidate
			continue
		}
		if line != "" {
			lines = append(lines, line)
		}
		for pdf.GetStringWidth(word) > width {
			n := len(word) - 1
			for n > 1 && pdf.GetStringWidth(word[:n]) > width {
				n--
			}
			lines = append(lines, word[:n])
			word = word[n:]
		}
		line = word
	}
	if line != "" || len(lines) == 0 {
		lines = append(lines, line)
	}

	if len(lines) <= pdfMaxValueLines {
		return lines
	}
	lines = lines[:pdfMaxValueLines]
	last := lines[len(lines)-1]
	for last != "" && pdf.GetStringWidth(last+"...") > width {
		last = last[:len(last)-1]
	}
	lines[len(lines)-1] = strings.TrimRight(last, " ") + "..."
	return lines
}
