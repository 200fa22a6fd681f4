package media

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/dwizi/wabot/internal/textnorm"
)

const (
	pdfMarginMM   = 20
	pdfTitleSize  = 16
	pdfTitleLine  = 8
	pdfBodySize   = 11
	pdfBodyLine   = 5.5
	pdfFooterSize = 8
)

var fileNameSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// PDFDocument lays title and body out on A4 pages in Helvetica. Long bodies
// flow onto as many pages as they need; runes outside cp1252 are replaced.
func PDFDocument(title, body string) (Attachment, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if body == "" {
		return Attachment{}, fmt.Errorf("pdf body is required")
	}
	if title == "" {
		title = "Documento"
	}

	data, _, err := renderPDF(title, body)
	if err != nil {
		return Attachment{}, err
	}
	return Attachment{
		Kind:     KindDocument,
		MimeType: "application/pdf",
		FileName: pdfFileName(title),
		Caption:  "📄 " + title,
		Data:     data,
	}, nil
}

// renderPDF returns the encoded document and its page count.
func renderPDF(title, body string) ([]byte, int, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("wabot", true)
	pdf.SetMargins(pdfMarginMM, pdfMarginMM, pdfMarginMM)
	pdf.SetAutoPageBreak(true, pdfMarginMM)
	translate := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", pdfFooterSize)
		pdf.CellFormat(0, 10, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", pdfTitleSize)
	pdf.MultiCell(0, pdfTitleLine, translate(title), "", "L", false)
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", pdfBodySize)
	pdf.MultiCell(0, pdfBodyLine, translate(strings.ReplaceAll(body, "\r\n", "\n")), "", "L", false)

	pages := pdf.PageNo()
	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, 0, fmt.Errorf("render pdf: %w", err)
	}
	return out.Bytes(), pages, nil
}

func pdfFileName(title string) string {
	slug := fileNameSanitizer.ReplaceAllString(textnorm.Fold(title), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "documento"
	}
	if len(slug) > 40 {
		slug = strings.Trim(slug[:40], "-")
	}
	return slug + ".pdf"
}
