package convert

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	docx "github.com/fumiama/go-docx"
	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
)

const (
	pdfFontSize   = 12
	pdfMargin     = 15
	pdfLineHeight = 6
)

// renderText writes extracted plain text back out in the target document
// format. txt and md are verbatim writes, so a txt input converted to txt
// comes out byte-identical.
func renderText(text, outputPath, format string) error {
	switch format {
	case "txt", "md":
		if err := os.WriteFile(outputPath, []byte(text), 0640); err != nil {
			return fmt.Errorf("output write failed: %w", err)
		}
		return nil
	case "html":
		return renderHTML(text, outputPath)
	case "pdf":
		return renderPDF(text, outputPath)
	case "docx":
		return renderDOCX(text, outputPath)
	default:
		return fmt.Errorf("%w: cannot render text as %s", ErrUnsupportedFormat, format)
	}
}

// renderHTML runs the text through the markdown renderer. Plain prose is
// valid markdown, so non-markdown sources come out as simple paragraphs.
func renderHTML(text, outputPath string) error {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0640); err != nil {
		return fmt.Errorf("output write failed: %w", err)
	}
	return nil
}

// renderPDF lays the text out line by line with a fixed font and auto page
// breaks. Long lines wrap via MultiCell; no width measuring beyond that.
func renderPDF(text, outputPath string) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	doc.SetAutoPageBreak(true, pdfMargin)
	doc.AddPage()
	doc.SetFont("Helvetica", "", pdfFontSize)

	// Core fonts are cp1252; translate what we can, drop the rest.
	tr := doc.UnicodeTranslatorFromDescriptor("")
	for _, line := range strings.Split(text, "\n") {
		doc.MultiCell(0, pdfLineHeight, tr(line), "", "L", false)
	}

	if err := doc.OutputFileAndClose(outputPath); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}

// renderDOCX emits one paragraph per input line.
func renderDOCX(text, outputPath string) error {
	doc := docx.New().WithDefaultTheme()
	for _, line := range strings.Split(text, "\n") {
		doc.AddParagraph().AddText(line)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("output write failed: %w", err)
	}
	defer f.Close()

	if _, err := doc.WriteTo(f); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}
