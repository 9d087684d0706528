package convert

import (
	"fmt"
	"os"
	"strings"

	docx "github.com/fumiama/go-docx"
	"github.com/jaytaylor/html2text"
	"github.com/ledongthuc/pdf"
)

// ExtractText pulls the plain text out of a document file. The extraction is
// lossy but complete: a page or paragraph that cannot be read contributes an
// empty string rather than failing the whole document. Only a failure to read
// the input itself is an error.
func ExtractText(path, format string) (string, error) {
	switch format {
	case "pdf":
		return extractPDF(path)
	case "docx":
		return extractDOCX(path)
	case "html":
		return extractHTML(path)
	case "txt", "md":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("input read failed: %w", err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("%w: cannot extract text from %s", ErrUnsupportedFormat, format)
	}
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("input read failed: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page becomes an empty string; the rest of
			// the document still comes through.
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	return strings.Join(pages, "\n"), nil
}

func extractDOCX(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("input read failed: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("input read failed: %w", err)
	}

	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return "", fmt.Errorf("input read failed: %w", err)
	}

	var paragraphs []string
	for _, item := range doc.Document.Body.Items {
		if p, ok := item.(*docx.Paragraph); ok {
			paragraphs = append(paragraphs, p.String())
		}
	}

	return strings.Join(paragraphs, "\n"), nil
}

func extractHTML(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("input read failed: %w", err)
	}

	text, err := html2text.FromString(string(b))
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return text, nil
}
