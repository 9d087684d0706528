// Package convert implements the format transform engine. Inputs are staged
// files (see internal/staging); outputs land in the output directory under a
// collision-free name. Dispatch is category-first: image sources re-encode or
// wrap into a PDF page, document sources go through plain-text extraction and
// re-rendering. Anything outside the dispatch table fails with
// ErrUnsupportedFormat before a single output byte is written.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/convertify/convertify/internal/staging"
	"github.com/convertify/convertify/internal/telemetry"
)

// ErrUnsupportedFormat is returned when the source/target pair is not in the
// dispatch table. No output file exists when this error is returned.
var ErrUnsupportedFormat = errors.New("unsupported format")

var imageExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "bmp": true,
	"webp": true, "gif": true, "tiff": true,
}

var documentExts = map[string]bool{
	"pdf": true, "docx": true, "txt": true, "md": true, "html": true,
}

// webp and tiff are decode-only: there is no maintained pure-Go encoder for
// either, so they never appear as targets.
var imageEncodeExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "bmp": true, "gif": true,
}

// IsRecognizedTarget reports whether format is a valid conversion target for
// at least one source category.
func IsRecognizedTarget(format string) bool {
	f := normalizeFormat(format)
	return imageEncodeExts[f] || documentExts[f]
}

// Engine performs file format conversions, writing results via the stager's
// output naming scheme.
type Engine struct {
	stager *staging.Stager
}

// NewEngine creates a conversion engine backed by the given stager.
func NewEngine(stager *staging.Stager) *Engine {
	return &Engine{stager: stager}
}

// Convert transforms the staged file into targetFormat and returns the output
// path. The conversions_total metric is incremented once per call with the
// outcome (success, unsupported, error).
func (e *Engine) Convert(ctx context.Context, staged *staging.StagedFile, targetFormat string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	source := normalizeFormat(staged.Ext)
	target := normalizeFormat(targetFormat)
	outputPath := e.stager.OutputPath(staged, target)

	var err error
	switch {
	case imageExts[source] && imageEncodeExts[target]:
		err = convertImage(staged.Path, outputPath, target)

	case imageExts[source] && target == "pdf":
		err = imageToPDF(staged.Path, outputPath)

	case documentExts[source] && documentExts[target]:
		var text string
		text, err = ExtractText(staged.Path, source)
		if err == nil {
			err = renderText(text, outputPath, target)
		}

	default:
		telemetry.ConversionsTotal.WithLabelValues(source, target, "unsupported").Inc()
		return "", fmt.Errorf("%w: cannot convert %s to %s", ErrUnsupportedFormat, source, target)
	}

	if err != nil {
		// Don't leave partial output behind.
		_ = os.Remove(outputPath)
		telemetry.ConversionsTotal.WithLabelValues(source, target, "error").Inc()
		return "", err
	}

	telemetry.ConversionsTotal.WithLabelValues(source, target, "success").Inc()
	return outputPath, nil
}

func normalizeFormat(format string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
}
