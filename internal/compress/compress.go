// Package compress implements the compression engine. PDFs get a container
// rewrite via pdfcpu, images get flattened and re-encoded as JPEG at a
// quality derived from the requested rate, and everything else is wrapped in
// a single-entry ZIP. A sub-routine failure degrades to a verbatim copy of
// the input rather than failing the request; the Result records whether any
// size reduction actually happened.
package compress

import (
	"archive/zip"
	"compress/flate"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"strconv"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/convertify/convertify/internal/staging"
	"github.com/convertify/convertify/internal/telemetry"
)

// Result describes the outcome of a compression call. Path is always set on
// a nil error, even when the engine degraded to a plain copy.
type Result struct {
	Path         string
	Reduced      bool
	OriginalSize int64
	FinalSize    int64
}

var imageExts = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true,
	"bmp": true, "tiff": true, "webp": true,
}

// Engine performs file compression, writing results via the stager's output
// naming scheme.
type Engine struct {
	stager *staging.Stager
}

// NewEngine creates a compression engine backed by the given stager.
func NewEngine(stager *staging.Stager) *Engine {
	return &Engine{stager: stager}
}

// Compress reduces the staged file at the given rate (0..100, higher means
// more aggressive for archives, higher JPEG quality for images; values
// outside the range are clamped). Failures inside a compression sub-routine
// are soft: the input is copied through unchanged, Reduced stays false, and
// the error is logged rather than returned.
func (e *Engine) Compress(ctx context.Context, staged *staging.StagedFile, rate int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rate = clamp(rate, 0, 100)

	var (
		category   string
		outputPath string
		err        error
	)
	switch {
	case staged.Ext == "pdf":
		category = "pdf"
		outputPath = e.stager.CompressedPath(staged, "pdf")
		err = compressPDF(staged.Path, outputPath)
	case imageExts[staged.Ext]:
		category = "image"
		outputPath = e.stager.CompressedPath(staged, "jpg")
		err = compressImage(staged.Path, outputPath, rate)
	default:
		category = "archive"
		outputPath = e.stager.CompressedPath(staged, "zip")
		err = compressZip(staged.Path, outputPath, staged.OriginalName, rate)
	}

	if err != nil {
		// Soft failure: hand back the original bytes under the output name.
		slog.Warn("compression degraded to copy",
			"category", category,
			"file", staged.OriginalName,
			"error", err,
		)
		_ = os.Remove(outputPath)
		outputPath = e.stager.CompressedPath(staged, staged.Ext)
		if copyErr := copyFile(staged.Path, outputPath); copyErr != nil {
			return nil, fmt.Errorf("compression fallback copy failed: %w", copyErr)
		}
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil {
		return nil, fmt.Errorf("failed to stat compressed output: %w", statErr)
	}

	result := &Result{
		Path:         outputPath,
		Reduced:      err == nil && info.Size() < staged.Size,
		OriginalSize: staged.Size,
		FinalSize:    info.Size(),
	}

	telemetry.CompressionsTotal.WithLabelValues(category, strconv.FormatBool(result.Reduced)).Inc()
	return result, nil
}

// compressPDF rewrites the PDF container, dropping redundant objects and
// recompressing streams.
func compressPDF(inputPath, outputPath string) error {
	if err := pdfapi.OptimizeFile(inputPath, outputPath, nil); err != nil {
		return fmt.Errorf("pdf optimize failed: %w", err)
	}
	return nil
}

// compressImage flattens the image over white and re-encodes it as JPEG at
// quality = rate. Rate 0 would mean "encoder default" to image/jpeg, so it is
// floored at 1.
func compressImage(inputPath, outputPath string, rate int) error {
	img, err := decodeFlattened(inputPath)
	if err != nil {
		return err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("output write failed: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: clamp(rate, 1, 100)}); err != nil {
		return fmt.Errorf("jpeg encode failed: %w", err)
	}
	return nil
}

// compressZip wraps the file in a single-entry ZIP archive. The deflate
// level is rate/10 clamped to [1,9].
func compressZip(inputPath, outputPath, entryName string, rate int) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("input read failed: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("output write failed: %w", err)
	}
	defer out.Close()

	level := clamp(rate/10, 1, 9)
	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})

	entry, err := zw.Create(entryName)
	if err != nil {
		zw.Close()
		return fmt.Errorf("zip entry failed: %w", err)
	}
	if _, err := io.Copy(entry, in); err != nil {
		zw.Close()
		return fmt.Errorf("zip write failed: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("zip finalize failed: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
