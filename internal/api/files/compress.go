// compress.go implements the file compression endpoint. Unlike conversion it
// is open to anonymous callers and is not quota gated; abuse is bounded by
// the per-IP rate limiter.
package files

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/convertify/convertify/internal/compress"
	"github.com/convertify/convertify/internal/config"
	"github.com/convertify/convertify/internal/staging"
)

// CompressHandlers handles the file compression endpoint
type CompressHandlers struct {
	cfg    *config.Config
	stager *staging.Stager
	engine *compress.Engine
}

// NewCompressHandlers creates a new CompressHandlers instance
func NewCompressHandlers(cfg *config.Config, stager *staging.Stager) *CompressHandlers {
	return &CompressHandlers{
		cfg:    cfg,
		stager: stager,
		engine: compress.NewEngine(stager),
	}
}

// CompressHandler compresses an uploaded file and streams the result back.
// The optional rate field (0-100, higher means more aggressive) falls back to
// the configured default when absent or unparseable rather than failing the
// request.
// POST /convertify/api/compress  (multipart: file, rate)
func (h *CompressHandlers) CompressHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		maxBytes := int64(h.cfg.Storage.MaxUploadMB) << 20
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A 'file' upload field is required"})
			return
		}

		rate := h.cfg.Convert.DefaultCompressionRate
		if raw := strings.TrimSpace(c.PostForm("rate")); raw != "" {
			if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
				rate = parsed
			}
		}

		upload, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
			return
		}
		defer upload.Close()

		staged, err := h.stager.Stage(upload, fileHeader.Filename)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stage upload"})
			return
		}

		result, err := h.engine.Compress(c.Request.Context(), staged, rate)
		if err != nil {
			slog.Error("compression failed", "ext", staged.Ext, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Compression failed"})
			return
		}

		// Staged inputs and outputs are swept by the cleanup job; clients may
		// re-download the result until then.
		c.Header("X-Original-Size", strconv.FormatInt(result.OriginalSize, 10))
		c.Header("X-Compressed-Size", strconv.FormatInt(result.FinalSize, 10))
		c.Header("X-Reduced", strconv.FormatBool(result.Reduced))
		c.FileAttachment(result.Path, compressedDownloadName(staged.OriginalName, result.Path))
	}
}

// compressedDownloadName derives the attachment filename from the sanitized
// original plus the result's actual extension (images re-encode to .jpg,
// non-media files wrap in .zip).
func compressedDownloadName(originalName, resultPath string) string {
	base := strings.TrimSuffix(originalName, filepath.Ext(originalName))
	if base == "" {
		base = "compressed"
	}
	return fmt.Sprintf("%s-compressed%s", base, filepath.Ext(resultPath))
}
