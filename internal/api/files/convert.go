// Package files implements the public file processing endpoints: conversion
// and compression. Uploads are staged to local disk, processed, and streamed
// back as attachments; nothing is retained beyond the cleanup job's window.
package files

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/convertify/convertify/internal/config"
	"github.com/convertify/convertify/internal/convert"
	"github.com/convertify/convertify/internal/db/repositories"
	"github.com/convertify/convertify/internal/quota"
	"github.com/convertify/convertify/internal/staging"
)

// allowedTargets is the set of target formats the convert endpoint accepts.
// The engine recognizes more formats than this; the endpoint deliberately
// exposes only the ones the product supports end to end.
var allowedTargets = map[string]bool{
	"pdf":  true,
	"png":  true,
	"txt":  true,
	"jpg":  true,
	"docx": true,
}

// ConvertHandlers handles the file conversion endpoint
type ConvertHandlers struct {
	cfg    *config.Config
	stager *staging.Stager
	engine *convert.Engine
	gate   *quota.Gate
}

// NewConvertHandlers creates a new ConvertHandlers instance
func NewConvertHandlers(cfg *config.Config, db *sql.DB, stager *staging.Stager) *ConvertHandlers {
	return &ConvertHandlers{
		cfg:    cfg,
		stager: stager,
		engine: convert.NewEngine(stager),
		gate:   quota.NewGate(repositories.NewAPIKeyRepository(db)),
	}
}

// ConvertHandler converts an uploaded file to the requested target format and
// streams the result back as an attachment.
// POST /convertify/api/convert  (multipart: file, format)
func (h *ConvertHandlers) ConvertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userVal, exists := c.Get("user_id")
		userID, ok := userVal.(string)
		if !exists || !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		maxBytes := int64(h.cfg.Storage.MaxUploadMB) << 20
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A 'file' upload field is required"})
			return
		}

		format := strings.ToLower(strings.TrimSpace(c.PostForm("format")))
		if !allowedTargets[format] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "format must be one of: pdf, png, txt, jpg, docx"})
			return
		}

		// Quota is reserved before any file work so an exhausted user cannot
		// burn CPU and disk on conversions that would never be delivered.
		if err := h.gate.Reserve(c.Request.Context(), userID); err != nil {
			switch {
			case errors.Is(err, quota.ErrNoCredential):
				c.JSON(http.StatusForbidden, gin.H{"error": "An active API key is required to convert files"})
			case errors.Is(err, quota.ErrQuotaExceeded):
				c.JSON(http.StatusTooManyRequests, gin.H{"error": "Daily conversion quota exceeded"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check quota"})
			}
			return
		}

		upload, err := fileHeader.Open()
		if err != nil {
			h.gate.Release(c.Request.Context(), userID)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
			return
		}
		defer upload.Close()

		staged, err := h.stager.Stage(upload, fileHeader.Filename)
		if err != nil {
			h.gate.Release(c.Request.Context(), userID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stage upload"})
			return
		}
		// The staged input is scratch space either way; the output is removed
		// after a successful send and by the cleanup job otherwise.
		defer h.removeQuietly(staged.Path)

		outputPath, err := h.engine.Convert(c.Request.Context(), staged, format)
		if err != nil {
			// A failed conversion consumed no allowance.
			h.gate.Release(c.Request.Context(), userID)
			if errors.Is(err, convert.ErrUnsupportedFormat) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error": fmt.Sprintf("Conversion from .%s to .%s is not supported", staged.Ext, format),
				})
				return
			}
			slog.Error("conversion failed", "source", staged.Ext, "target", format, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Conversion failed"})
			return
		}

		c.FileAttachment(outputPath, downloadName(staged.OriginalName, format))
		h.removeQuietly(outputPath)
	}
}

func (h *ConvertHandlers) removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove processed file", "path", path, "error", err)
	}
}

// downloadName derives the attachment filename from the sanitized original,
// swapping its extension for the target format.
func downloadName(originalName, format string) string {
	base := strings.TrimSuffix(originalName, filepath.Ext(originalName))
	if base == "" {
		base = "converted"
	}
	return base + "." + format
}
