// Package staging manages the on-disk lifecycle of files passing through the
// conversion pipeline. Uploads are staged under a unique name in the upload
// directory, engine output lands in the output directory, and a background
// sweep removes anything old enough to be abandoned. Staging is strictly
// local-filesystem — a Convertify instance owns its scratch space and nothing
// else needs to see it.
package staging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StagedFile describes an uploaded file after it has been written to the
// upload directory under its staging name.
type StagedFile struct {
	// ID is the 32-character hex staging identifier.
	ID string
	// Path is the absolute location of the staged file on disk.
	Path string
	// OriginalName is the sanitized client-supplied filename.
	OriginalName string
	// Ext is the lowercased extension without the dot ("pdf", "jpg", ...).
	Ext string
	// Size is the number of bytes written.
	Size int64
	// Checksum is the hex-encoded SHA-256 of the staged content.
	Checksum string
}

// Stager stages uploads and names engine outputs.
type Stager struct {
	uploadDir string
	outputDir string
}

// New creates a Stager, creating both directories if needed.
func New(uploadDir, outputDir string) (*Stager, error) {
	if err := os.MkdirAll(uploadDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Stager{uploadDir: uploadDir, outputDir: outputDir}, nil
}

// Stage writes the reader's content to the upload directory under a fresh
// staging name derived from a random identifier plus the original extension.
// The client-supplied filename is never used as a path component, so path
// traversal attempts in the filename are harmless. The SHA-256 checksum is
// computed while writing.
func (s *Stager) Stage(r io.Reader, originalFilename string) (*StagedFile, error) {
	name := SanitizeFilename(originalFilename)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))

	id := strings.ReplaceAll(uuid.New().String(), "-", "")

	stagedName := id
	if ext != "" {
		stagedName = id + "." + ext
	}
	fullPath := filepath.Join(s.uploadDir, stagedName)

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(file, hasher), r)
	if err != nil {
		// Clean up partial file
		_ = os.Remove(fullPath)
		return nil, fmt.Errorf("failed to write staged file: %w", err)
	}

	return &StagedFile{
		ID:           id,
		Path:         fullPath,
		OriginalName: name,
		Ext:          ext,
		Size:         written,
		Checksum:     hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// OutputPath returns the location in the output directory where the result of
// processing the staged file should be written. The name keeps the original
// base name for the client's benefit and the staging ID for uniqueness:
//
//	report.pdf staged as 3f2a... converting to txt → report-3f2a...-converted.txt
func (s *Stager) OutputPath(staged *StagedFile, newExt string) string {
	base := strings.TrimSuffix(staged.OriginalName, filepath.Ext(staged.OriginalName))
	if base == "" {
		base = "file"
	}
	return filepath.Join(s.outputDir, fmt.Sprintf("%s-%s-converted.%s", base, staged.ID, newExt))
}

// CompressedPath is OutputPath's sibling for the compression pipeline.
func (s *Stager) CompressedPath(staged *StagedFile, newExt string) string {
	base := strings.TrimSuffix(staged.OriginalName, filepath.Ext(staged.OriginalName))
	if base == "" {
		base = "file"
	}
	return filepath.Join(s.outputDir, fmt.Sprintf("%s-%s-compressed.%s", base, staged.ID, newExt))
}

// Remove deletes a staged or output file. A missing file is not an error: the
// cleanup sweep may have won the race.
func (s *Stager) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// CleanupOlderThan removes regular files in both directories whose
// modification time is older than maxAge, returning how many were removed.
// Subdirectories are left alone. Errors on individual files do not stop the
// sweep; the first error is returned after the full pass.
func (s *Stager) CleanupOlderThan(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var firstErr error

	for _, dir := range []string{s.uploadDir, s.outputDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to read %s: %w", dir, err)
			}
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
				}
				continue
			}
			removed++
		}
	}

	return removed, firstErr
}

// SanitizeFilename reduces a client-supplied filename to a safe base name.
// Directory components are stripped and characters outside a conservative
// allowlist are replaced with underscores. An empty or fully hostile name
// becomes "file".
func SanitizeFilename(name string) string {
	// Strip directory components, both Unix and Windows style.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := b.String()
	// "." and ".." survive filepath.Base; they are not usable names.
	if out == "" || strings.Trim(out, ".") == "" {
		return "file"
	}
	return out
}
