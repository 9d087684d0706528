package files

import (
	"archive/zip"
	"bytes"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/convertify/convertify/internal/staging"
)

func newCompressRouter(t *testing.T) *gin.Engine {
	t.Helper()
	root := t.TempDir()
	stager, err := staging.New(filepath.Join(root, "uploads"), filepath.Join(root, "converted"))
	if err != nil {
		t.Fatalf("staging.New: %v", err)
	}

	h := NewCompressHandlers(testFilesConfig(), stager)

	r := gin.New()
	r.POST("/compress", h.CompressHandler())
	return r
}

func TestCompressHandler_TextToZip(t *testing.T) {
	r := newCompressRouter(t)
	content := bytes.Repeat([]byte("the same line of text over and over\n"), 200)
	body, ct := multipartBody(t, "notes.txt", content, map[string]string{"rate": "90"})

	w := doUpload(r, "/compress", body, ct)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	disposition := w.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "notes-compressed.zip") {
		t.Errorf("Content-Disposition = %q, want notes-compressed.zip", disposition)
	}
	if w.Header().Get("X-Reduced") != "true" {
		t.Errorf("X-Reduced = %q, want true for repetitive text", w.Header().Get("X-Reduced"))
	}

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("response is not a zip archive: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "notes.txt" {
		t.Errorf("zip entries = %v, want single notes.txt", zr.File)
	}
}

func TestCompressHandler_MissingFile(t *testing.T) {
	r := newCompressRouter(t)
	buf := &bytes.Buffer{}
	w := doUpload(r, "/compress", buf, "multipart/form-data; boundary=none")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCompressHandler_GarbageRateFallsBack(t *testing.T) {
	r := newCompressRouter(t)
	body, ct := multipartBody(t, "notes.txt", []byte("some text"), map[string]string{"rate": "very high please"})

	w := doUpload(r, "/compress", body, ct)

	// An unparseable rate falls back to the configured default instead of
	// failing the request.
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

func TestCompressHandler_AnonymousAllowed(t *testing.T) {
	// No auth middleware is wired at all; the endpoint itself must not
	// require a user in the context.
	r := newCompressRouter(t)
	body, ct := multipartBody(t, "data.bin", []byte{0x01, 0x02, 0x03}, nil)

	w := doUpload(r, "/compress", body, ct)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Original-Size") != "3" {
		t.Errorf("X-Original-Size = %q, want 3", w.Header().Get("X-Original-Size"))
	}
}
