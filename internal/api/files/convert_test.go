package files

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/convertify/convertify/internal/config"
	"github.com/convertify/convertify/internal/staging"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testFilesConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Storage.MaxUploadMB = 8
	cfg.Convert.DefaultCompressionRate = 70
	return cfg
}

// newConvertRouter wires the convert endpoint with a real stager on a temp
// directory and a mocked quota database. authenticated controls whether a
// user_id lands in the context.
func newConvertRouter(t *testing.T, authenticated bool) (sqlmock.Sqlmock, *gin.Engine, string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	root := t.TempDir()
	outputDir := filepath.Join(root, "converted")
	stager, err := staging.New(filepath.Join(root, "uploads"), outputDir)
	if err != nil {
		t.Fatalf("staging.New: %v", err)
	}

	h := NewConvertHandlers(testFilesConfig(), db, stager)

	r := gin.New()
	if authenticated {
		r.Use(func(c *gin.Context) {
			c.Set("user_id", "user-1")
			c.Set("is_active", true)
			c.Next()
		})
	}
	r.POST("/convert", h.ConvertHandler())
	return mock, r, outputDir
}

// multipartBody builds a multipart request body with one file field and the
// given extra form fields.
func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return buf, mw.FormDataContentType()
}

func doUpload(r *gin.Engine, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func expectQuotaReserved(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT COUNT.*FROM api_keys").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("UPDATE api_keys").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

// ---------------------------------------------------------------------------
// ConvertHandler
// ---------------------------------------------------------------------------

func TestConvertHandler_Unauthenticated(t *testing.T) {
	_, r, _ := newConvertRouter(t, false)
	body, ct := multipartBody(t, "notes.txt", []byte("hello"), map[string]string{"format": "pdf"})

	w := doUpload(r, "/convert", body, ct)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestConvertHandler_MissingFile(t *testing.T) {
	_, r, _ := newConvertRouter(t, true)
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	mw.WriteField("format", "pdf")
	mw.Close()

	w := doUpload(r, "/convert", buf, mw.FormDataContentType())

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestConvertHandler_UnknownTargetFormat(t *testing.T) {
	_, r, _ := newConvertRouter(t, true)
	body, ct := multipartBody(t, "notes.txt", []byte("hello"), map[string]string{"format": "exe"})

	w := doUpload(r, "/convert", body, ct)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestConvertHandler_NoActiveKey(t *testing.T) {
	mock, r, _ := newConvertRouter(t, true)
	mock.ExpectQuery("SELECT COUNT.*FROM api_keys").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	body, ct := multipartBody(t, "notes.txt", []byte("hello"), map[string]string{"format": "pdf"})
	w := doUpload(r, "/convert", body, ct)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403: body=%s", w.Code, w.Body.String())
	}
}

func TestConvertHandler_QuotaExceeded(t *testing.T) {
	mock, r, _ := newConvertRouter(t, true)
	mock.ExpectQuery("SELECT COUNT.*FROM api_keys").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("UPDATE api_keys").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	body, ct := multipartBody(t, "notes.txt", []byte("hello"), map[string]string{"format": "pdf"})
	w := doUpload(r, "/convert", body, ct)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429: body=%s", w.Code, w.Body.String())
	}
}

func TestConvertHandler_TxtToPdf(t *testing.T) {
	mock, r, outputDir := newConvertRouter(t, true)
	expectQuotaReserved(mock)

	body, ct := multipartBody(t, "notes.txt", []byte("hello pdf world"), map[string]string{"format": "pdf"})
	w := doUpload(r, "/convert", body, ct)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	disposition := w.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, `notes.pdf`) {
		t.Errorf("Content-Disposition = %q, want attachment named notes.pdf", disposition)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("response body is not a PDF")
	}

	// Both the staged input and the delivered output are removed once the
	// response has been written.
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("output dir still holds %d file(s) after delivery", len(entries))
	}
}

func TestConvertHandler_UnsupportedPair(t *testing.T) {
	mock, r, _ := newConvertRouter(t, true)
	expectQuotaReserved(mock)
	// The failed conversion refunds the reserved quota unit.
	mock.ExpectExec("UPDATE api_keys.*GREATEST").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// txt to png is a document-to-image pair the engine refuses.
	body, ct := multipartBody(t, "notes.txt", []byte("hello"), map[string]string{"format": "png"})
	w := doUpload(r, "/convert", body, ct)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: body=%s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDownloadName(t *testing.T) {
	tests := []struct {
		original string
		format   string
		want     string
	}{
		{"report.docx", "pdf", "report.pdf"},
		{"archive.tar.gz", "txt", "archive.tar.txt"},
		{"noext", "pdf", "noext.pdf"},
		// filepath.Ext treats the whole dotfile name as an extension.
		{".hidden", "txt", "converted.txt"},
	}
	for _, tt := range tests {
		if got := downloadName(tt.original, tt.format); got != tt.want {
			t.Errorf("downloadName(%q, %q) = %q, want %q", tt.original, tt.format, got, tt.want)
		}
	}
}
