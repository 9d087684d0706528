package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/convertify/convertify/internal/config"
)

// ---------------------------------------------------------------------------
// Column / row definitions
// ---------------------------------------------------------------------------

var akCols = []string{
	"id", "user_id", "key_hash", "key_prefix", "daily_limit",
	"today_usage", "total_usage", "revoked", "created_at", "last_used_at",
}

var akListCols = []string{
	"id", "user_id", "key_hash", "key_prefix", "daily_limit",
	"today_usage", "total_usage", "revoked", "created_at", "last_used_at", "user_email",
}

var userCols = []string{
	"id", "email", "password_hash", "is_admin", "is_active",
	"created_at", "last_login_at", "last_login_ip", "login_count",
}

func sampleAKRow() *sqlmock.Rows {
	return sqlmock.NewRows(akCols).
		AddRow("key-1", "user-1", "hashedkey", "cvf_abc123", 100, 12, int64(340), false, time.Now(), nil)
}

func sampleAKListRow() *sqlmock.Rows {
	email := "alice@example.com"
	return sqlmock.NewRows(akListCols).
		AddRow("key-1", "user-1", "hashedkey", "cvf_abc123", 100, 12, int64(340), false, time.Now(), nil, &email)
}

func sampleUserRow(id, email string, admin, active bool) *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow(id, email, "$2a$04$hash", admin, active, time.Now(), nil, nil, 3)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.APIKeys.Prefix = "cvf_"
	cfg.Auth.APIKeys.DefaultDailyLimit = 100
	cfg.Auth.JWT.Expiration = time.Hour
	cfg.Convert.DefaultCompressionRate = 70
	return cfg
}

func getJSON(resp *httptest.ResponseRecorder) map[string]interface{} {
	var m map[string]interface{}
	json.Unmarshal(resp.Body.Bytes(), &m)
	return m
}

// ---------------------------------------------------------------------------
// Router helper
// ---------------------------------------------------------------------------

func newAPIKeyRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewAPIKeyHandlers(testConfig(), db)

	r := gin.New()
	// Routes sit behind AuthMiddleware + RequireAdmin in the real router;
	// tests inject the admin caller directly.
	r.Use(func(c *gin.Context) {
		c.Set("user_id", "admin-1")
		c.Set("is_admin", true)
		c.Next()
	})
	r.POST("/apikeys", h.CreateAPIKeyHandler())
	r.GET("/apikeys", h.ListAPIKeysHandler())
	r.POST("/apikeys/:id/revoke", h.RevokeAPIKeyHandler())
	r.PUT("/apikeys/:id/limit", h.UpdateDailyLimitHandler())
	r.DELETE("/apikeys/:id", h.DeleteAPIKeyHandler())
	return mock, r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// CreateAPIKeyHandler
// ---------------------------------------------------------------------------

func TestCreateAPIKey_Success(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectQuery("SELECT.*FROM users.*WHERE id").
		WithArgs("user-1").
		WillReturnRows(sampleUserRow("user-1", "alice@example.com", false, true))
	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, "POST", "/apikeys", `{"user_id":"user-1"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	key, _ := resp["key"].(string)
	if !strings.HasPrefix(key, "cvf_") {
		t.Errorf("raw key %q missing cvf_ prefix", key)
	}
	if resp["daily_limit"] != float64(100) {
		t.Errorf("daily_limit = %v, want default 100", resp["daily_limit"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateAPIKey_ExplicitLimit(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectQuery("SELECT.*FROM users.*WHERE id").
		WillReturnRows(sampleUserRow("user-1", "alice@example.com", false, true))
	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, "POST", "/apikeys", `{"user_id":"user-1","daily_limit":500}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	if resp := getJSON(w); resp["daily_limit"] != float64(500) {
		t.Errorf("daily_limit = %v, want 500", resp["daily_limit"])
	}
}

func TestCreateAPIKey_UserNotFound(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectQuery("SELECT.*FROM users.*WHERE id").
		WillReturnRows(sqlmock.NewRows(userCols))

	w := doJSON(r, "POST", "/apikeys", `{"user_id":"nope"}`)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCreateAPIKey_MissingUserID(t *testing.T) {
	_, r := newAPIKeyRouter(t)
	w := doJSON(r, "POST", "/apikeys", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// ListAPIKeysHandler
// ---------------------------------------------------------------------------

func TestListAPIKeys(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectQuery("SELECT.*FROM api_keys ak").
		WithArgs("", "").
		WillReturnRows(sampleAKListRow())

	w := doJSON(r, "GET", "/apikeys", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["total"] != float64(1) {
		t.Errorf("total = %v, want 1", resp["total"])
	}
	keys, _ := resp["api_keys"].([]interface{})
	if len(keys) != 1 {
		t.Fatalf("api_keys len = %d, want 1", len(keys))
	}
	entry, _ := keys[0].(map[string]interface{})
	if _, leaked := entry["key_hash"]; leaked {
		t.Error("listing leaked key_hash")
	}
	if entry["remaining"] != float64(88) {
		t.Errorf("remaining = %v, want 88", entry["remaining"])
	}
}

func TestListAPIKeys_InvalidStatus(t *testing.T) {
	_, r := newAPIKeyRouter(t)
	w := doJSON(r, "GET", "/apikeys?status=bogus", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Revoke / limit / delete
// ---------------------------------------------------------------------------

func TestRevokeAPIKey(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE id").
		WithArgs("key-1").
		WillReturnRows(sampleAKRow())
	mock.ExpectExec("UPDATE api_keys SET revoked").
		WithArgs("key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, "POST", "/apikeys/key-1/revoke", "")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRevokeAPIKey_NotFound(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE id").
		WillReturnRows(sqlmock.NewRows(akCols))

	w := doJSON(r, "POST", "/apikeys/nope/revoke", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUpdateDailyLimit(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE id").
		WillReturnRows(sampleAKRow())
	mock.ExpectExec("UPDATE api_keys SET daily_limit").
		WithArgs("key-1", 250).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, "PUT", "/apikeys/key-1/limit", `{"daily_limit":250}`)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdateDailyLimit_Invalid(t *testing.T) {
	_, r := newAPIKeyRouter(t)
	w := doJSON(r, "PUT", "/apikeys/key-1/limit", `{"daily_limit":0}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDeleteAPIKey(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE id").
		WillReturnRows(sampleAKRow())
	mock.ExpectExec("DELETE FROM api_keys").
		WithArgs("key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, "DELETE", "/apikeys/key-1", "")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
