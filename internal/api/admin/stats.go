// stats.go implements handlers for aggregating and serving dashboard
// statistics and the seven-day usage chart.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/convertify/convertify/internal/db/repositories"
)

// StatsHandler handles stats-related API requests
type StatsHandler struct {
	db             *sqlx.DB
	requestLogRepo *repositories.RequestLogRepository
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(database *sqlx.DB) *StatsHandler {
	return &StatsHandler{
		db:             database,
		requestLogRepo: repositories.NewRequestLogRepository(database.DB),
	}
}

// DashboardStats represents the response for dashboard statistics
type DashboardStats struct {
	Users    UserStats    `json:"users"`
	APIKeys  APIKeyStats  `json:"api_keys"`
	Requests RequestStats `json:"requests"`
}

// UserStats represents account counts for the dashboard
type UserStats struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
	Admins int64 `json:"admins"`
}

// APIKeyStats represents API key counts and consumption for the dashboard
type APIKeyStats struct {
	Total      int64 `json:"total"`
	Active     int64 `json:"active"`
	Revoked    int64 `json:"revoked"`
	TodayUsage int64 `json:"today_usage"`
	TotalUsage int64 `json:"total_usage"`
}

// RequestStats represents request log aggregates for the dashboard
type RequestStats struct {
	Total         int64   `json:"total"`
	Today         int64   `json:"today"`
	AvgResponseMs float64 `json:"avg_response_ms"`
	ErrorRate     float64 `json:"error_rate"` // share of 5xx responses, [0,1]
}

// @Summary      Get dashboard statistics
// @Description  Returns aggregated account, API key, and request log counts for the admin dashboard.
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  DashboardStats
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/stats/dashboard [get]
// GetDashboardStats returns dashboard statistics using a single database round-trip.
func (h *StatsHandler) GetDashboardStats(c *gin.Context) {
	ctx := c.Request.Context()

	// Core counts — single round-trip.
	query := `
		SELECT
			(SELECT COUNT(*) FROM users) AS user_count,
			(SELECT COUNT(*) FROM users WHERE is_active) AS active_user_count,
			(SELECT COUNT(*) FROM users WHERE is_admin) AS admin_count,
			(SELECT COUNT(*) FROM api_keys) AS key_count,
			(SELECT COUNT(*) FROM api_keys WHERE NOT revoked) AS active_key_count,
			(SELECT COALESCE(SUM(today_usage), 0) FROM api_keys WHERE NOT revoked) AS today_usage,
			(SELECT COALESCE(SUM(total_usage), 0) FROM api_keys) AS total_usage,
			(SELECT COUNT(*) FROM request_logs) AS request_count,
			(SELECT COUNT(*) FROM request_logs WHERE date = CURRENT_DATE) AS today_request_count,
			(SELECT COALESCE(AVG(response_time_ms), 0) FROM request_logs WHERE date = CURRENT_DATE) AS avg_response_ms
	`

	var stats DashboardStats

	err := h.db.QueryRowContext(ctx, query).Scan(
		&stats.Users.Total,
		&stats.Users.Active,
		&stats.Users.Admins,
		&stats.APIKeys.Total,
		&stats.APIKeys.Active,
		&stats.APIKeys.TodayUsage,
		&stats.APIKeys.TotalUsage,
		&stats.Requests.Total,
		&stats.Requests.Today,
		&stats.Requests.AvgResponseMs,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard statistics"})
		return
	}
	stats.APIKeys.Revoked = stats.APIKeys.Total - stats.APIKeys.Active

	// Error rate over today's traffic — optional, zero on failure.
	var errorCount int64
	_ = h.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM request_logs
		WHERE date = CURRENT_DATE AND status_code >= 500
	`).Scan(&errorCount)
	if stats.Requests.Today > 0 {
		stats.Requests.ErrorRate = float64(errorCount) / float64(stats.Requests.Today)
	}

	c.JSON(http.StatusOK, stats)
}

// usageWindowDays is the width of the dashboard's request chart.
const usageWindowDays = 7

// DailyUsageEntry is one day of the usage chart
type DailyUsageEntry struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// @Summary      Get daily usage
// @Description  Returns per-day API request counts over the last seven days, oldest first. Days without traffic are reported as zero.
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/stats/usage [get]
// GetDailyUsage returns the seven-day request chart with zero-filled gaps.
func (h *StatsHandler) GetDailyUsage(c *gin.Context) {
	counts, err := h.requestLogRepo.CountByDay(c.Request.Context(), usageWindowDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage statistics"})
		return
	}

	byDay := make(map[string]int, len(counts))
	for _, dc := range counts {
		byDay[dc.Date.Format("2006-01-02")] = dc.Count
	}

	// Zero-fill so the chart always shows a contiguous window ending today.
	today := time.Now().UTC().Truncate(24 * time.Hour)
	entries := make([]DailyUsageEntry, 0, usageWindowDays)
	for i := usageWindowDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format("2006-01-02")
		entries = append(entries, DailyUsageEntry{Date: day, Count: byDay[day]})
	}

	c.JSON(http.StatusOK, gin.H{"days": entries})
}
