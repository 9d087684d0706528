// request_log_repository.go implements RequestLogRepository, the append-only store
// for per-request audit rows and the aggregation queries behind the admin stats views.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/convertify/convertify/internal/db/models"
)

// RequestLogRepository handles request log database operations.
// Logs are insert-only; there are no update or delete methods on purpose.
type RequestLogRepository struct {
	db *sql.DB
}

// NewRequestLogRepository creates a new RequestLogRepository
func NewRequestLogRepository(db *sql.DB) *RequestLogRepository {
	return &RequestLogRepository{db: db}
}

// Insert appends one request log row
func (r *RequestLogRepository) Insert(ctx context.Context, log *models.RequestLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now()
	if log.Date.IsZero() {
		log.Date = log.CreatedAt.UTC().Truncate(24 * time.Hour)
	}

	query := `
		INSERT INTO request_logs (id, user_id, endpoint, method, status_code, ip_address, user_agent, response_time_ms, date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.Endpoint,
		log.Method,
		log.StatusCode,
		log.IPAddress,
		log.UserAgent,
		log.ResponseTimeMs,
		log.Date,
		log.CreatedAt,
	)

	return err
}

// ListRecentByUser returns the user's most recent API requests
func (r *RequestLogRepository) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*models.RequestLog, error) {
	query := `
		SELECT id, user_id, endpoint, method, status_code, ip_address, user_agent, response_time_ms, date, created_at
		FROM request_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]*models.RequestLog, 0)
	for rows.Next() {
		log := &models.RequestLog{}
		err := rows.Scan(
			&log.ID,
			&log.UserID,
			&log.Endpoint,
			&log.Method,
			&log.StatusCode,
			&log.IPAddress,
			&log.UserAgent,
			&log.ResponseTimeMs,
			&log.Date,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// DailyCount is one day's worth of API request volume
type DailyCount struct {
	Date  time.Time
	Count int
}

// CountByDay returns per-day request counts for API endpoints over the last
// `days` days, oldest first. Days with no traffic are absent; the handler
// fills in zeroes so charts always show a contiguous window.
func (r *RequestLogRepository) CountByDay(ctx context.Context, days int) ([]DailyCount, error) {
	query := `
		SELECT date, COUNT(*)
		FROM request_logs
		WHERE date > CURRENT_DATE - $1::int
		  AND endpoint LIKE '%/api/%'
		GROUP BY date
		ORDER BY date ASC
	`

	rows, err := r.db.QueryContext(ctx, query, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]DailyCount, 0)
	for rows.Next() {
		var c DailyCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}

// CountByUser returns the user's lifetime and today's API request counts
func (r *RequestLogRepository) CountByUser(ctx context.Context, userID string) (total, today int, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE date = CURRENT_DATE)
		FROM request_logs
		WHERE user_id = $1
	`
	err = r.db.QueryRowContext(ctx, query, userID).Scan(&total, &today)
	return total, today, err
}
