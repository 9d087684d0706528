// api_key_repository.go implements APIKeyRepository, providing database queries for API key
// lookup by prefix, creation, quota accounting, and admin key management.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/convertify/convertify/internal/db/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// CreateAPIKey creates a new API key
func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, apiKey *models.APIKey) error {
	apiKey.ID = uuid.New().String()
	apiKey.CreatedAt = time.Now()

	query := `
		INSERT INTO api_keys (id, user_id, key_hash, key_prefix, daily_limit, today_usage, total_usage, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		apiKey.ID,
		apiKey.UserID,
		apiKey.KeyHash,
		apiKey.KeyPrefix,
		apiKey.DailyLimit,
		apiKey.TodayUsage,
		apiKey.TotalUsage,
		apiKey.Revoked,
		apiKey.CreatedAt,
	)

	return err
}

// GetAPIKeyByID retrieves an API key by ID
func (r *APIKeyRepository) GetAPIKeyByID(ctx context.Context, keyID string) (*models.APIKey, error) {
	query := `
		SELECT id, user_id, key_hash, key_prefix, daily_limit, today_usage, total_usage, revoked, created_at, last_used_at
		FROM api_keys
		WHERE id = $1
	`

	apiKey := &models.APIKey{}
	err := r.db.QueryRowContext(ctx, query, keyID).Scan(
		&apiKey.ID,
		&apiKey.UserID,
		&apiKey.KeyHash,
		&apiKey.KeyPrefix,
		&apiKey.DailyLimit,
		&apiKey.TodayUsage,
		&apiKey.TotalUsage,
		&apiKey.Revoked,
		&apiKey.CreatedAt,
		&apiKey.LastUsedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return apiKey, nil
}

// GetAPIKeysByPrefix retrieves non-revoked API keys matching a prefix (for authentication).
// The prefix index narrows the bcrypt comparisons to a handful of candidates.
func (r *APIKeyRepository) GetAPIKeysByPrefix(ctx context.Context, keyPrefix string) ([]*models.APIKey, error) {
	query := `
		SELECT id, user_id, key_hash, key_prefix, daily_limit, today_usage, total_usage, revoked, created_at, last_used_at
		FROM api_keys
		WHERE key_prefix = $1 AND revoked = FALSE
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, keyPrefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apiKeys := make([]*models.APIKey, 0)
	for rows.Next() {
		apiKey := &models.APIKey{}
		err := rows.Scan(
			&apiKey.ID,
			&apiKey.UserID,
			&apiKey.KeyHash,
			&apiKey.KeyPrefix,
			&apiKey.DailyLimit,
			&apiKey.TodayUsage,
			&apiKey.TotalUsage,
			&apiKey.Revoked,
			&apiKey.CreatedAt,
			&apiKey.LastUsedAt,
		)
		if err != nil {
			return nil, err
		}
		apiKeys = append(apiKeys, apiKey)
	}

	return apiKeys, rows.Err()
}

// ListAPIKeysByUser retrieves all API keys for a user
func (r *APIKeyRepository) ListAPIKeysByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	query := `
		SELECT id, user_id, key_hash, key_prefix, daily_limit, today_usage, total_usage, revoked, created_at, last_used_at
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apiKeys := make([]*models.APIKey, 0)
	for rows.Next() {
		apiKey := &models.APIKey{}
		err := rows.Scan(
			&apiKey.ID,
			&apiKey.UserID,
			&apiKey.KeyHash,
			&apiKey.KeyPrefix,
			&apiKey.DailyLimit,
			&apiKey.TodayUsage,
			&apiKey.TotalUsage,
			&apiKey.Revoked,
			&apiKey.CreatedAt,
			&apiKey.LastUsedAt,
		)
		if err != nil {
			return nil, err
		}
		apiKeys = append(apiKeys, apiKey)
	}

	return apiKeys, rows.Err()
}

// SearchAPIKeys retrieves keys across all users for the admin dashboard.
// emailSearch filters on the owner email (substring, case-insensitive);
// status is "", "active", or "revoked".
func (r *APIKeyRepository) SearchAPIKeys(ctx context.Context, emailSearch, status string) ([]*models.APIKey, error) {
	query := `
		SELECT ak.id, ak.user_id, ak.key_hash, ak.key_prefix, ak.daily_limit, ak.today_usage,
		       ak.total_usage, ak.revoked, ak.created_at, ak.last_used_at, u.email as user_email
		FROM api_keys ak
		LEFT JOIN users u ON ak.user_id = u.id
		WHERE ($1 = '' OR u.email ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR ($2 = 'revoked') = ak.revoked)
		ORDER BY ak.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, emailSearch, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apiKeys := make([]*models.APIKey, 0)
	for rows.Next() {
		apiKey := &models.APIKey{}
		err := rows.Scan(
			&apiKey.ID,
			&apiKey.UserID,
			&apiKey.KeyHash,
			&apiKey.KeyPrefix,
			&apiKey.DailyLimit,
			&apiKey.TodayUsage,
			&apiKey.TotalUsage,
			&apiKey.Revoked,
			&apiKey.CreatedAt,
			&apiKey.LastUsedAt,
			&apiKey.UserEmail,
		)
		if err != nil {
			return nil, err
		}
		apiKeys = append(apiKeys, apiKey)
	}

	return apiKeys, rows.Err()
}

// RevokeAPIKey marks a key as revoked. Revoked keys stop authenticating and
// stop counting toward the owner's summed quota, but their usage history stays.
func (r *APIKeyRepository) RevokeAPIKey(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET revoked = TRUE WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, keyID)
	return err
}

// UpdateDailyLimit changes the per-day allowance of a key
func (r *APIKeyRepository) UpdateDailyLimit(ctx context.Context, keyID string, dailyLimit int) error {
	query := `UPDATE api_keys SET daily_limit = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, keyID, dailyLimit)
	return err
}

// DeleteAPIKey permanently removes a key
func (r *APIKeyRepository) DeleteAPIKey(ctx context.Context, keyID string) error {
	query := `DELETE FROM api_keys WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, keyID)
	return err
}

// CountActiveKeys returns the number of non-revoked keys the user holds
func (r *APIKeyRepository) CountActiveKeys(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM api_keys WHERE user_id = $1 AND revoked = FALSE`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ReserveUsage atomically consumes one unit of the user's summed daily quota.
// The allowance is the sum of daily_limit across all non-revoked keys; usage
// is the sum of today_usage across the same set. When the allowance still has
// room, every non-revoked key is incremented in the same statement, so two
// concurrent requests can never both squeeze through the last remaining unit.
// Returns false when the quota is exhausted (no rows updated).
func (r *APIKeyRepository) ReserveUsage(ctx context.Context, userID string) (bool, error) {
	query := `
		UPDATE api_keys
		SET today_usage = today_usage + 1,
		    total_usage = total_usage + 1,
		    last_used_at = NOW()
		WHERE user_id = $1
		  AND revoked = FALSE
		  AND (
			SELECT COALESCE(SUM(today_usage), 0) < COALESCE(SUM(daily_limit), 0)
			FROM api_keys
			WHERE user_id = $1 AND revoked = FALSE
		  )
	`

	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ReleaseUsage undoes one ReserveUsage after a downstream failure so the user
// is not charged for work that never completed. Counters are floored at zero
// in case a daily reset ran between the reserve and the release.
func (r *APIKeyRepository) ReleaseUsage(ctx context.Context, userID string) error {
	query := `
		UPDATE api_keys
		SET today_usage = GREATEST(today_usage - 1, 0),
		    total_usage = GREATEST(total_usage - 1, 0)
		WHERE user_id = $1 AND revoked = FALSE
	`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// ResetDailyUsage zeroes today_usage on every key. Run once per UTC day by the
// quota reset job. Returns the number of keys touched.
func (r *APIKeyRepository) ResetDailyUsage(ctx context.Context) (int64, error) {
	query := `UPDATE api_keys SET today_usage = 0 WHERE today_usage > 0`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UsageSummary aggregates the user's quota position across non-revoked keys
type UsageSummary struct {
	DailyLimit int
	TodayUsage int
	TotalUsage int64
}

// GetUsageSummary returns the summed allowance and consumption for a user
func (r *APIKeyRepository) GetUsageSummary(ctx context.Context, userID string) (*UsageSummary, error) {
	query := `
		SELECT COALESCE(SUM(daily_limit), 0), COALESCE(SUM(today_usage), 0), COALESCE(SUM(total_usage), 0)
		FROM api_keys
		WHERE user_id = $1 AND revoked = FALSE
	`

	summary := &UsageSummary{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&summary.DailyLimit,
		&summary.TodayUsage,
		&summary.TotalUsage,
	)
	if err != nil {
		return nil, err
	}
	return summary, nil
}
