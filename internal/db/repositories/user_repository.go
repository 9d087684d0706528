// Package repositories implements the data access layer (repository pattern) for Convertify.
// Each repository type encapsulates all database queries for a domain entity.
// Handlers never issue SQL directly — all database access goes through this layer, which makes
// query logic testable in isolation and prevents accidental cross-domain data access.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/convertify/convertify/internal/db/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser creates a new user
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()

	query := `
		INSERT INTO users (id, email, password_hash, is_admin, is_active, created_at, login_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.IsAdmin,
		user.IsActive,
		user.CreatedAt,
		user.LoginCount,
	)

	return err
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, is_admin, is_active, created_at, last_login_at, last_login_ip, login_count
		FROM users
		WHERE id = $1
	`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.IsActive,
		&user.CreatedAt,
		&user.LastLoginAt,
		&user.LastLoginIP,
		&user.LoginCount,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetUserByEmail retrieves a user by email
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, is_admin, is_active, created_at, last_login_at, last_login_ip, login_count
		FROM users
		WHERE email = $1
	`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.IsActive,
		&user.CreatedAt,
		&user.LastLoginAt,
		&user.LastLoginIP,
		&user.LoginCount,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}

// RecordLogin updates login bookkeeping after a successful password check
func (r *UserRepository) RecordLogin(ctx context.Context, userID, ip string) error {
	query := `
		UPDATE users
		SET last_login_at = NOW(), last_login_ip = $2, login_count = login_count + 1
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, ip)
	return err
}

// SetActive toggles whether the account may use the service
func (r *UserRepository) SetActive(ctx context.Context, userID string, active bool) error {
	query := `UPDATE users SET is_active = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, active)
	return err
}

// SetAdmin toggles the admin role
func (r *UserRepository) SetAdmin(ctx context.Context, userID string, admin bool) error {
	query := `UPDATE users SET is_admin = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, admin)
	return err
}

// DeleteUser deletes a user. API keys cascade; request logs keep their rows
// with user_id nulled so the audit trail survives.
func (r *UserRepository) DeleteUser(ctx context.Context, userID string) error {
	query := `DELETE FROM users WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// ListUsers retrieves a paginated, optionally filtered list of users together
// with the total match count. search filters on email (substring,
// case-insensitive); role is "", "admin", or "user".
func (r *UserRepository) ListUsers(ctx context.Context, search, role string, limit, offset int) ([]*models.User, int, error) {
	var total int
	countQuery := `
		SELECT COUNT(*)
		FROM users
		WHERE ($1 = '' OR email ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR ($2 = 'admin') = is_admin)
	`
	err := r.db.QueryRowContext(ctx, countQuery, search, role).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, email, password_hash, is_admin, is_active, created_at, last_login_at, last_login_ip, login_count
		FROM users
		WHERE ($1 = '' OR email ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR ($2 = 'admin') = is_admin)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, search, role, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user := &models.User{}
		err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.PasswordHash,
			&user.IsAdmin,
			&user.IsActive,
			&user.CreatedAt,
			&user.LastLoginAt,
			&user.LastLoginIP,
			&user.LoginCount,
		)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}

	return users, total, rows.Err()
}

// Count returns the total number of users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var total int
	query := `SELECT COUNT(*) FROM users`
	err := r.db.QueryRowContext(ctx, query).Scan(&total)
	return total, err
}
