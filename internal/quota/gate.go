// Package quota enforces the per-user daily usage allowance over API keys.
// A user's allowance is the sum of daily_limit across their non-revoked keys;
// usage is likewise summed. Reservation is a single atomic conditional UPDATE
// in the repository, so concurrent requests cannot overshoot the allowance.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/convertify/convertify/internal/db/repositories"
	"github.com/convertify/convertify/internal/telemetry"
)

// ErrNoCredential means the user has no non-revoked API key and therefore no
// allowance at all. Maps to 403 at the HTTP surface.
var ErrNoCredential = errors.New("no active API key")

// ErrQuotaExceeded means the summed daily usage has reached the summed daily
// limit. Maps to 429 at the HTTP surface.
var ErrQuotaExceeded = errors.New("daily quota exceeded")

// Gate mediates access to the quota-protected operations.
type Gate struct {
	apiKeys *repositories.APIKeyRepository
}

// NewGate creates a quota gate over the API key repository.
func NewGate(apiKeys *repositories.APIKeyRepository) *Gate {
	return &Gate{apiKeys: apiKeys}
}

// Reserve consumes one unit of the user's daily allowance. On success every
// non-revoked key of the user has today_usage and total_usage incremented and
// last_used_at touched. Returns ErrNoCredential or ErrQuotaExceeded when the
// user cannot proceed.
func (g *Gate) Reserve(ctx context.Context, userID string) error {
	count, err := g.apiKeys.CountActiveKeys(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to count active keys: %w", err)
	}
	if count == 0 {
		return ErrNoCredential
	}

	reserved, err := g.apiKeys.ReserveUsage(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to reserve usage: %w", err)
	}
	if !reserved {
		telemetry.QuotaRejectionsTotal.Inc()
		return ErrQuotaExceeded
	}
	return nil
}

// Release compensates a reservation whose work failed before producing a
// billable result. Best effort: a failed release is logged, not surfaced, so
// an engine error is never masked by quota bookkeeping.
func (g *Gate) Release(ctx context.Context, userID string) {
	if err := g.apiKeys.ReleaseUsage(ctx, userID); err != nil {
		slog.Error("failed to release reserved quota", "user_id", userID, "error", err)
	}
}
