package models

import "time"

// APIKey represents an API key credential with its daily usage allowance
type APIKey struct {
	ID         string
	UserID     string
	KeyHash    string     // Bcrypt hash of the full key
	KeyPrefix  string     // First chars for display and indexed lookup (e.g., "cvf_abc123")
	DailyLimit int        // Requests allowed per UTC day
	TodayUsage int        // Requests consumed since the last daily reset
	TotalUsage int64      // Lifetime request count
	Revoked    bool       // Revoked keys never authenticate and never count toward quota
	CreatedAt  time.Time
	LastUsedAt *time.Time
	// Joined fields (not stored in api_keys table)
	UserEmail *string // Owner email (joined from users table, admin listings only)
}

// Remaining returns how many requests the key can still serve today.
// Never negative, even if usage overshot the limit.
func (k *APIKey) Remaining() int {
	if k.TodayUsage >= k.DailyLimit {
		return 0
	}
	return k.DailyLimit - k.TodayUsage
}
