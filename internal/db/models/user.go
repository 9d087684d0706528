// Package models defines the database model types for Convertify.
// Each type corresponds to a database table. Models are pure data types —
// business logic belongs in the service layer, query logic in the repositories layer.
package models

import "time"

// User represents a registered account
type User struct {
	ID           string
	Email        string
	PasswordHash string `json:"-"` // Never serialized in API responses
	IsAdmin      bool
	IsActive     bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
	LastLoginIP  *string
	LoginCount   int
}
