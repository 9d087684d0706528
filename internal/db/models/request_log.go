package models

import "time"

// RequestLog is one immutable record of a completed API request.
// Rows are append-only and deliberately survive deletion of the user
// they reference (user_id is set to NULL, never cascaded).
type RequestLog struct {
	ID             string
	UserID         *string // nil for unauthenticated requests
	Endpoint       string
	Method         string
	StatusCode     int
	IPAddress      string
	UserAgent      string
	ResponseTimeMs int
	Date           time.Time // Day bucket for aggregation queries
	CreatedAt      time.Time
}
