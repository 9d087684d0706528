package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/convertify/convertify/internal/db/models"
	"github.com/convertify/convertify/internal/db/repositories"
	"github.com/convertify/convertify/internal/safego"
)

// RequestLogMiddleware records API requests to the request_logs table for the
// admin dashboard and per-user usage views. Only paths under an /api segment
// are recorded; health checks, metrics, and static assets are not interesting.
//
// The DB write happens asynchronously after the response is sent so logging
// latency never shows up in the client's response time. A failed write is
// logged and dropped: request logs are best-effort analytics, not an audit
// trail we would fail a request over.
func RequestLogMiddleware(logRepo *repositories.RequestLogRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Process request first
		c.Next()

		if !strings.Contains(c.Request.URL.Path, "/api") {
			return
		}

		entry := &models.RequestLog{
			Endpoint:       c.Request.URL.Path,
			Method:         c.Request.Method,
			StatusCode:     c.Writer.Status(),
			IPAddress:      c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
			ResponseTimeMs: int(time.Since(start).Milliseconds()),
		}

		// Nil user for anonymous requests (e.g. unauthenticated compress).
		if userID, exists := c.Get("user_id"); exists {
			if id, ok := userID.(string); ok {
				entry.UserID = &id
			}
		}

		safego.Go("request-log", func() {
			// Use a background context since the request context is already done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := logRepo.Insert(ctx, entry); err != nil {
				slog.Error("failed to write request log",
					"error", err,
					"endpoint", entry.Endpoint,
					"method", entry.Method,
				)
			}
		})
	}
}
