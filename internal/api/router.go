// Package api wires together all HTTP routes for the Convertify backend.
//
// Route grouping philosophy:
//   - Product routes (/convertify/api/) carry the file conversion and
//     compression endpoints. Conversion requires an authenticated, active
//     account with an API key allowance; compression is open to anonymous
//     callers and bounded only by the per-IP rate limiter.
//   - Account and dashboard routes (/api/v1/) carry registration, login, and
//     the admin management surface. Everything under /api/v1/admin/ requires
//     an admin JWT.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/convertify/convertify/internal/api/admin"
	"github.com/convertify/convertify/internal/api/files"
	"github.com/convertify/convertify/internal/config"
	"github.com/convertify/convertify/internal/db/repositories"
	"github.com/convertify/convertify/internal/jobs"
	"github.com/convertify/convertify/internal/middleware"
	"github.com/convertify/convertify/internal/staging"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	cleanupJob    *jobs.CleanupJob
	quotaResetJob *jobs.QuotaResetJob
	rateLimiters  []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.cleanupJob != nil {
		bg.cleanupJob.Stop()
	}
	if bg.quotaResetJob != nil {
		bg.quotaResetJob.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize the staging area for uploads and processed outputs
	stager, err := staging.New(cfg.Storage.UploadDir, cfg.Storage.OutputDir)
	if err != nil {
		log.Fatalf("Failed to initialize staging directories: %v", err)
	}
	log.Printf("Initialized staging directories (uploads: %s, outputs: %s)",
		cfg.Storage.UploadDir, cfg.Storage.OutputDir)

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	requestLogRepo := repositories.NewRequestLogRepository(db)

	// Wrap *sql.DB with sqlx for the stats handler
	sqlxDB := sqlx.NewDb(db, "postgres")

	// Initialize and start the stale file cleanup job
	cleanupJob := jobs.NewCleanupJob(stager, &cfg.Jobs)
	go cleanupJob.Start(context.Background())

	// Initialize and start the daily quota reset job
	quotaResetJob := jobs.NewQuotaResetJob(apiKeyRepo, cfg.Jobs.QuotaResetEnabled)
	go quotaResetJob.Start(context.Background())

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.RequestLogMiddleware(requestLogRepo))

	// Cap multipart memory buffering; larger uploads spill to temp files.
	router.MaxMultipartMemory = 8 << 20

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API version
	router.GET("/version", versionHandler())

	// Rate limiters. All three share the token bucket implementation but use
	// separate buckets so a burst of conversions cannot starve logins.
	bg := &BackgroundServices{
		cleanupJob:    cleanupJob,
		quotaResetJob: quotaResetJob,
	}
	var defaultLimit, authLimit, convertLimit gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled {
		defaultCfg := middleware.DefaultRateLimitConfig()
		if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
			defaultCfg.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
		}
		if cfg.Security.RateLimiting.Burst > 0 {
			defaultCfg.BurstSize = cfg.Security.RateLimiting.Burst
		}
		defaultLimiter := middleware.NewRateLimiter(defaultCfg)
		authLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
		convertLimiter := middleware.NewRateLimiter(middleware.ConvertRateLimitConfig())
		bg.rateLimiters = []*middleware.RateLimiter{defaultLimiter, authLimiter, convertLimiter}

		defaultLimit = middleware.RateLimitMiddleware(defaultLimiter)
		authLimit = middleware.RateLimitMiddleware(authLimiter)
		convertLimit = middleware.RateLimitMiddleware(convertLimiter)
	} else {
		passthrough := func(c *gin.Context) { c.Next() }
		defaultLimit, authLimit, convertLimit = passthrough, passthrough, passthrough
	}

	// Handlers
	authHandlers := admin.NewAuthHandlers(cfg, db)
	apiKeyHandlers := admin.NewAPIKeyHandlers(cfg, db)
	userHandlers := admin.NewUserHandlers(db)
	statsHandler := admin.NewStatsHandler(sqlxDB)
	convertHandlers := files.NewConvertHandlers(cfg, db, stager)
	compressHandlers := files.NewCompressHandlers(cfg, stager)

	// Product endpoints
	product := router.Group("/convertify/api")
	product.Use(convertLimit)
	{
		product.POST("/convert",
			middleware.AuthMiddleware(userRepo, apiKeyRepo),
			middleware.RequireActiveUser(),
			convertHandlers.ConvertHandler())
		product.POST("/compress",
			middleware.OptionalAuthMiddleware(userRepo, apiKeyRepo),
			middleware.RequireActiveUser(),
			compressHandlers.CompressHandler())
	}

	// Account endpoints
	authGroup := router.Group("/api/v1/auth")
	authGroup.Use(authLimit)
	{
		authGroup.POST("/register", authHandlers.RegisterHandler())
		authGroup.POST("/login", authHandlers.LoginHandler())
		authGroup.POST("/logout", authHandlers.LogoutHandler())
		authGroup.GET("/me",
			middleware.AuthMiddleware(userRepo, apiKeyRepo),
			middleware.RequireActiveUser(),
			authHandlers.MeHandler())
	}

	// Admin dashboard endpoints
	adminGroup := router.Group("/api/v1/admin")
	adminGroup.Use(defaultLimit)
	adminGroup.Use(middleware.AuthMiddleware(userRepo, apiKeyRepo))
	adminGroup.Use(middleware.RequireActiveUser())
	adminGroup.Use(middleware.RequireAdmin())
	{
		adminGroup.POST("/apikeys", apiKeyHandlers.CreateAPIKeyHandler())
		adminGroup.GET("/apikeys", apiKeyHandlers.ListAPIKeysHandler())
		adminGroup.POST("/apikeys/:id/revoke", apiKeyHandlers.RevokeAPIKeyHandler())
		adminGroup.PUT("/apikeys/:id/limit", apiKeyHandlers.UpdateDailyLimitHandler())
		adminGroup.DELETE("/apikeys/:id", apiKeyHandlers.DeleteAPIKeyHandler())

		adminGroup.GET("/users", userHandlers.ListUsersHandler())
		adminGroup.GET("/users/:id", userHandlers.GetUserHandler())
		adminGroup.PUT("/users/:id/active", userHandlers.SetActiveHandler())
		adminGroup.PUT("/users/:id/role", userHandlers.SetRoleHandler())
		adminGroup.DELETE("/users/:id", userHandlers.DeleteUserHandler())

		adminGroup.GET("/stats/dashboard", statsHandler.GetDashboardStats)
		adminGroup.GET("/stats/usage", statsHandler.GetDailyUsage)
	}

	return router, bg
}

// @Summary      Health check
// @Description  Returns the health status of the service. Checks database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the global
	// handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
