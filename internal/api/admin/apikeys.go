// Package admin implements the admin dashboard API handlers: account
// authentication, API key management, user administration, and usage
// statistics. All routes except the auth endpoints require an admin JWT.
package admin

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/convertify/convertify/internal/auth"
	"github.com/convertify/convertify/internal/config"
	"github.com/convertify/convertify/internal/db/models"
	"github.com/convertify/convertify/internal/db/repositories"
)

// APIKeyHandlers handles admin API key management endpoints
type APIKeyHandlers struct {
	cfg        *config.Config
	userRepo   *repositories.UserRepository
	apiKeyRepo *repositories.APIKeyRepository
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance
func NewAPIKeyHandlers(cfg *config.Config, db *sql.DB) *APIKeyHandlers {
	return &APIKeyHandlers{
		cfg:        cfg,
		userRepo:   repositories.NewUserRepository(db),
		apiKeyRepo: repositories.NewAPIKeyRepository(db),
	}
}

// CreateAPIKeyRequest represents the request to create an API key
type CreateAPIKeyRequest struct {
	UserID string `json:"user_id" binding:"required"`
	// DailyLimit defaults to auth.api_keys.default_daily_limit when omitted.
	DailyLimit int `json:"daily_limit" binding:"omitempty,min=1"`
}

// CreateAPIKeyResponse represents the response after creating an API key
type CreateAPIKeyResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Key        string    `json:"key"` // IMPORTANT: Only returned once at creation
	KeyPrefix  string    `json:"key_prefix"`
	DailyLimit int       `json:"daily_limit"`
	CreatedAt  time.Time `json:"created_at"`
}

// APIKeyResponse is the listing shape of an API key. The hash and the raw key
// are never included.
type APIKeyResponse struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	UserEmail  *string    `json:"user_email,omitempty"`
	KeyPrefix  string     `json:"key_prefix"`
	DailyLimit int        `json:"daily_limit"`
	TodayUsage int        `json:"today_usage"`
	TotalUsage int64      `json:"total_usage"`
	Remaining  int        `json:"remaining"`
	Revoked    bool       `json:"revoked"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func toAPIKeyResponse(k *models.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID,
		UserID:     k.UserID,
		UserEmail:  k.UserEmail,
		KeyPrefix:  k.KeyPrefix,
		DailyLimit: k.DailyLimit,
		TodayUsage: k.TodayUsage,
		TotalUsage: k.TotalUsage,
		Remaining:  k.Remaining(),
		Revoked:    k.Revoked,
		CreatedAt:  k.CreatedAt,
		LastUsedAt: k.LastUsedAt,
	}
}

// @Summary      Create API key
// @Description  Generates a new API key for a user. The raw key is returned exactly once; only its bcrypt hash is stored.
// @Tags         APIKeys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        request  body  CreateAPIKeyRequest  true  "Key details"
// @Success      201  {object}  CreateAPIKeyResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/apikeys [post]
// CreateAPIKeyHandler generates a new API key for a user
// POST /api/v1/admin/apikeys
func (h *APIKeyHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required and daily_limit must be positive"})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), req.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		dailyLimit := req.DailyLimit
		if dailyLimit <= 0 {
			dailyLimit = h.cfg.Auth.APIKeys.DefaultDailyLimit
		}

		key, hash, displayPrefix, err := auth.GenerateAPIKey(h.cfg.Auth.APIKeys.Prefix)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate API key"})
			return
		}

		apiKey := &models.APIKey{
			UserID:     user.ID,
			KeyHash:    hash,
			KeyPrefix:  displayPrefix,
			DailyLimit: dailyLimit,
		}
		if err := h.apiKeyRepo.CreateAPIKey(c.Request.Context(), apiKey); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store API key"})
			return
		}

		c.JSON(http.StatusCreated, CreateAPIKeyResponse{
			ID:         apiKey.ID,
			UserID:     apiKey.UserID,
			Key:        key, // Only returned once
			KeyPrefix:  apiKey.KeyPrefix,
			DailyLimit: apiKey.DailyLimit,
			CreatedAt:  apiKey.CreatedAt,
		})
	}
}

// @Summary      List API keys
// @Description  Lists all API keys with owner emails. Supports filtering by owner email substring and by status (active|revoked).
// @Tags         APIKeys
// @Security     Bearer
// @Produce      json
// @Param        search  query  string  false  "Owner email substring"
// @Param        status  query  string  false  "active or revoked"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/apikeys [get]
// ListAPIKeysHandler lists API keys for the admin dashboard
// GET /api/v1/admin/apikeys?search=&status=
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		if status != "" && status != "active" && status != "revoked" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be 'active' or 'revoked'"})
			return
		}

		keys, err := h.apiKeyRepo.SearchAPIKeys(c.Request.Context(), c.Query("search"), status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list API keys"})
			return
		}

		resp := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, toAPIKeyResponse(k))
		}
		c.JSON(http.StatusOK, gin.H{"api_keys": resp, "total": len(resp)})
	}
}

// @Summary      Revoke API key
// @Description  Revokes an API key. Revoked keys stop authenticating immediately and no longer count toward the owner's quota.
// @Tags         APIKeys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "API key ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Router       /api/v1/admin/apikeys/{id}/revoke [post]
// RevokeAPIKeyHandler revokes an API key
// POST /api/v1/admin/apikeys/:id/revoke
func (h *APIKeyHandlers) RevokeAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID := c.Param("id")

		key, err := h.apiKeyRepo.GetAPIKeyByID(c.Request.Context(), keyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up API key"})
			return
		}
		if key == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}

		if err := h.apiKeyRepo.RevokeAPIKey(c.Request.Context(), keyID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke API key"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
	}
}

// UpdateDailyLimitRequest represents the request to change a key's allowance
type UpdateDailyLimitRequest struct {
	DailyLimit int `json:"daily_limit" binding:"required,min=1"`
}

// @Summary      Update API key daily limit
// @Description  Changes the key's daily request allowance. Takes effect on the next request; today's usage is not reset.
// @Tags         APIKeys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id       path  string                   true  "API key ID"
// @Param        request  body  UpdateDailyLimitRequest  true  "New limit"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Invalid limit"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Router       /api/v1/admin/apikeys/{id}/limit [put]
// UpdateDailyLimitHandler changes an API key's daily allowance
// PUT /api/v1/admin/apikeys/:id/limit
func (h *APIKeyHandlers) UpdateDailyLimitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID := c.Param("id")

		var req UpdateDailyLimitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "daily_limit must be a positive integer"})
			return
		}

		key, err := h.apiKeyRepo.GetAPIKeyByID(c.Request.Context(), keyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up API key"})
			return
		}
		if key == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}

		if err := h.apiKeyRepo.UpdateDailyLimit(c.Request.Context(), keyID, req.DailyLimit); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update daily limit"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Daily limit updated", "daily_limit": req.DailyLimit})
	}
}

// @Summary      Delete API key
// @Description  Permanently deletes an API key. Prefer revocation; deletion erases the key's usage counters.
// @Tags         APIKeys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "API key ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Router       /api/v1/admin/apikeys/{id} [delete]
// DeleteAPIKeyHandler permanently deletes an API key
// DELETE /api/v1/admin/apikeys/:id
func (h *APIKeyHandlers) DeleteAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID := c.Param("id")

		key, err := h.apiKeyRepo.GetAPIKeyByID(c.Request.Context(), keyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up API key"})
			return
		}
		if key == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}

		if err := h.apiKeyRepo.DeleteAPIKey(c.Request.Context(), keyID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete API key"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "API key deleted"})
	}
}
