// users.go implements the admin user management handlers: listing, per-user
// profiles, activation and role toggles, and account deletion.
package admin

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/convertify/convertify/internal/db/repositories"
)

// UserHandlers handles admin user management endpoints
type UserHandlers struct {
	userRepo       *repositories.UserRepository
	apiKeyRepo     *repositories.APIKeyRepository
	requestLogRepo *repositories.RequestLogRepository
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(db *sql.DB) *UserHandlers {
	return &UserHandlers{
		userRepo:       repositories.NewUserRepository(db),
		apiKeyRepo:     repositories.NewAPIKeyRepository(db),
		requestLogRepo: repositories.NewRequestLogRepository(db),
	}
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
	// recentLogLimit bounds the request log sample on the profile page.
	recentLogLimit = 25
)

// @Summary      List users
// @Description  Returns a paginated user listing. Supports filtering by email substring and by role (admin|user).
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        page      query  int     false  "Page number (1-based)"
// @Param        per_page  query  int     false  "Page size (max 100)"
// @Param        search    query  string  false  "Email substring"
// @Param        role      query  string  false  "admin or user"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/users [get]
// ListUsersHandler returns a paginated, filtered user listing
// GET /api/v1/admin/users?page=&per_page=&search=&role=
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			page = 1
		}
		perPage, err := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
		if err != nil || perPage < 1 {
			perPage = defaultPerPage
		}
		if perPage > maxPerPage {
			perPage = maxPerPage
		}

		role := c.Query("role")
		if role != "" && role != "admin" && role != "user" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be 'admin' or 'user'"})
			return
		}

		users, total, err := h.userRepo.ListUsers(c.Request.Context(), c.Query("search"), role, perPage, (page-1)*perPage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}

		resp := make([]UserResponse, 0, len(users))
		for _, u := range users {
			resp = append(resp, toUserResponse(u))
		}
		c.JSON(http.StatusOK, gin.H{
			"users":    resp,
			"total":    total,
			"page":     page,
			"per_page": perPage,
		})
	}
}

// RequestLogEntry is the profile-page shape of one logged request
type RequestLogEntry struct {
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	StatusCode     int       `json:"status_code"`
	IPAddress      string    `json:"ip_address"`
	ResponseTimeMs int       `json:"response_time_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// @Summary      Get user profile
// @Description  Returns one user together with their API keys, request counts, and a sample of recent requests.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/users/{id} [get]
// GetUserHandler returns the admin profile view of one user
// GET /api/v1/admin/users/:id
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		ctx := c.Request.Context()

		user, err := h.userRepo.GetUserByID(ctx, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		keys, err := h.apiKeyRepo.ListAPIKeysByUser(ctx, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list API keys"})
			return
		}
		keyResp := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			keyResp = append(keyResp, toAPIKeyResponse(k))
		}

		totalRequests, todayRequests, err := h.requestLogRepo.CountByUser(ctx, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count requests"})
			return
		}

		// The recent-activity sample is decorative; an empty list beats a 500.
		entries := make([]RequestLogEntry, 0, recentLogLimit)
		if logs, logErr := h.requestLogRepo.ListRecentByUser(ctx, userID, recentLogLimit); logErr == nil {
			for _, l := range logs {
				entries = append(entries, RequestLogEntry{
					Endpoint:       l.Endpoint,
					Method:         l.Method,
					StatusCode:     l.StatusCode,
					IPAddress:      l.IPAddress,
					ResponseTimeMs: l.ResponseTimeMs,
					CreatedAt:      l.CreatedAt,
				})
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"user":     toUserResponse(user),
			"api_keys": keyResp,
			"requests": gin.H{
				"total":  totalRequests,
				"today":  todayRequests,
				"recent": entries,
			},
		})
	}
}

// SetActiveRequest represents the request to toggle account activation
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// @Summary      Activate or deactivate a user
// @Description  Toggles whether the account may use the service. Deactivated users keep their data but every authenticated request is refused. Admins cannot deactivate themselves.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id       path  string            true  "User ID"
// @Param        request  body  SetActiveRequest  true  "New activation state"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Invalid request or self-deactivation"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/v1/admin/users/{id}/active [put]
// SetActiveHandler toggles a user's activation state
// PUT /api/v1/admin/users/:id/active
func (h *UserHandlers) SetActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		var req SetActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
			return
		}

		// Locking yourself out of the admin dashboard is not recoverable
		// through the API.
		if callerID, _ := c.Get("user_id"); callerID == userID && !*req.IsActive {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot deactivate your own account"})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		if err := h.userRepo.SetActive(c.Request.Context(), userID, *req.IsActive); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User updated", "is_active": *req.IsActive})
	}
}

// SetRoleRequest represents the request to toggle the admin role
type SetRoleRequest struct {
	IsAdmin *bool `json:"is_admin" binding:"required"`
}

// @Summary      Grant or revoke the admin role
// @Description  Toggles the admin flag on an account. Admins cannot demote themselves.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id       path  string          true  "User ID"
// @Param        request  body  SetRoleRequest  true  "New role"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Invalid request or self-demotion"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/v1/admin/users/{id}/role [put]
// SetRoleHandler toggles a user's admin role
// PUT /api/v1/admin/users/:id/role
func (h *UserHandlers) SetRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		var req SetRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_admin is required"})
			return
		}

		if callerID, _ := c.Get("user_id"); callerID == userID && !*req.IsAdmin {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot remove your own admin role"})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		if err := h.userRepo.SetAdmin(c.Request.Context(), userID, *req.IsAdmin); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User updated", "is_admin": *req.IsAdmin})
	}
}

// @Summary      Delete user
// @Description  Deletes an account. API keys cascade; request log rows survive with user_id nulled. Admins cannot delete themselves.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Self-deletion"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/v1/admin/users/{id} [delete]
// DeleteUserHandler permanently deletes a user account
// DELETE /api/v1/admin/users/:id
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		if callerID, _ := c.Get("user_id"); callerID == userID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete your own account"})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		if err := h.userRepo.DeleteUser(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
	}
}
