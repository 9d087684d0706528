// auth.go implements HTTP handlers for account registration, password login,
// logout, and the current-user endpoint.
package admin

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/convertify/convertify/internal/auth"
	"github.com/convertify/convertify/internal/config"
	"github.com/convertify/convertify/internal/db/models"
	"github.com/convertify/convertify/internal/db/repositories"
	"github.com/convertify/convertify/internal/safego"
)

// AuthHandlers handles authentication-related endpoints
type AuthHandlers struct {
	cfg        *config.Config
	userRepo   *repositories.UserRepository
	apiKeyRepo *repositories.APIKeyRepository
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(cfg *config.Config, db *sql.DB) *AuthHandlers {
	return &AuthHandlers{
		cfg:        cfg,
		userRepo:   repositories.NewUserRepository(db),
		apiKeyRepo: repositories.NewAPIKeyRepository(db),
	}
}

// RegisterRequest represents the request body for account registration
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// UserResponse is the public shape of a user account. The password hash is
// never included.
type UserResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	IsAdmin     bool       `json:"is_admin"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LoginCount  int        `json:"login_count"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		IsAdmin:     u.IsAdmin,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
		LoginCount:  u.LoginCount,
	}
}

// @Summary      Register a new account
// @Description  Creates a user account from an email address and password. New accounts are active non-admins.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body  RegisterRequest  true  "Registration details"
// @Success      201  {object}  UserResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid email or password"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/v1/auth/register [post]
// RegisterHandler creates a new user account
// POST /api/v1/auth/register
func (h *AuthHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: email and a password of at least 8 characters are required",
			})
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))

		existing, err := h.userRepo.GetUserByEmail(c.Request.Context(), email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check existing accounts"})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Email is already registered"})
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}

		user := &models.User{
			Email:        email,
			PasswordHash: hash,
			IsActive:     true,
		}
		if err := h.userRepo.CreateUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			return
		}

		c.JSON(http.StatusCreated, toUserResponse(user))
	}
}

// LoginRequest represents the request body for password login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the session token issued after a successful login
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int          `json:"expires_in"` // seconds
	User      UserResponse `json:"user"`
}

// @Summary      Log in with email and password
// @Description  Verifies the password and issues a JWT session token. Deactivated accounts cannot log in.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  LoginResponse
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials"
// @Failure      403  {object}  map[string]interface{}  "Account is deactivated"
// @Router       /api/v1/auth/login [post]
// LoginHandler authenticates a user and issues a JWT
// POST /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))

		user, err := h.userRepo.GetUserByEmail(c.Request.Context(), email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up account"})
			return
		}
		// Identical response for unknown email and wrong password so the
		// endpoint cannot be used to enumerate registered addresses.
		if user == nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		if !user.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is deactivated"})
			return
		}

		expiresIn := h.cfg.Auth.JWT.Expiration
		if expiresIn <= 0 {
			expiresIn = 24 * time.Hour
		}
		token, err := auth.GenerateJWT(user.ID, user.Email, expiresIn)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate session token"})
			return
		}

		// Login bookkeeping happens off the request path; a failed UPDATE
		// must not turn a correct password into a login error.
		userID, ip := user.ID, c.ClientIP()
		safego.Go("record-login", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.userRepo.RecordLogin(ctx, userID, ip); err != nil {
				slog.Error("failed to record login", "user_id", userID, "error", err)
			}
		})

		c.JSON(http.StatusOK, LoginResponse{
			Token:     token,
			ExpiresIn: int(expiresIn.Seconds()),
			User:      toUserResponse(user),
		})
	}
}

// @Summary      Log out
// @Description  Acknowledges logout. Sessions are stateless JWTs, so the client discards the token; nothing is stored server-side.
// @Tags         Authentication
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/auth/logout [post]
// LogoutHandler acknowledges a logout request
// POST /api/v1/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// UsageResponse summarises API key consumption for the current user
type UsageResponse struct {
	DailyLimit int   `json:"daily_limit"`
	TodayUsage int   `json:"today_usage"`
	TotalUsage int64 `json:"total_usage"`
}

// @Summary      Get current user
// @Description  Returns the authenticated account together with its summed API key allowance and usage.
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/auth/me [get]
// MeHandler returns the current authenticated user's account and usage summary
// GET /api/v1/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userVal, exists := c.Get("user")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}
		user, ok := userVal.(*models.User)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user context"})
			return
		}

		summary, err := h.apiKeyRepo.GetUsageSummary(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage summary"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": toUserResponse(user),
			"usage": UsageResponse{
				DailyLimit: summary.DailyLimit,
				TodayUsage: summary.TodayUsage,
				TotalUsage: summary.TotalUsage,
			},
		})
	}
}
