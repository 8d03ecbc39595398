package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dotctl/beta-portal/internal/auth"
	"github.com/dotctl/beta-portal/internal/db/models"
	"github.com/dotctl/beta-portal/internal/middleware"
	"github.com/dotctl/beta-portal/internal/telemetry"
)

// LoginRequest is the password login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Verify2FARequest completes a two-factor login. The password is re-presented
// so the second step carries no server-side session state.
type Verify2FARequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

// @Summary      Admin password login
// @Description  Verifies credentials. Accounts with two-factor enabled receive a pending marker and must complete verify-2fa; others receive tokens directly.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials"
// @Failure      423  {object}  map[string]interface{}  "Account locked"
// @Router       /api/admin/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	admin, ok := h.authenticate(c, req.Email, req.Password)
	if !ok {
		return
	}

	if admin.TwoFactorEnabled {
		telemetry.AdminLoginAttemptsTotal.WithLabelValues("2fa_pending").Inc()
		c.JSON(http.StatusOK, gin.H{"two_factor_required": true})
		return
	}

	h.completeLogin(c, admin)
}

// @Summary      Complete a two-factor login
// @Description  Verifies a TOTP code or a single-use backup code after a successful password check.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials or code"
// @Router       /api/admin/verify-2fa [post]
func (h *Handlers) Verify2FA(c *gin.Context) {
	var req Verify2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	admin, ok := h.authenticate(c, req.Email, req.Password)
	if !ok {
		return
	}
	if !admin.TwoFactorEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Two-factor authentication is not enabled"})
		return
	}

	code := strings.TrimSpace(req.Code)
	verified := admin.TwoFactorSecret != nil && auth.VerifyTOTP(*admin.TwoFactorSecret, code, h.cfg.TOTPSkew)
	if !verified {
		used, err := h.admins.ConsumeBackupCode(c.Request.Context(), admin.ID, strings.ToUpper(code))
		if err != nil {
			h.logger.Error("failed to check backup code", "admin_id", admin.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}
		verified = used
	}
	if !verified {
		h.recordFailure(c, admin)
		telemetry.AdminLoginAttemptsTotal.WithLabelValues("2fa_failure").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid verification code"})
		return
	}

	h.completeLogin(c, admin)
}

// MagicLinkRequest asks for a passwordless sign-in link.
type MagicLinkRequest struct {
	Email string `json:"email" binding:"required"`
}

// @Summary      Request a magic sign-in link
// @Description  Emails a single-use sign-in link. The response is identical whether or not the email has an account.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/admin/magic-link [post]
func (h *Handlers) MagicLink(c *gin.Context) {
	var req MagicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	// The response never varies, so the endpoint cannot be used to probe for
	// admin accounts.
	respond := func() {
		c.JSON(http.StatusOK, gin.H{"message": "If that email has an account, a sign-in link has been sent"})
	}

	admin, err := h.admins.GetAdminUserByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		h.logger.Error("failed to look up admin for magic link", "error", err)
		respond()
		return
	}
	if admin == nil || !admin.IsActive || h.mailer == nil {
		respond()
		return
	}

	token, err := auth.GenerateMagicLinkToken()
	if err != nil {
		h.logger.Error("failed to generate magic link token", "error", err)
		respond()
		return
	}

	expiresAt := h.now().Add(h.cfg.MagicLinkTTL)
	if err := h.admins.SetMagicLink(c.Request.Context(), admin.ID, auth.HashToken(token), expiresAt, "login"); err != nil {
		h.logger.Error("failed to store magic link", "admin_id", admin.ID, "error", err)
		respond()
		return
	}
	if err := h.mailer.SendMagicLink(c.Request.Context(), admin, token, h.cfg.MagicLinkTTL); err != nil {
		h.logger.Error("failed to send magic link", "admin_id", admin.ID, "error", err)
	}
	respond()
}

// @Summary      Sign in with a magic link
// @Description  Consumes a single-use sign-in token and issues tokens. A reused or expired token is rejected identically to an unknown one.
// @Tags         Admin
// @Produce      json
// @Param        token  query  string  true  "Magic link token"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}  "Invalid or expired link"
// @Router       /api/admin/magic-login [get]
func (h *Handlers) MagicLogin(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	admin, err := h.admins.ConsumeMagicLink(c.Request.Context(), auth.HashToken(token), h.now())
	if err != nil {
		h.logger.Error("failed to consume magic link", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	if admin == nil {
		telemetry.AdminLoginAttemptsTotal.WithLabelValues("failure").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired sign-in link"})
		return
	}

	h.completeLogin(c, admin)
}

// RefreshRequest exchanges a refresh token for a new token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// @Summary      Refresh tokens
// @Description  Exchanges a valid refresh token for a fresh access/refresh pair. The account is re-read so deactivation and role changes take effect.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}  "Invalid token"
// @Router       /api/admin/refresh [post]
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	claims := h.tokens.VerifyRefreshToken(req.RefreshToken)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	admin, err := h.admins.GetAdminUserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("failed to load admin for refresh", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	if admin == nil || !admin.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	h.issueTokens(c, admin)
}

// @Summary      Verify the current token
// @Description  Echoes the authenticated identity carried by the access token.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Security     BearerAuth
// @Router       /api/admin/verify [get]
func (h *Handlers) Verify(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"id":          c.GetString(middleware.UserIDKey),
		"username":    c.GetString(middleware.UsernameKey),
		"email":       c.GetString(middleware.EmailKey),
		"role":        c.GetString(middleware.RoleKey),
		"permissions": c.GetStringSlice(middleware.PermissionsKey),
	})
}

// authenticate runs the shared password stage: account lookup, lockout check
// and bcrypt verification. On failure it writes the response and returns
// ok=false. Unknown accounts and wrong passwords are indistinguishable.
func (h *Handlers) authenticate(c *gin.Context, email, password string) (*models.AdminUser, bool) {
	admin, err := h.admins.GetAdminUserByEmail(c.Request.Context(), strings.TrimSpace(email))
	if err != nil {
		h.logger.Error("failed to load admin account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return nil, false
	}
	if admin == nil || !admin.IsActive {
		telemetry.AdminLoginAttemptsTotal.WithLabelValues("failure").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return nil, false
	}

	if admin.IsLockedOut(h.now()) {
		telemetry.AdminLoginAttemptsTotal.WithLabelValues("locked").Inc()
		c.JSON(http.StatusLocked, gin.H{"error": "Account temporarily locked"})
		return nil, false
	}

	if !auth.CheckPassword(admin.PasswordHash, password) {
		h.recordFailure(c, admin)
		telemetry.AdminLoginAttemptsTotal.WithLabelValues("failure").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return nil, false
	}

	return admin, true
}

// recordFailure bumps the failed-attempt counter and alerts the account owner
// when the failure crosses the lockout threshold.
func (h *Handlers) recordFailure(c *gin.Context, admin *models.AdminUser) {
	lockoutUntil := h.now().Add(h.cfg.LockoutDuration)
	attempts, err := h.admins.RecordFailedLogin(c.Request.Context(), admin.ID, h.cfg.MaxLoginAttempts, lockoutUntil)
	if err != nil {
		h.logger.Error("failed to record login failure", "admin_id", admin.ID, "error", err)
		return
	}
	if attempts == h.cfg.MaxLoginAttempts && h.mailer != nil {
		msg := "Your account has been locked after repeated failed login attempts."
		if err := h.mailer.SendSecurityAlert(c.Request.Context(), admin, msg, c.ClientIP()); err != nil {
			h.logger.Warn("failed to send lockout alert", "admin_id", admin.ID, "error", err)
		}
	}
}

// completeLogin clears the failure counter and issues tokens.
func (h *Handlers) completeLogin(c *gin.Context, admin *models.AdminUser) {
	if err := h.admins.ResetLoginAttempts(c.Request.Context(), admin.ID, h.now()); err != nil {
		h.logger.Warn("failed to reset login attempts", "admin_id", admin.ID, "error", err)
	}
	telemetry.AdminLoginAttemptsTotal.WithLabelValues("success").Inc()
	h.issueTokens(c, admin)
}

func (h *Handlers) issueTokens(c *gin.Context, admin *models.AdminUser) {
	identity := auth.Identity{
		ID:       admin.ID,
		Username: admin.Username,
		Email:    admin.Email,
		Role:     auth.ParseRole(admin.Role),
	}

	accessToken, err := h.tokens.IssueAccessToken(identity)
	if err != nil {
		h.logger.Error("failed to issue access token", "admin_id", admin.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	refreshToken, err := h.tokens.IssueRefreshToken(identity)
	if err != nil {
		h.logger.Error("failed to issue refresh token", "admin_id", admin.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user": gin.H{
			"id":       admin.ID,
			"username": admin.Username,
			"email":    admin.Email,
			"role":     admin.Role,
		},
	})
}
