// Package admin implements the admin API: password/TOTP/magic-link login and
// the read-only program dashboard endpoints behind it.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dotctl/beta-portal/internal/auth"
	"github.com/dotctl/beta-portal/internal/config"
	"github.com/dotctl/beta-portal/internal/db/models"
	"github.com/dotctl/beta-portal/internal/db/repositories"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// AdminStore is the admin-account persistence surface the handlers need.
type AdminStore interface {
	GetAdminUserByID(ctx context.Context, id string) (*models.AdminUser, error)
	GetAdminUserByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockoutUntil time.Time) (int, error)
	ResetLoginAttempts(ctx context.Context, id string, lastLogin time.Time) error
	SetMagicLink(ctx context.Context, id, tokenHash string, expiresAt time.Time, purpose string) error
	ConsumeMagicLink(ctx context.Context, tokenHash string, now time.Time) (*models.AdminUser, error)
	ConsumeBackupCode(ctx context.Context, id, code string) (bool, error)
}

// ProgramStore is the beta-program read surface behind the dashboard.
type ProgramStore interface {
	ListBetaUsers(ctx context.Context, limit, offset int) ([]*models.BetaUser, int, error)
	GetStats(ctx context.Context) (*repositories.BetaStats, error)
}

// Mailer delivers magic links and security alerts. May be nil when email is
// disabled; magic-link login is then effectively unavailable.
type Mailer interface {
	SendMagicLink(ctx context.Context, admin *models.AdminUser, token string, ttl time.Duration) error
	SendSecurityAlert(ctx context.Context, admin *models.AdminUser, message, remoteIP string) error
}

// Handlers serves the admin API.
type Handlers struct {
	admins  AdminStore
	program ProgramStore
	tokens  *auth.TokenService
	mailer  Mailer
	cfg     config.AuthConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandlers creates the admin handlers. mailer may be nil.
func NewHandlers(admins AdminStore, program ProgramStore, tokens *auth.TokenService,
	mailer Mailer, cfg config.AuthConfig, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		admins:  admins,
		program: program,
		tokens:  tokens,
		mailer:  mailer,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// @Summary      List beta signups
// @Description  Returns beta participants newest first, paginated.
// @Tags         Admin
// @Produce      json
// @Param        limit   query  int  false  "Page size (max 200)"
// @Param        offset  query  int  false  "Offset"
// @Success      200  {object}  map[string]interface{}
// @Security     BearerAuth
// @Router       /api/admin/users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	limit := parseQueryInt(c, "limit", defaultPageSize)
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := parseQueryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	users, total, err := h.program.ListBetaUsers(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list beta users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
		return
	}

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, gin.H{
			"id":              u.ID,
			"email":           u.Email,
			"name":            u.Name,
			"use_case":        u.UseCase,
			"referral_code":   u.ReferralCode,
			"referred_by":     u.ReferredBy,
			"referral_count":  u.ReferralCount,
			"reward_months":   u.RewardMonths,
			"signup_position": u.SignupPosition,
			"created_at":      u.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"users":  out,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// @Summary      Program statistics
// @Description  Aggregate signup, referral and device-link figures for the dashboard.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Security     BearerAuth
// @Router       /api/admin/stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.program.GetStats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load program stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_signups":       stats.TotalSignups,
		"referred_signups":    stats.ReferredSignups,
		"total_reward_months": stats.TotalRewardMonths,
		"linked_devices":      stats.LinkedDevices,
	})
}

func parseQueryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
