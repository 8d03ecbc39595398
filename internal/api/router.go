// Package api wires together all HTTP routes for the beta portal.
//
// Route grouping philosophy:
//   - The signup routes (/api/submit, /api/referral, /api/check-user) and the
//     dotctl device routes (/api/dotctl/referral/...) are unauthenticated; the
//     signup page and CLI client have no credentials. They are guarded by rate
//     limit policies instead.
//   - Admin routes (/api/admin/) require a bearer token and the appropriate
//     permission, except for the login surface itself, which carries the
//     failure-counting auth policy.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/dotctl/beta-portal/internal/api/admin"
	"github.com/dotctl/beta-portal/internal/api/devices"
	"github.com/dotctl/beta-portal/internal/api/signup"
	"github.com/dotctl/beta-portal/internal/auth"
	"github.com/dotctl/beta-portal/internal/config"
	"github.com/dotctl/beta-portal/internal/db/repositories"
	"github.com/dotctl/beta-portal/internal/jobs"
	"github.com/dotctl/beta-portal/internal/license"
	"github.com/dotctl/beta-portal/internal/middleware"
	"github.com/dotctl/beta-portal/internal/notify"
	"github.com/dotctl/beta-portal/internal/ratelimit"
	"github.com/dotctl/beta-portal/internal/referral"
)

// BackgroundServices holds background jobs and resources that must be stopped
// during graceful shutdown. The caller (cmd/server) is responsible for calling
// Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	reaper      *jobs.CredentialReaper
	memoryStore *ratelimit.MemoryStore
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.reaper != nil {
		bg.reaper.Stop()
	}
	if bg.memoryStore != nil {
		bg.memoryStore.Stop()
	}
}

// NewRouter creates the gin engine with all routes, middleware and background
// services configured. redisClient may be nil; rate limiting then runs on the
// in-process store alone.
func NewRouter(cfg *config.Config, database *sqlx.DB, redisClient *redis.Client) (*gin.Engine, *BackgroundServices, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	betaUsers := repositories.NewBetaUserRepository(database.DB)
	deviceLinks := repositories.NewDeviceLinkRepository(database)
	adminUsers := repositories.NewAdminUserRepository(database)

	logger := slog.Default()

	// The mailer satisfies three narrower interfaces; assign through locals so
	// a disabled mailer stays a nil interface rather than a typed nil.
	var (
		notifier    referral.Notifier
		otpSender   license.OTPSender
		adminMailer admin.Mailer
	)
	if cfg.Notifications.Enabled {
		mailer := notify.NewMailer(cfg.Notifications.SMTP, cfg.Server.GetPublicURL(), logger)
		notifier = mailer
		otpSender = mailer
		adminMailer = mailer
	} else {
		logger.Warn("notifications disabled; welcome, otp and magic-link emails will not be sent")
	}

	ledger := referral.NewLedger(betaUsers, notifier, logger, cfg.Referral.CodePrefix, cfg.Referral.CodeLength)
	binder := license.NewBinder(betaUsers, deviceLinks, otpSender, logger, cfg.Auth.OTPTTL)

	memoryStore := ratelimit.NewMemoryStore()
	var limiter *ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewLimiter(ratelimit.NewRedisStore(redisClient), memoryStore, logger)
	} else {
		limiter = ratelimit.NewLimiter(memoryStore, nil, logger)
	}

	reaper := jobs.NewCredentialReaper(betaUsers, adminUsers,
		time.Duration(cfg.Notifications.CredentialReaperIntervalMinutes)*time.Minute, logger)
	reaper.Start()

	bg := &BackgroundServices{
		reaper:      reaper,
		memoryStore: memoryStore,
	}

	signupHandlers := signup.NewHandlers(ledger)
	deviceHandlers := devices.NewHandlers(binder)
	adminHandlers := admin.NewHandlers(adminUsers, betaUsers, tokens, adminMailer, cfg.Auth, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// System endpoints
	router.GET("/health", healthCheckHandler(database))
	router.GET("/ready", readinessHandler(database, redisClient))
	router.GET("/version", versionHandler())

	// Public signup surface
	public := router.Group("/api")
	{
		public.POST("/submit",
			middleware.RateLimitMiddleware(limiter, ratelimit.Strict), signupHandlers.Submit)
		public.GET("/referral",
			middleware.RateLimitMiddleware(limiter, ratelimit.Moderate), signupHandlers.LookupReferral)
		public.POST("/check-user",
			middleware.RateLimitMiddleware(limiter, ratelimit.Moderate), signupHandlers.CheckUser)
	}

	// Device linking surface used by the dotctl client
	dotctl := router.Group("/api/dotctl/referral")
	{
		dotctl.POST("/request-otp",
			middleware.RateLimitMiddleware(limiter, ratelimit.Strict), deviceHandlers.RequestOTP)
		dotctl.POST("/link-device",
			middleware.RateLimitMiddleware(limiter, ratelimit.Strict), deviceHandlers.LinkDevice)
		dotctl.GET("/status",
			middleware.RateLimitMiddleware(limiter, ratelimit.Lenient), deviceHandlers.Status)
	}

	// Admin login surface: unauthenticated, failure-counting limits
	adminPublic := router.Group("/api/admin")
	adminPublic.Use(middleware.RateLimitMiddleware(limiter, ratelimit.Auth))
	{
		adminPublic.POST("/login", adminHandlers.Login)
		adminPublic.POST("/verify-2fa", adminHandlers.Verify2FA)
		adminPublic.POST("/magic-link", adminHandlers.MagicLink)
		adminPublic.GET("/magic-login", adminHandlers.MagicLogin)
		adminPublic.POST("/refresh", adminHandlers.Refresh)
	}

	// Admin protected surface
	adminProtected := router.Group("/api/admin")
	adminProtected.Use(
		middleware.AuthMiddleware(tokens),
		middleware.RateLimitMiddleware(limiter, ratelimit.PerUser),
	)
	{
		adminProtected.GET("/verify", adminHandlers.Verify)
		adminProtected.GET("/users",
			middleware.RequirePermission(auth.PermissionUsers), adminHandlers.ListUsers)
		adminProtected.GET("/stats",
			middleware.RequirePermission(auth.PermissionAnalytics), adminHandlers.Stats)
	}

	return router, bg, nil
}

func healthCheckHandler(database *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.Ping(); err != nil {
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

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database and, when configured, Redis connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: dependency not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service. Unlike the
// liveness probe (/health), this also checks Redis when it is configured.
// Redis degradation is reported but does not fail readiness: rate limiting
// falls back to the in-process store.
func readinessHandler(database *sqlx.DB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := database.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if redisClient != nil {
			if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
				checks["redis"] = "degraded"
			} else {
				checks["redis"] = "healthy"
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
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

// CORSMiddleware handles CORS. The signup form is served from a separate
// static host, so cross-origin requests are expected; the API carries no
// cookies, so a permissive policy is safe.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
