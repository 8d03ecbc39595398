// @title           Beta Portal API
// @version         1.0.0
// @description     Beta signup portal with referral rewards, device license linking, and admin dashboard
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 "JWT access token: 'Bearer {token}'"
//
// @tag.name         System
// @tag.description  Health, readiness, and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated side-channel port (default: 9090) separate from the main API server, keeping the scrape path off the public ingress and away from rate-limiting middleware. Configure with BETA_TELEMETRY_METRICS_PROMETHEUS_PORT. The endpoint path is always GET /metrics.

// Package main is the entry point for the beta portal server binary.
// It dispatches four subcommands — serve, migrate, setup-admin, and version —
// via a simple switch on os.Args so the binary's full CLI surface is readable
// in one place without requiring a cobra dependency. The serve command runs
// auto-migration on startup so freshly deployed containers never need a
// separate migration step.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dotctl/beta-portal/internal/api"
	"github.com/dotctl/beta-portal/internal/auth"
	"github.com/dotctl/beta-portal/internal/config"
	"github.com/dotctl/beta-portal/internal/db"
	"github.com/dotctl/beta-portal/internal/db/models"
	"github.com/dotctl/beta-portal/internal/db/repositories"
	"github.com/dotctl/beta-portal/internal/safego"
	"github.com/dotctl/beta-portal/internal/telemetry"
)

const (
	version = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	// Parse command from args
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Execute command
	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "setup-admin":
		return setupAdmin(cfg)
	case "version":
		fmt.Printf("Beta Portal v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, setup-admin, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Initialise structured logger as early as possible so all subsequent log output
	// uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Println("Connected to database successfully")

	// Begin exporting DB pool statistics to Prometheus.
	telemetry.StartDBStatsCollector(database)

	// Run migrations automatically on startup
	log.Println("Running database migrations...")
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Database migrations completed successfully")

	schemaVersion, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Printf("Warning: failed to get migration version: %v", err)
	} else {
		log.Printf("Database schema version: %d (dirty: %v)", schemaVersion, dirty)
	}

	sqlxDB := sqlx.NewDb(database, "postgres")

	// Connect to Redis when configured. Failure is not fatal: the rate limiter
	// falls back to its in-process store and logs the failover.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			slog.Warn("redis unreachable at startup; rate limiting will use the in-process store",
				"addr", cfg.Redis.Addr, "error", err)
		} else {
			log.Println("Connected to Redis successfully")
		}
		cancel()
	}

	// Start Prometheus metrics endpoint on a dedicated port so it is not reachable
	// through the public API ingress path.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		safego.Go(func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	// Create router
	router, bgServices, err := api.NewRouter(cfg, sqlxDB, redisClient)
	if err != nil {
		return err
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", cfg.Server.GetAddress())
		log.Printf("Base URL: %s", cfg.Server.BaseURL)
		log.Println("Server is ready to accept connections")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop background jobs and rate limiter goroutines
	bgServices.Shutdown()

	log.Println("Server stopped gracefully")
	return nil
}

// setupAdmin bootstraps the first super_admin account. It refuses to run when
// any admin account already exists; further accounts are created by an
// existing super admin, not by shell access to the box.
func setupAdmin(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if len(os.Args) < 4 {
		return fmt.Errorf("usage: %s setup-admin <username> <email> [--with-2fa]", os.Args[0])
	}
	username, email := os.Args[2], os.Args[3]
	with2FA := len(os.Args) > 4 && os.Args[4] == "--with-2fa"

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	repo := repositories.NewAdminUserRepository(sqlx.NewDb(database, "postgres"))
	ctx := context.Background()

	existing, err := repo.CountAdminUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to count admin accounts: %w", err)
	}
	if existing > 0 {
		return fmt.Errorf("refusing to bootstrap: %d admin account(s) already exist", existing)
	}

	password, err := auth.GeneratePassword()
	if err != nil {
		return fmt.Errorf("failed to generate password: %w", err)
	}
	hash, err := auth.HashPassword(password, cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &models.AdminUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         string(auth.RoleSuperAdmin),
		IsActive:     true,
	}

	var totpURL string
	var backupCodes []string
	if with2FA {
		secret, url, err := auth.GenerateTOTPSecret("Beta Portal", email)
		if err != nil {
			return fmt.Errorf("failed to generate totp secret: %w", err)
		}
		backupCodes, err = auth.GenerateBackupCodes()
		if err != nil {
			return fmt.Errorf("failed to generate backup codes: %w", err)
		}
		admin.TwoFactorEnabled = true
		admin.TwoFactorSecret = &secret
		admin.BackupCodes = backupCodes
		totpURL = url
	}

	if err := repo.CreateAdminUser(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	// The password is shown exactly once; only its hash is stored.
	fmt.Println("")
	fmt.Println("══════════════════════════════════════════════════════════════════")
	fmt.Println("  ADMIN ACCOUNT CREATED")
	fmt.Println("")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Email:    %s\n", email)
	fmt.Printf("  Password: %s\n", password)
	if with2FA {
		fmt.Println("")
		fmt.Printf("  TOTP enrollment URL (scan with an authenticator app):\n  %s\n", totpURL)
		fmt.Println("")
		fmt.Println("  Backup codes (single use):")
		for _, code := range backupCodes {
			fmt.Printf("    %s\n", code)
		}
	}
	fmt.Println("")
	if with2FA {
		fmt.Println("  These credentials will not be shown again.")
	} else {
		fmt.Println("  This password will not be shown again. Sign in and enable")
		fmt.Println("  two-factor authentication before inviting other admins.")
	}
	fmt.Println("══════════════════════════════════════════════════════════════════")
	fmt.Println("")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	schemaVersion, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", schemaVersion, dirty)
	return nil
}
