// admin_user_repository.go implements AdminUserRepository, providing database queries
// for administrator identities: credentials, lockout state, 2FA material, and
// single-use magic links.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dotctl/beta-portal/internal/db/models"
)

// AdminUserRepository handles database operations for admin accounts
type AdminUserRepository struct {
	db *sqlx.DB
}

// NewAdminUserRepository creates a new admin user repository
func NewAdminUserRepository(db *sqlx.DB) *AdminUserRepository {
	return &AdminUserRepository{db: db}
}

// CreateAdminUser creates a new administrator account
func (r *AdminUserRepository) CreateAdminUser(ctx context.Context, user *models.AdminUser) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO admin_users (
			id, username, email, password_hash, role, is_active,
			two_factor_enabled, two_factor_secret, backup_codes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.IsActive,
		user.TwoFactorEnabled,
		user.TwoFactorSecret,
		pq.Array([]string(user.BackupCodes)),
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

// GetAdminUserByID retrieves an admin account by ID
func (r *AdminUserRepository) GetAdminUserByID(ctx context.Context, id string) (*models.AdminUser, error) {
	var user models.AdminUser
	query := `SELECT * FROM admin_users WHERE id = $1`
	err := r.db.GetContext(ctx, &user, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetAdminUserByEmail retrieves an admin account by email (case-insensitive)
func (r *AdminUserRepository) GetAdminUserByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	var user models.AdminUser
	query := `SELECT * FROM admin_users WHERE LOWER(email) = LOWER($1)`
	err := r.db.GetContext(ctx, &user, query, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CountAdminUsers returns the total number of admin accounts; the bootstrap
// subcommand refuses to run when any exist.
func (r *AdminUserRepository) CountAdminUsers(ctx context.Context) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM admin_users`)
	return total, err
}

// RecordFailedLogin increments the failed-attempt counter and, when the counter
// reaches maxAttempts, sets the lockout deadline. The CASE keeps increment and
// lockout in one statement so concurrent failures cannot skip the lockout.
// Returns the post-increment attempt count.
func (r *AdminUserRepository) RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockoutUntil time.Time) (int, error) {
	var attempts int
	query := `
		UPDATE admin_users
		SET login_attempts = login_attempts + 1,
		    lockout_until = CASE WHEN login_attempts + 1 >= $2 THEN $3 ELSE lockout_until END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING login_attempts
	`
	err := r.db.QueryRowxContext(ctx, query, id, maxAttempts, lockoutUntil).Scan(&attempts)
	return attempts, err
}

// ResetLoginAttempts clears the failure counter and lockout after a successful
// login and stamps last_login.
func (r *AdminUserRepository) ResetLoginAttempts(ctx context.Context, id string, lastLogin time.Time) error {
	query := `
		UPDATE admin_users
		SET login_attempts = 0, lockout_until = NULL, last_login = $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, lastLogin)
	return err
}

// SetMagicLink stores a new hashed magic-link token, replacing any prior one
func (r *AdminUserRepository) SetMagicLink(ctx context.Context, id, tokenHash string, expiresAt time.Time, purpose string) error {
	query := `
		UPDATE admin_users
		SET magic_link_hash = $2, magic_link_expires_at = $3, magic_link_purpose = $4, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, tokenHash, expiresAt, purpose)
	return err
}

// ConsumeMagicLink atomically clears a live magic link matching the given hash
// and returns the account it belonged to. A second presentation, or an expired
// token, returns (nil, nil) — indistinguishable from a token that never existed.
func (r *AdminUserRepository) ConsumeMagicLink(ctx context.Context, tokenHash string, now time.Time) (*models.AdminUser, error) {
	var user models.AdminUser
	query := `
		UPDATE admin_users
		SET magic_link_hash = NULL, magic_link_expires_at = NULL, magic_link_purpose = NULL, updated_at = NOW()
		WHERE magic_link_hash = $1 AND magic_link_expires_at > $2 AND is_active = TRUE
		RETURNING *
	`
	err := r.db.GetContext(ctx, &user, query, tokenHash, now)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ClearExpiredMagicLinks removes magic-link hashes whose expiry has passed.
// Returns the number of rows swept; used by the credential reaper job.
func (r *AdminUserRepository) ClearExpiredMagicLinks(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE admin_users
		SET magic_link_hash = NULL, magic_link_expires_at = NULL, magic_link_purpose = NULL, updated_at = NOW()
		WHERE magic_link_expires_at IS NOT NULL AND magic_link_expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ConsumeBackupCode removes a 2FA backup code from the account if present.
// Returns true only when this call removed it, making each code single-use.
func (r *AdminUserRepository) ConsumeBackupCode(ctx context.Context, id, code string) (bool, error) {
	query := `
		UPDATE admin_users
		SET backup_codes = array_remove(backup_codes, $2), updated_at = NOW()
		WHERE id = $1 AND $2 = ANY(backup_codes)
	`
	res, err := r.db.ExecContext(ctx, query, id, code)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// EnableTwoFactor stores the TOTP secret and fresh backup codes and flips the
// enrollment flag in one statement.
func (r *AdminUserRepository) EnableTwoFactor(ctx context.Context, id, secret string, backupCodes []string) error {
	query := `
		UPDATE admin_users
		SET two_factor_enabled = TRUE, two_factor_secret = $2, backup_codes = $3, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, secret, pq.Array(backupCodes))
	return err
}

// SetActive activates or deactivates an admin account. Accounts are never
// hard-deleted.
func (r *AdminUserRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE admin_users SET is_active = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, active)
	return err
}
