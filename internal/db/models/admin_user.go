// Package models defines the database row types shared by the repositories.
package models

import (
	"time"

	"github.com/lib/pq"
)

// AdminUser represents an administrator account in the system.
// Admin accounts are never hard-deleted; deactivation sets IsActive=false.
type AdminUser struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Role         string `db:"role"`
	IsActive     bool   `db:"is_active"`

	TwoFactorEnabled bool           `db:"two_factor_enabled"`
	TwoFactorSecret  *string        `db:"two_factor_secret"`
	BackupCodes      pq.StringArray `db:"backup_codes"`

	LoginAttempts int        `db:"login_attempts"`
	LockoutUntil  *time.Time `db:"lockout_until"`
	LastLogin     *time.Time `db:"last_login"`

	MagicLinkHash      *string    `db:"magic_link_hash"`
	MagicLinkExpiresAt *time.Time `db:"magic_link_expires_at"`
	MagicLinkPurpose   *string    `db:"magic_link_purpose"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// IsLockedOut reports whether the account is currently locked out of password login.
func (u *AdminUser) IsLockedOut(now time.Time) bool {
	return u.LockoutUntil != nil && now.Before(*u.LockoutUntil)
}
