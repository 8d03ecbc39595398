// Package repositories implements the data access layer (repository pattern) for the beta portal.
// Each repository type encapsulates all database queries for a domain entity.
// Handlers never issue SQL directly — all database access goes through this layer, which makes
// query logic testable in isolation and prevents accidental cross-domain data access.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dotctl/beta-portal/internal/db/models"
)

// pqUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation. When constraint is non-empty, the violation must additionally be
// on that named constraint/index. Callers use this to translate races lost at
// the store level (duplicate emails, already-linked devices) into domain errors.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// BetaUserRepository handles beta participant database operations, including
// the transactional referral attribution update.
type BetaUserRepository struct {
	db *sql.DB
}

// NewBetaUserRepository creates a new BetaUserRepository
func NewBetaUserRepository(db *sql.DB) *BetaUserRepository {
	return &BetaUserRepository{db: db}
}

// CreateBetaUser creates a new beta participant. The signup position is
// assigned in the INSERT itself so two concurrent signups cannot read the same
// count; positions may have gaps if an insert later fails, which is acceptable.
func (r *BetaUserRepository) CreateBetaUser(ctx context.Context, user *models.BetaUser) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO beta_users (
			id, email, name, phone, use_case, referral_code, referred_by,
			early_access_code, signup_position, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			(SELECT COALESCE(MAX(signup_position), 0) + 1 FROM beta_users),
			$9, $10)
		RETURNING signup_position
	`

	err := r.db.QueryRowContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.Phone,
		user.UseCase,
		user.ReferralCode,
		user.ReferredBy,
		user.EarlyAccessCode,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.SignupPosition)

	return err
}

// GetBetaUserByID retrieves a beta participant by ID
func (r *BetaUserRepository) GetBetaUserByID(ctx context.Context, id string) (*models.BetaUser, error) {
	return r.getBetaUser(ctx, `WHERE id = $1`, id)
}

// GetBetaUserByEmail retrieves a beta participant by email (case-insensitive)
func (r *BetaUserRepository) GetBetaUserByEmail(ctx context.Context, email string) (*models.BetaUser, error) {
	return r.getBetaUser(ctx, `WHERE LOWER(email) = LOWER($1)`, email)
}

// GetBetaUserByReferralCode retrieves a beta participant by their referral code
func (r *BetaUserRepository) GetBetaUserByReferralCode(ctx context.Context, code string) (*models.BetaUser, error) {
	return r.getBetaUser(ctx, `WHERE referral_code = $1`, code)
}

func (r *BetaUserRepository) getBetaUser(ctx context.Context, where string, arg any) (*models.BetaUser, error) {
	query := `
		SELECT id, email, name, phone, use_case, referral_code, referred_by,
		       referral_count, reward_months, signup_position, early_access_code,
		       otp_hash, otp_expires_at, created_at, updated_at
		FROM beta_users
	` + where

	user := &models.BetaUser{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Phone,
		&user.UseCase,
		&user.ReferralCode,
		&user.ReferredBy,
		&user.ReferralCount,
		&user.RewardMonths,
		&user.SignupPosition,
		&user.EarlyAccessCode,
		&user.OTPHash,
		&user.OTPExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}

// AttributeReferral applies one referred signup to the referrer's counters in a
// single transaction. The opening UPDATE takes the row lock, so two concurrent
// attributions for the same referrer serialize on it and each observes a
// distinct referral_count — no increment can be lost and no milestone can be
// double-granted.
//
// milestoneAt is consulted with the post-increment count; when it reports a
// bonus, the milestone row is inserted (ON CONFLICT DO NOTHING backstops the
// per-account uniqueness) and the bonus months are added in the same
// transaction. The returned milestone is nil when no threshold was crossed.
func (r *BetaUserRepository) AttributeReferral(
	ctx context.Context,
	referrerID string,
	milestoneAt func(newCount int) (milestone string, bonusMonths int, ok bool),
) (newCount int, milestone *models.MilestoneReached, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	defer tx.Rollback()

	// Base grant: +1 referral, +1 reward month.
	err = tx.QueryRowContext(ctx, `
		UPDATE beta_users
		SET referral_count = referral_count + 1,
		    reward_months = reward_months + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING referral_count
	`, referrerID).Scan(&newCount)
	if err != nil {
		return 0, nil, err
	}

	if name, bonus, ok := milestoneAt(newCount); ok {
		m := &models.MilestoneReached{
			ID:          uuid.New().String(),
			BetaUserID:  referrerID,
			Milestone:   name,
			BonusMonths: bonus,
			AchievedAt:  time.Now(),
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO milestones_reached (id, beta_user_id, milestone, bonus_months, achieved_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (beta_user_id, milestone) DO NOTHING
		`, m.ID, m.BetaUserID, m.Milestone, m.BonusMonths, m.AchievedAt)
		if err != nil {
			return 0, nil, err
		}

		inserted, err := res.RowsAffected()
		if err != nil {
			return 0, nil, err
		}

		// The bonus is granted only when this transaction recorded the
		// milestone; a conflicting row means another attribution got there
		// first, which cannot happen with single increments but is the
		// correct behavior if it ever did.
		if inserted == 1 {
			_, err = tx.ExecContext(ctx, `
				UPDATE beta_users
				SET reward_months = reward_months + $2, updated_at = NOW()
				WHERE id = $1
			`, referrerID, bonus)
			if err != nil {
				return 0, nil, err
			}
			milestone = m
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}

	return newCount, milestone, nil
}

// ListMilestones returns the milestones a participant has reached, oldest first
func (r *BetaUserRepository) ListMilestones(ctx context.Context, betaUserID string) ([]*models.MilestoneReached, error) {
	query := `
		SELECT id, beta_user_id, milestone, bonus_months, achieved_at
		FROM milestones_reached
		WHERE beta_user_id = $1
		ORDER BY achieved_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, betaUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	milestones := make([]*models.MilestoneReached, 0)
	for rows.Next() {
		m := &models.MilestoneReached{}
		err := rows.Scan(&m.ID, &m.BetaUserID, &m.Milestone, &m.BonusMonths, &m.AchievedAt)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}

	return milestones, rows.Err()
}

// SetOTP stores a new hashed one-time code, overwriting any prior live OTP
func (r *BetaUserRepository) SetOTP(ctx context.Context, betaUserID, otpHash string, expiresAt time.Time) error {
	query := `
		UPDATE beta_users
		SET otp_hash = $2, otp_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, betaUserID, otpHash, expiresAt)
	return err
}

// ConsumeOTP atomically clears a live, unexpired OTP matching the given hash.
// It returns true only when this call cleared it — a second presentation of the
// same code, or an expired one, returns false.
func (r *BetaUserRepository) ConsumeOTP(ctx context.Context, betaUserID, otpHash string, now time.Time) (bool, error) {
	query := `
		UPDATE beta_users
		SET otp_hash = NULL, otp_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND otp_hash = $2 AND otp_expires_at > $3
	`
	res, err := r.db.ExecContext(ctx, query, betaUserID, otpHash, now)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ClearExpiredOTPs removes OTP hashes whose expiry has passed. Returns the
// number of rows swept; used by the credential reaper job.
func (r *BetaUserRepository) ClearExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE beta_users
		SET otp_hash = NULL, otp_expires_at = NULL, updated_at = NOW()
		WHERE otp_expires_at IS NOT NULL AND otp_expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListBetaUsers retrieves a paginated list of beta participants, newest first
func (r *BetaUserRepository) ListBetaUsers(ctx context.Context, limit, offset int) ([]*models.BetaUser, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM beta_users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, email, name, phone, use_case, referral_code, referred_by,
		       referral_count, reward_months, signup_position, early_access_code,
		       otp_hash, otp_expires_at, created_at, updated_at
		FROM beta_users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]*models.BetaUser, 0)
	for rows.Next() {
		user := &models.BetaUser{}
		err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.Name,
			&user.Phone,
			&user.UseCase,
			&user.ReferralCode,
			&user.ReferredBy,
			&user.ReferralCount,
			&user.RewardMonths,
			&user.SignupPosition,
			&user.EarlyAccessCode,
			&user.OTPHash,
			&user.OTPExpiresAt,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}

	return users, total, rows.Err()
}

// BetaStats holds the aggregate figures shown on the admin dashboard.
type BetaStats struct {
	TotalSignups      int
	ReferredSignups   int
	TotalRewardMonths int
	LinkedDevices     int
}

// GetStats returns aggregate program statistics in one round trip
func (r *BetaUserRepository) GetStats(ctx context.Context) (*BetaStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM beta_users),
			(SELECT COUNT(*) FROM beta_users WHERE referred_by IS NOT NULL),
			(SELECT COALESCE(SUM(reward_months), 0) FROM beta_users),
			(SELECT COUNT(*) FROM device_links)
	`
	stats := &BetaStats{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalSignups,
		&stats.ReferredSignups,
		&stats.TotalRewardMonths,
		&stats.LinkedDevices,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
