package models

import "time"

// BetaUser represents one beta program participant and their referral state.
// ReferralCount and RewardMonths are only ever mutated by the referral ledger,
// inside a single transaction per attributed signup.
type BetaUser struct {
	ID      string `db:"id"`
	Email   string `db:"email"`
	Name    string `db:"name"`
	Phone   string `db:"phone"`
	UseCase string `db:"use_case"`

	ReferralCode  string  `db:"referral_code"`
	ReferredBy    *string `db:"referred_by"`
	ReferralCount int     `db:"referral_count"`
	RewardMonths  int     `db:"reward_months"`

	SignupPosition  int     `db:"signup_position"`
	EarlyAccessCode *string `db:"early_access_code"`

	OTPHash      *string    `db:"otp_hash"`
	OTPExpiresAt *time.Time `db:"otp_expires_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// MilestoneReached records a one-time referral milestone bonus grant.
// The (beta_user_id, milestone) pair is unique in the database.
type MilestoneReached struct {
	ID          string    `db:"id"`
	BetaUserID  string    `db:"beta_user_id"`
	Milestone   string    `db:"milestone"`
	BonusMonths int       `db:"bonus_months"`
	AchievedAt  time.Time `db:"achieved_at"`
}

// DeviceLink binds one hardware device to one beta account. The snapshot fields
// record the reward balance consumed when the current license was computed, so
// that later status checks can detect referral growth since issuance.
type DeviceLink struct {
	ID         string `db:"id"`
	BetaUserID string `db:"beta_user_id"`
	HardwareID string `db:"hardware_id"`

	LinkedAt    time.Time `db:"linked_at"`
	LastChecked time.Time `db:"last_checked"`

	MonthsUsedForLicense  int       `db:"months_used_for_license"`
	RemainingRewardMonths int       `db:"remaining_reward_months"`
	LastLicenseKey        string    `db:"last_license_key"`
	LicenseExpiresAt      time.Time `db:"license_expires_at"`
}
