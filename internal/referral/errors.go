// Package referral implements the beta signup ledger: account creation,
// referral attribution with milestone bonuses, and the reward-month balance
// those bonuses feed.
package referral

import "errors"

var (
	// ErrDuplicateEmail is returned when the signup email already has an account.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidReferralCode is returned when a presented code matches no account.
	// A signup carrying a bad code fails outright rather than proceeding
	// unattributed, so the user can correct a typo instead of silently losing
	// the referral.
	ErrInvalidReferralCode = errors.New("invalid referral code")

	// ErrSelfReferral is returned when a signup presents its own account's code.
	ErrSelfReferral = errors.New("cannot use your own referral code")

	// ErrUserNotFound is returned by lookups for unknown accounts.
	ErrUserNotFound = errors.New("user not found")
)
