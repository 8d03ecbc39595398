// Package license converts a beta account's reward-month balance into a
// time-bounded license bound to one hardware device, and answers status
// queries about an existing binding.
package license

import "errors"

var (
	// ErrUserNotFound is returned when the email matches no beta account.
	ErrUserNotFound = errors.New("user not found")

	// ErrOTPInvalid is returned when the presented code does not match a live
	// one-time credential, whether it is wrong, already used or expired. The
	// cases are deliberately not distinguished for the caller.
	ErrOTPInvalid = errors.New("verification code is invalid or expired")

	// ErrInvalidHardwareID is returned when the hardware identifier is outside
	// the accepted length range.
	ErrInvalidHardwareID = errors.New("hardware id must be between 10 and 200 characters")

	// ErrAlreadyLinked is returned when the device is already bound to the
	// requesting account.
	ErrAlreadyLinked = errors.New("device already linked to this account")

	// ErrDeviceConflict is returned when the device is bound to a different
	// account. A hardware id is globally unique across accounts.
	ErrDeviceConflict = errors.New("device already linked to another account")

	// ErrNotLinked is returned by status checks for unknown devices.
	ErrNotLinked = errors.New("device not linked")
)
