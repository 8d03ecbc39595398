package license

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dotctl/beta-portal/internal/auth"
	"github.com/dotctl/beta-portal/internal/db/models"
	"github.com/dotctl/beta-portal/internal/db/repositories"
	"github.com/dotctl/beta-portal/internal/telemetry"
)

const (
	hardwareIDMinLen = 10
	hardwareIDMaxLen = 200

	// fullYearThreshold is the balance at which a flat one-year license is
	// granted without consuming the pool.
	fullYearThreshold = 12
)

// AccountStore is the beta-account surface the binder needs: lookups plus the
// one-time-credential lifecycle. A new OTP overwrites any live one, and
// consumption is atomic so a code verifies at most once.
type AccountStore interface {
	GetBetaUserByID(ctx context.Context, id string) (*models.BetaUser, error)
	GetBetaUserByEmail(ctx context.Context, email string) (*models.BetaUser, error)
	SetOTP(ctx context.Context, betaUserID, otpHash string, expiresAt time.Time) error
	ConsumeOTP(ctx context.Context, betaUserID, otpHash string, now time.Time) (bool, error)
}

// LinkStore is the device-link persistence surface.
type LinkStore interface {
	InsertDeviceLink(ctx context.Context, link *models.DeviceLink) error
	GetDeviceLinkByHardwareID(ctx context.Context, hardwareID string) (*models.DeviceLink, error)
	TouchLastChecked(ctx context.Context, id string, at time.Time) error
}

// OTPSender emails a linking code to a beta user.
type OTPSender interface {
	SendDeviceOTP(ctx context.Context, user *models.BetaUser, code string, ttl time.Duration) error
}

// Binder issues device licenses against reward-month balances.
type Binder struct {
	accounts AccountStore
	links    LinkStore
	sender   OTPSender
	logger   *slog.Logger
	otpTTL   time.Duration
	now      func() time.Time
}

// NewBinder builds a Binder. sender may be nil when email is disabled; the
// generated code is then only logged at debug level for development use.
func NewBinder(accounts AccountStore, links LinkStore, sender OTPSender, logger *slog.Logger, otpTTL time.Duration) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	if otpTTL == 0 {
		otpTTL = 10 * time.Minute
	}
	return &Binder{
		accounts: accounts,
		links:    links,
		sender:   sender,
		logger:   logger,
		otpTTL:   otpTTL,
		now:      time.Now,
	}
}

// RequestOTP generates a fresh linking code for the account and emails it.
// Any previous live code is overwritten.
func (b *Binder) RequestOTP(ctx context.Context, email string) error {
	user, err := b.accounts.GetBetaUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	code, err := auth.GenerateOTP()
	if err != nil {
		return err
	}
	expiresAt := b.now().Add(b.otpTTL)
	if err := b.accounts.SetOTP(ctx, user.ID, auth.HashToken(code), expiresAt); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}

	if b.sender == nil {
		b.logger.Debug("email disabled, otp not delivered", "user_id", user.ID)
		return nil
	}
	if err := b.sender.SendDeviceOTP(ctx, user, code, b.otpTTL); err != nil {
		return fmt.Errorf("failed to send verification code: %w", err)
	}
	return nil
}

// License is the outcome of a successful device link.
type License struct {
	Key            string    `json:"license_key"`
	ExpiresAt      time.Time `json:"expires_at"`
	MonthsUsed     int       `json:"months_used"`
	DurationMonths int       `json:"duration_months"`
}

// LinkDevice verifies the one-time code and binds the hardware id to the
// account, minting a license sized by the reward balance. A balance of
// twelve months or more yields a flat one-year license and leaves the pool
// intact; smaller balances are consumed whole, with a one-month floor.
func (b *Binder) LinkDevice(ctx context.Context, email, otp, hardwareID string) (*License, error) {
	// Shape checks come before OTP consumption: a typo'd hardware id should
	// not burn a still-valid code.
	if len(hardwareID) < hardwareIDMinLen || len(hardwareID) > hardwareIDMaxLen {
		return nil, ErrInvalidHardwareID
	}

	user, err := b.accounts.GetBetaUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	ok, err := b.accounts.ConsumeOTP(ctx, user.ID, auth.HashToken(otp), b.now())
	if err != nil {
		return nil, fmt.Errorf("failed to verify code: %w", err)
	}
	if !ok {
		return nil, ErrOTPInvalid
	}

	existing, err := b.links.GetDeviceLinkByHardwareID(ctx, hardwareID)
	if err != nil {
		return nil, fmt.Errorf("failed to check device: %w", err)
	}
	if existing != nil {
		if existing.BetaUserID == user.ID {
			return nil, ErrAlreadyLinked
		}
		return nil, ErrDeviceConflict
	}

	now := b.now()
	expiresAt, used, remaining, durationMonths := computeGrant(user.RewardMonths, now)

	link := &models.DeviceLink{
		ID:                    uuid.New().String(),
		BetaUserID:            user.ID,
		HardwareID:            hardwareID,
		LinkedAt:              now,
		LastChecked:           now,
		MonthsUsedForLicense:  used,
		RemainingRewardMonths: remaining,
		LastLicenseKey:        uuid.New().String(),
		LicenseExpiresAt:      expiresAt,
	}
	if err := b.links.InsertDeviceLink(ctx, link); err != nil {
		// The pre-check races with concurrent link attempts; the unique
		// index is the arbiter.
		if repositories.IsUniqueViolation(err, "idx_device_links_hardware_id") {
			return nil, ErrDeviceConflict
		}
		return nil, fmt.Errorf("failed to link device: %w", err)
	}

	telemetry.DevicesLinkedTotal.Inc()
	telemetry.LicensesIssuedTotal.Inc()

	return &License{
		Key:            link.LastLicenseKey,
		ExpiresAt:      expiresAt,
		MonthsUsed:     used,
		DurationMonths: durationMonths,
	}, nil
}

// computeGrant sizes a license for the given balance.
func computeGrant(rewardMonths int, now time.Time) (expiresAt time.Time, used, remaining, durationMonths int) {
	if rewardMonths >= fullYearThreshold {
		// A year outright; the pool stays available for extensions.
		return now.AddDate(1, 0, 0), 0, rewardMonths, 12
	}

	months := rewardMonths
	if months < 1 {
		// Zero-balance accounts still receive one month. Flagged with
		// product; preserved until they rule on it.
		months = 1
	}
	return now.AddDate(0, months, 0), rewardMonths, 0, months
}

// Status describes a device's current binding and any extension the account
// has earned since the license was computed. Extensions are reported, never
// applied here.
type Status struct {
	Linked              bool       `json:"linked"`
	LicenseKey          string     `json:"license_key,omitempty"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	ReferralCount       int        `json:"referral_count,omitempty"`
	RewardMonths        int        `json:"reward_months,omitempty"`
	AdditionalAvailable int        `json:"additional_months_available,omitempty"`
	ExtensionMonths     int        `json:"extension_months,omitempty"`
}

// CheckStatus reports the binding for a hardware id. additionalAvailable is
// the referral growth since the license was computed: the current balance
// minus what the license consumed and what was already counted as remaining.
func (b *Binder) CheckStatus(ctx context.Context, hardwareID string) (*Status, error) {
	link, err := b.links.GetDeviceLinkByHardwareID(ctx, hardwareID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up device: %w", err)
	}
	if link == nil {
		return &Status{Linked: false}, nil
	}

	user, err := b.accounts.GetBetaUserByID(ctx, link.BetaUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	status := &Status{
		Linked:     true,
		LicenseKey: link.LastLicenseKey,
		ExpiresAt:  &link.LicenseExpiresAt,
	}
	if user != nil {
		status.ReferralCount = user.ReferralCount
		status.RewardMonths = user.RewardMonths

		additional := user.RewardMonths - link.MonthsUsedForLicense - link.RemainingRewardMonths
		if additional > 0 {
			status.AdditionalAvailable = additional
			if additional >= fullYearThreshold {
				status.ExtensionMonths = 12
			} else {
				status.ExtensionMonths = additional
			}
		}
	}

	if err := b.links.TouchLastChecked(ctx, link.ID, b.now()); err != nil {
		b.logger.Warn("failed to record status check", "link_id", link.ID, "error", err)
	}
	return status, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
