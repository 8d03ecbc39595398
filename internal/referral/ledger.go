package referral

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dotctl/beta-portal/internal/db/models"
	"github.com/dotctl/beta-portal/internal/db/repositories"
	"github.com/dotctl/beta-portal/internal/telemetry"
)

// codeRetries bounds collision retries on referral code generation. A 36^6
// space makes even one retry rare.
const codeRetries = 5

// Store is the persistence surface the ledger needs.
type Store interface {
	CreateBetaUser(ctx context.Context, user *models.BetaUser) error
	GetBetaUserByID(ctx context.Context, id string) (*models.BetaUser, error)
	GetBetaUserByEmail(ctx context.Context, email string) (*models.BetaUser, error)
	GetBetaUserByReferralCode(ctx context.Context, code string) (*models.BetaUser, error)
	AttributeReferral(ctx context.Context, referrerID string,
		milestoneAt func(newCount int) (string, int, bool)) (int, *models.MilestoneReached, error)
	ListMilestones(ctx context.Context, betaUserID string) ([]*models.MilestoneReached, error)
}

// Notifier delivers the emails the ledger triggers. Delivery is best effort;
// the ledger logs failures and moves on.
type Notifier interface {
	SendWelcome(ctx context.Context, user *models.BetaUser) error
	SendReferralCredited(ctx context.Context, referrer *models.BetaUser, newCount, rewardMonths int) error
	SendMilestoneReached(ctx context.Context, referrer *models.BetaUser, milestone string, bonusMonths int) error
}

// Ledger owns signup and referral-attribution semantics. Every attributed
// signup grants the referrer one reward month plus any milestone bonus, in a
// single transaction, so the balance and the milestone history never diverge.
type Ledger struct {
	store      Store
	notifier   Notifier
	logger     *slog.Logger
	codePrefix string
	codeLength int
}

// NewLedger builds a Ledger. notifier may be nil when email is disabled.
func NewLedger(store Store, notifier Notifier, logger *slog.Logger, codePrefix string, codeLength int) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:      store,
		notifier:   notifier,
		logger:     logger,
		codePrefix: codePrefix,
		codeLength: codeLength,
	}
}

// SignupRequest is a validated signup submission.
type SignupRequest struct {
	Email           string
	Name            string
	Phone           string
	UseCase         string
	ReferralCode    string
	EarlyAccessCode string
}

// SignupResult reports the created account and whether a referral was credited.
type SignupResult struct {
	User               *models.BetaUser
	ReferralAttributed bool
	MilestoneReached   *models.MilestoneReached
}

// Signup creates a beta account and credits its referrer, if any. A referral
// code that matches no account fails the whole signup, and an account cannot
// be created with its own referrer's email.
func (l *Ledger) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := l.store.GetBetaUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	var referrer *models.BetaUser
	if req.ReferralCode != "" {
		code := strings.ToUpper(strings.TrimSpace(req.ReferralCode))
		referrer, err = l.store.GetBetaUserByReferralCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to look up referral code: %w", err)
		}
		if referrer == nil {
			return nil, ErrInvalidReferralCode
		}
		if strings.EqualFold(referrer.Email, email) {
			return nil, ErrSelfReferral
		}
	}

	user := &models.BetaUser{
		ID:      uuid.New().String(),
		Email:   email,
		Name:    strings.TrimSpace(req.Name),
		Phone:   strings.TrimSpace(req.Phone),
		UseCase: strings.TrimSpace(req.UseCase),
	}
	if referrer != nil {
		user.ReferredBy = &referrer.ID
	}
	if req.EarlyAccessCode != "" {
		code := strings.TrimSpace(req.EarlyAccessCode)
		user.EarlyAccessCode = &code
	}

	if err := l.createWithFreshCode(ctx, user); err != nil {
		return nil, err
	}
	telemetry.SignupsTotal.WithLabelValues(fmt.Sprintf("%t", referrer != nil)).Inc()

	result := &SignupResult{User: user}

	if referrer != nil {
		newCount, milestone, err := l.store.AttributeReferral(ctx, referrer.ID, MilestoneAt)
		if err != nil {
			// The account row is already committed; a retry of the same
			// signup hits the duplicate-email path. Still a hard failure:
			// a success response with the credit missing is worse.
			l.logger.Error("failed to attribute referral",
				"referrer_id", referrer.ID, "user_id", user.ID, "error", err)
			return nil, fmt.Errorf("failed to attribute referral: %w", err)
		}
		result.ReferralAttributed = true
		result.MilestoneReached = milestone
		telemetry.ReferralsAttributedTotal.Inc()
		l.notifyReferrer(ctx, referrer.ID, newCount, milestone)
	}

	if l.notifier != nil {
		if err := l.notifier.SendWelcome(ctx, user); err != nil {
			l.logger.Warn("failed to send welcome email", "user_id", user.ID, "error", err)
		}
	}

	return result, nil
}

// createWithFreshCode inserts the account, regenerating the referral code on
// the rare collision. A duplicate email means we lost a race with another
// signup for the same address.
func (l *Ledger) createWithFreshCode(ctx context.Context, user *models.BetaUser) error {
	for attempt := 0; attempt < codeRetries; attempt++ {
		code, err := GenerateCode(l.codePrefix, l.codeLength)
		if err != nil {
			return err
		}
		user.ReferralCode = code

		err = l.store.CreateBetaUser(ctx, user)
		if err == nil {
			return nil
		}
		if repositories.IsUniqueViolation(err, "idx_beta_users_email") {
			return ErrDuplicateEmail
		}
		if repositories.IsUniqueViolation(err, "idx_beta_users_referral_code") {
			continue
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return fmt.Errorf("failed to allocate a unique referral code after %d attempts", codeRetries)
}

func (l *Ledger) notifyReferrer(ctx context.Context, referrerID string, newCount int, milestone *models.MilestoneReached) {
	if milestone != nil {
		telemetry.MilestonesReachedTotal.WithLabelValues(milestone.Milestone).Inc()
	}
	if l.notifier == nil {
		return
	}

	// Re-read for the post-attribution balance.
	referrer, err := l.store.GetBetaUserByID(ctx, referrerID)
	if err != nil || referrer == nil {
		l.logger.Warn("failed to load referrer for notification", "referrer_id", referrerID, "error", err)
		return
	}

	if err := l.notifier.SendReferralCredited(ctx, referrer, newCount, referrer.RewardMonths); err != nil {
		l.logger.Warn("failed to send referral email", "referrer_id", referrerID, "error", err)
	}
	if milestone != nil {
		if err := l.notifier.SendMilestoneReached(ctx, referrer, milestone.Milestone, milestone.BonusMonths); err != nil {
			l.logger.Warn("failed to send milestone email", "referrer_id", referrerID, "error", err)
		}
	}
}

// LookupCode resolves a referral code to its owner, for the public referral
// landing endpoint. Only the owner's display name should leave the server.
func (l *Ledger) LookupCode(ctx context.Context, code string) (*models.BetaUser, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrInvalidReferralCode
	}
	user, err := l.store.GetBetaUserByReferralCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up referral code: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidReferralCode
	}
	return user, nil
}

// Status assembles an account's referral standing: balance, milestone
// history and the next threshold.
type Status struct {
	User          *models.BetaUser
	Subscription  Subscription
	Milestones    []*models.MilestoneReached
	NextMilestone *Milestone
}

// StatusByEmail returns the referral standing for an account.
func (l *Ledger) StatusByEmail(ctx context.Context, email string) (*Status, error) {
	user, err := l.store.GetBetaUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return l.status(ctx, user)
}

// StatusByCode returns the referral standing for a code's owner, for the
// public referral landing endpoint.
func (l *Ledger) StatusByCode(ctx context.Context, code string) (*Status, error) {
	user, err := l.LookupCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return l.status(ctx, user)
}

func (l *Ledger) status(ctx context.Context, user *models.BetaUser) (*Status, error) {
	milestones, err := l.store.ListMilestones(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load milestones: %w", err)
	}

	status := &Status{
		User:         user,
		Subscription: ComputeSubscription(user.RewardMonths),
		Milestones:   milestones,
	}
	if next, ok := NextMilestone(user.ReferralCount); ok {
		status.NextMilestone = &next
	}
	return status, nil
}
