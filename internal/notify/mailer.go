// Package notify delivers the application's outbound emails over SMTP.
// Delivery is best effort: callers treat failures as log-and-continue, so a
// mail outage never blocks signups or device linking.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"

	"github.com/dotctl/beta-portal/internal/config"
	"github.com/dotctl/beta-portal/internal/db/models"
	"github.com/dotctl/beta-portal/internal/referral"
	"github.com/dotctl/beta-portal/internal/telemetry"
)

// Mailer renders and sends notification emails. The zero-value subjects and
// bodies are fixed; only recipient data varies.
type Mailer struct {
	cfg       config.SMTPConfig
	publicURL string
	logger    *slog.Logger
}

// NewMailer builds a Mailer from SMTP settings. publicURL is the base for
// links embedded in emails.
func NewMailer(cfg config.SMTPConfig, publicURL string, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{cfg: cfg, publicURL: strings.TrimRight(publicURL, "/"), logger: logger}
}

// send delivers one email, retrying once on transient transport errors.
func (m *Mailer) send(kind, to, subject, htmlBody string) error {
	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = []string{to}
	e.Subject = subject
	e.HTML = []byte(htmlBody)

	err := m.transport(e)
	if err != nil && isTransient(err) {
		time.Sleep(2 * time.Second)
		err = m.transport(e)
	}

	if err != nil {
		telemetry.EmailsSentTotal.WithLabelValues(kind, "failure").Inc()
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	telemetry.EmailsSentTotal.WithLabelValues(kind, "success").Inc()
	return nil
}

// transport picks the wire protocol by port. 465 is implicit TLS, 587 is
// STARTTLS, 25 is plain; other combinations are configuration mistakes.
func (m *Mailer) transport(e *email.Email) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	if m.cfg.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: m.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		switch m.cfg.Port {
		case 465:
			return e.SendWithTLS(addr, auth, tlsConfig)
		case 587:
			return e.SendWithStartTLS(addr, auth, tlsConfig)
		default:
			return fmt.Errorf("unsupported port %d with use_tls=true", m.cfg.Port)
		}
	}
	if m.cfg.Port == 25 {
		return e.Send(addr, auth)
	}
	return fmt.Errorf("unsupported port %d with use_tls=false", m.cfg.Port)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "broken pipe")
}

// SendWelcome mails the post-signup email with the account's referral code.
func (m *Mailer) SendWelcome(_ context.Context, user *models.BetaUser) error {
	shareURL := ""
	if m.publicURL != "" {
		shareURL = fmt.Sprintf("%s/?ref=%s", m.publicURL, user.ReferralCode)
	}
	body, err := renderTemplate("welcome", map[string]any{
		"Name":         displayName(user),
		"Position":     user.SignupPosition,
		"ReferralCode": user.ReferralCode,
		"ShareURL":     shareURL,
	})
	if err != nil {
		return err
	}
	return m.send("welcome", user.Email, "Welcome to the beta", body)
}

// SendReferralCredited mails a referrer after each attributed signup.
func (m *Mailer) SendReferralCredited(_ context.Context, referrer *models.BetaUser, newCount, rewardMonths int) error {
	body, err := renderTemplate("referral_credited", map[string]any{
		"Name":          displayName(referrer),
		"ReferralCount": newCount,
		"Subscription":  referral.ComputeSubscription(rewardMonths).Display,
	})
	if err != nil {
		return err
	}
	return m.send("referral_credited", referrer.Email, "You earned a reward month", body)
}

// SendMilestoneReached mails a referrer when a milestone bonus lands.
func (m *Mailer) SendMilestoneReached(_ context.Context, referrer *models.BetaUser, milestone string, bonusMonths int) error {
	body, err := renderTemplate("milestone_reached", map[string]any{
		"Name":        displayName(referrer),
		"Milestone":   strings.ReplaceAll(milestone, "_", " "),
		"BonusMonths": bonusMonths,
	})
	if err != nil {
		return err
	}
	return m.send("milestone_reached", referrer.Email, "Referral milestone reached", body)
}

// SendDeviceOTP mails a device-linking verification code.
func (m *Mailer) SendDeviceOTP(_ context.Context, user *models.BetaUser, code string, ttl time.Duration) error {
	body, err := renderTemplate("device_otp", map[string]any{
		"Name":       displayName(user),
		"Code":       code,
		"TTLMinutes": int(ttl.Minutes()),
	})
	if err != nil {
		return err
	}
	return m.send("device_otp", user.Email, "Your device verification code", body)
}

// SendMagicLink mails an admin a one-time sign-in link.
func (m *Mailer) SendMagicLink(_ context.Context, admin *models.AdminUser, token string, ttl time.Duration) error {
	linkURL := fmt.Sprintf("%s/api/admin/magic-login?token=%s", m.publicURL, token)
	body, err := renderTemplate("magic_link", map[string]any{
		"Name":       admin.Username,
		"LinkURL":    linkURL,
		"TTLMinutes": int(ttl.Minutes()),
	})
	if err != nil {
		return err
	}
	return m.send("magic_link", admin.Email, "Your sign-in link", body)
}

// SendSecurityAlert mails an admin about a security-relevant event, such as
// their account being locked after repeated failed logins.
func (m *Mailer) SendSecurityAlert(_ context.Context, admin *models.AdminUser, message, remoteIP string) error {
	body, err := renderTemplate("security_alert", map[string]any{
		"Name":     admin.Username,
		"Message":  message,
		"When":     time.Now().UTC().Format(time.RFC1123),
		"RemoteIP": remoteIP,
	})
	if err != nil {
		return err
	}
	return m.send("security_alert", admin.Email, "Security alert", body)
}

func displayName(user *models.BetaUser) string {
	if user.Name != "" {
		return user.Name
	}
	return user.Email
}
