// Package jobs contains the server's background workers.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/dotctl/beta-portal/internal/safego"
)

// OTPStore sweeps expired device-linking codes.
type OTPStore interface {
	ClearExpiredOTPs(ctx context.Context, now time.Time) (int64, error)
}

// MagicLinkStore sweeps expired admin sign-in links.
type MagicLinkStore interface {
	ClearExpiredMagicLinks(ctx context.Context, now time.Time) (int64, error)
}

// CredentialReaper periodically clears expired one-time credentials from the
// database. Expired credentials are already unusable — consumption checks the
// deadline — so the sweep is hygiene, not enforcement, and a missed run is
// harmless.
type CredentialReaper struct {
	otps     OTPStore
	links    MagicLinkStore
	interval time.Duration
	logger   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCredentialReaper creates a reaper. interval defaults to one hour.
func NewCredentialReaper(otps OTPStore, links MagicLinkStore, interval time.Duration, logger *slog.Logger) *CredentialReaper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialReaper{
		otps:     otps,
		links:    links,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine.
func (r *CredentialReaper) Start() {
	safego.Go(r.run)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (r *CredentialReaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *CredentialReaper) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

func (r *CredentialReaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()
	otps, err := r.otps.ClearExpiredOTPs(ctx, now)
	if err != nil {
		r.logger.Error("failed to sweep expired otps", "error", err)
	}
	magicLinks, err := r.links.ClearExpiredMagicLinks(ctx, now)
	if err != nil {
		r.logger.Error("failed to sweep expired magic links", "error", err)
	}

	if otps > 0 || magicLinks > 0 {
		r.logger.Info("swept expired credentials", "otps", otps, "magic_links", magicLinks)
	}
}
