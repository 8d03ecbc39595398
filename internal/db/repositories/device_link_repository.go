// device_link_repository.go implements DeviceLinkRepository, providing database queries
// for the hardware device to beta account bindings and their license snapshots.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dotctl/beta-portal/internal/db/models"
)

// DeviceLinkRepository handles database operations for device links
type DeviceLinkRepository struct {
	db *sqlx.DB
}

// NewDeviceLinkRepository creates a new device link repository
func NewDeviceLinkRepository(db *sqlx.DB) *DeviceLinkRepository {
	return &DeviceLinkRepository{db: db}
}

// InsertDeviceLink persists a new device binding. The unique index on
// hardware_id is the authoritative uniqueness check; callers translate a
// unique violation (IsUniqueViolation) into their conflict error after the
// friendlier pre-checks have already passed.
func (r *DeviceLinkRepository) InsertDeviceLink(ctx context.Context, link *models.DeviceLink) error {
	link.ID = uuid.New().String()
	now := time.Now()
	if link.LinkedAt.IsZero() {
		link.LinkedAt = now
	}
	if link.LastChecked.IsZero() {
		link.LastChecked = now
	}

	query := `
		INSERT INTO device_links (
			id, beta_user_id, hardware_id, linked_at, last_checked,
			months_used_for_license, remaining_reward_months,
			last_license_key, license_expires_at
		) VALUES (
			:id, :beta_user_id, :hardware_id, :linked_at, :last_checked,
			:months_used_for_license, :remaining_reward_months,
			:last_license_key, :license_expires_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, link)
	return err
}

// GetDeviceLinkByHardwareID retrieves a device link by its hardware identifier
func (r *DeviceLinkRepository) GetDeviceLinkByHardwareID(ctx context.Context, hardwareID string) (*models.DeviceLink, error) {
	var link models.DeviceLink
	query := `SELECT * FROM device_links WHERE hardware_id = $1`
	err := r.db.GetContext(ctx, &link, query, hardwareID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// ListDeviceLinksByUser retrieves all devices bound to one account
func (r *DeviceLinkRepository) ListDeviceLinksByUser(ctx context.Context, betaUserID string) ([]*models.DeviceLink, error) {
	var links []*models.DeviceLink
	query := `SELECT * FROM device_links WHERE beta_user_id = $1 ORDER BY linked_at ASC`
	err := r.db.SelectContext(ctx, &links, query, betaUserID)
	return links, err
}

// TouchLastChecked refreshes the last status-check timestamp for a device
func (r *DeviceLinkRepository) TouchLastChecked(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE device_links SET last_checked = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, at)
	return err
}
