// Package devices provides a PostgreSQL-backed device registry.
package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/dbx"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByDeviceID(ctx context.Context, deviceID string) (*models.Device, error) {
	query := `
		SELECT id, device_id, account_id, platform, push_token, app_version, last_seen_at
		FROM devices
		WHERE device_id = $1
	`
	d := &models.Device{}
	err := r.db.QueryRowContext(ctx, query, deviceID).
		Scan(&d.ID, &d.DeviceID, &d.AccountID, &d.Platform, &d.PushToken, &d.AppVersion, &d.LastSeenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

// Upsert registers device or refreshes its owner and metadata. A missing
// push token or app version keeps the stored value.
func (r *PostgresRepository) Upsert(ctx context.Context, device *models.Device) error {
	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	query := `
		INSERT INTO devices (id, device_id, account_id, platform, push_token, app_version, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (device_id)
		DO UPDATE SET account_id = EXCLUDED.account_id,
		              platform = EXCLUDED.platform,
		              push_token = COALESCE(EXCLUDED.push_token, devices.push_token),
		              app_version = COALESCE(EXCLUDED.app_version, devices.app_version),
		              last_seen_at = now()
	`
	_, err := r.db.ExecContext(ctx, query,
		device.ID, device.DeviceID, device.AccountID, device.Platform, device.PushToken, device.AppVersion)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
