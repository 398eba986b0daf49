package devices

import (
	"context"

	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
)

// Repository is the device registry: one row per client install.
type Repository interface {
	GetByDeviceID(ctx context.Context, deviceID string) (*models.Device, error)
	Upsert(ctx context.Context, device *models.Device) error
}
