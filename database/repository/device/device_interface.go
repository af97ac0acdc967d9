package deviceRepo

import (
	"context"
	"errors"

	"urbana/models"
)

var ErrNoDevice = errors.New("no push device registered")

// DeviceRepository stores the push token notifications are delivered to.
type DeviceRepository interface {
	// Upsert registers or replaces the user's device.
	Upsert(ctx context.Context, device *models.PushDevice) error
	// GetByUser returns ErrNoDevice when the user never registered one.
	GetByUser(ctx context.Context, userID string) (*models.PushDevice, error)
	Delete(ctx context.Context, userID string) error
}
