package deviceRepo

import (
	"context"
	"sync"
	"time"

	"urbana/models"
)

// MemoryDeviceRepo keeps devices in process memory. Used with the memory ledger backend and in tests.
type MemoryDeviceRepo struct {
	mu      sync.RWMutex
	devices map[string]models.PushDevice
}

func NewMemoryDeviceRepo() *MemoryDeviceRepo {
	return &MemoryDeviceRepo{devices: make(map[string]models.PushDevice)}
}

func (r *MemoryDeviceRepo) Upsert(ctx context.Context, device *models.PushDevice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	device.UpdatedAt = time.Now().UTC()
	r.devices[device.UserID] = *device
	return nil
}

func (r *MemoryDeviceRepo) GetByUser(ctx context.Context, userID string) (*models.PushDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[userID]
	if !ok {
		return nil, ErrNoDevice
	}
	return &d, nil
}

func (r *MemoryDeviceRepo) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, userID)
	return nil
}

var _ DeviceRepository = (*MemoryDeviceRepo)(nil)
