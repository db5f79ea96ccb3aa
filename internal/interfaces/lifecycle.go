package interfaces

import (
	"context"

	"github.com/KevinKickass/eposio/internal/config"
	"github.com/KevinKickass/eposio/internal/devices"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State             string `json:"state"`
	DeviceCount       int    `json:"device_count"`
	ConfiguredDevices int    `json:"configured_devices"`
	DriftedDevices    int    `json:"drifted_devices"`
	Error             string `json:"error,omitempty"`
	Timestamp         int64  `json:"timestamp"`
}

type LifecycleManager interface {
	Config() *config.Config
	DeviceManager() *devices.Manager
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
