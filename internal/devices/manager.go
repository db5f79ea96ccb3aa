package devices

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KevinKickass/eposio/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Manager struct {
	loader   *ProfileLoader
	devices  map[uuid.UUID]*InputDevice
	monitors map[uuid.UUID]*Monitor
	events   EventSink
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewManager creates a manager resolving object maps from searchPaths.
// events may be nil.
func NewManager(searchPaths []string, events EventSink, logger *zap.Logger) (*Manager, error) {
	loader, err := NewProfileLoader(searchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile loader: %w", err)
	}

	return &Manager{
		loader:   loader,
		devices:  make(map[uuid.UUID]*InputDevice),
		monitors: make(map[uuid.UUID]*Monitor),
		events:   events,
		logger:   logger,
	}, nil
}

// LoadDevice connects a configured device and binds its input module.
// With ApplyOnStart the configured table is pushed right away; a failed
// push is logged and the device stays registered so it can be retried.
func (m *Manager) LoadDevice(ctx context.Context, cfg config.DeviceConfig) (*InputDevice, error) {
	if _, exists := m.GetDeviceByName(cfg.Name); exists {
		return nil, fmt.Errorf("device already loaded: %s", cfg.Name)
	}

	conn, err := OpenConnection(cfg, m.loader, m.logger.With(zap.String("device", cfg.Name)))
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	device, err := newInputDevice(cfg, conn, m.events, m.logger)
	if err != nil {
		return nil, fmt.Errorf("invalid input configuration for %s: %w", cfg.Name, err)
	}

	// Connect
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect device: %w", err)
	}

	m.mu.Lock()
	m.devices[device.ID] = device
	m.mu.Unlock()

	m.logger.Info("Device loaded",
		zap.String("name", cfg.Name),
		zap.String("transport", cfg.Transport),
		zap.String("address", cfg.Address),
		zap.String("id", device.ID.String()))

	if cfg.ApplyOnStart {
		if err := device.Setup(ctx); err != nil {
			m.logger.Error("Initial input setup failed",
				zap.String("device", cfg.Name),
				zap.Error(err))
		}
	}

	return device, nil
}

// LoadAll loads every configured device and starts its monitor. A device
// that fails to load is skipped; all failures are returned joined.
func (m *Manager) LoadAll(ctx context.Context, cfgs []config.DeviceConfig) error {
	var errs []error
	for _, cfg := range cfgs {
		device, err := m.LoadDevice(ctx, cfg)
		if err != nil {
			m.logger.Error("Failed to load device",
				zap.String("device", cfg.Name),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("device %s: %w", cfg.Name, err))
			continue
		}

		if cfg.MonitorInterval > 0 {
			if err := m.StartMonitor(device.ID, cfg.MonitorInterval); err != nil {
				errs = append(errs, fmt.Errorf("device %s: %w", cfg.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// StartMonitor starts the drift monitor for a device
func (m *Manager) StartMonitor(deviceID uuid.UUID, interval time.Duration) error {
	m.mu.RLock()
	device, exists := m.devices[deviceID]
	_, running := m.monitors[deviceID]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("device not found: %s", deviceID)
	}
	if running {
		return nil
	}
	if interval <= 0 {
		return fmt.Errorf("invalid monitor interval: %s", interval)
	}

	monitor := NewMonitor(device, interval, m.logger)
	if err := monitor.Start(); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	m.mu.Lock()
	m.monitors[deviceID] = monitor
	m.mu.Unlock()

	return nil
}

// GetMonitor returns the drift monitor of a device, if one runs.
func (m *Manager) GetMonitor(deviceID uuid.UUID) (*Monitor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	monitor, exists := m.monitors[deviceID]
	return monitor, exists
}

// GetDevice returns device by ID
func (m *Manager) GetDevice(deviceID uuid.UUID) (*InputDevice, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.devices[deviceID]
	return device, exists
}

// GetDeviceByName returns device by name
func (m *Manager) GetDeviceByName(name string) (*InputDevice, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, device := range m.devices {
		if device.Name == name {
			return device, true
		}
	}

	return nil, false
}

// Lookup resolves a device by UUID or by name.
func (m *Manager) Lookup(ref string) (*InputDevice, bool) {
	if id, err := uuid.Parse(ref); err == nil {
		if device, ok := m.GetDevice(id); ok {
			return device, true
		}
	}
	return m.GetDeviceByName(ref)
}

// StopAll stops all monitors and closes all devices
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Stop all monitors
	for id, monitor := range m.monitors {
		monitor.Stop()
		delete(m.monitors, id)
	}

	// Close all devices
	var firstErr error
	for id, device := range m.devices {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := device.Close(); err != nil {
			m.logger.Error("Failed to close device",
				zap.String("device", device.Name),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
		delete(m.devices, id)
	}

	return firstErr
}

// ListDevices returns all devices sorted by name
func (m *Manager) ListDevices() []*InputDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]*InputDevice, 0, len(m.devices))
	for _, device := range m.devices {
		devices = append(devices, device)
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Name < devices[j].Name
	})

	return devices
}
