package system

import (
	"context"
	"testing"
	"time"

	"github.com/KevinKickass/eposio/internal/config"
	"github.com/KevinKickass/eposio/internal/epos/input"
	"go.uber.org/zap/zaptest"
)

func TestValidateTransition(t *testing.T) {
	cases := []struct {
		from, to SystemState
		ok       bool
	}{
		{StateInitializing, StateRunning, true},
		{StateRunning, StateStopping, true},
		{StateStopping, StateStopped, true},
		{StateError, StateStopped, true},
		{StateStopped, StateInitializing, true},
		{StateRunning, StateInitializing, false},
		{StateStopped, StateRunning, false},
		{SystemState(42), StateRunning, false},
	}

	for _, tc := range cases {
		err := ValidateTransition(tc.from, tc.to)
		if (err == nil) != tc.ok {
			t.Fatalf("%s -> %s: err = %v, want ok=%v", tc.from, tc.to, err, tc.ok)
		}
	}
}

func intPtr(v int) *int { return &v }

func TestLifecycle_StartAndShutdown(t *testing.T) {
	cfg := &config.Config{
		Server:     config.ServerConfig{HTTPPort: 0, ShutdownTimeout: 5 * time.Second},
		ObjectMaps: config.ObjectMapsConfig{SearchPaths: []string{t.TempDir()}},
		Devices: []config.DeviceConfig{
			{
				Name:            "axis-x",
				Transport:       config.TransportSim,
				ApplyOnStart:    true,
				MonitorInterval: time.Hour,
				Inputs: map[string]config.InputConfig{
					"home_switch": {Channel: intPtr(2), Enabled: true},
				},
			},
			{
				Name:      "axis-y",
				Transport: config.TransportSim,
			},
			{
				Name:      "broken",
				Transport: "profibus",
			},
		},
	}

	lm, err := NewLifecycleManager(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewLifecycleManager: %v", err)
	}

	ctx := context.Background()
	if err := lm.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if lm.State() != StateRunning {
		t.Fatalf("state = %s, want RUNNING", lm.State())
	}

	status := lm.GetCurrentStatus()
	if status.DeviceCount != 2 || status.ConfiguredDevices != 1 || status.DriftedDevices != 0 {
		t.Fatalf("status = %+v", status)
	}

	device, ok := lm.DeviceManager().GetDeviceByName("axis-x")
	if !ok {
		t.Fatalf("axis-x not loaded")
	}
	if _, running := lm.DeviceManager().GetMonitor(device.ID); !running {
		t.Fatalf("monitor for axis-x not running")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lm.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case <-lm.Done():
	default:
		t.Fatalf("Done not closed after Shutdown")
	}
	if lm.State() != StateStopped {
		t.Fatalf("state = %s, want STOPPED", lm.State())
	}
	if device.State() != input.StateDestroyed {
		t.Fatalf("device state = %s, want destroyed", device.State())
	}

	// second call is a no-op
	if err := lm.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestLifecycle_ShutdownWithoutStart(t *testing.T) {
	cfg := &config.Config{
		Server:     config.ServerConfig{ShutdownTimeout: time.Second},
		ObjectMaps: config.ObjectMapsConfig{SearchPaths: []string{t.TempDir()}},
	}

	lm, err := NewLifecycleManager(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewLifecycleManager: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- lm.Shutdown(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Shutdown blocked without a running hub")
	}
	if lm.State() != StateStopped {
		t.Fatalf("state = %s, want STOPPED", lm.State())
	}
}
