package devices

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor periodically reads the input configuration back from a device
// and reports drift.
type Monitor struct {
	device   *InputDevice
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	drifted  bool
	mu       sync.Mutex
}

func NewMonitor(device *InputDevice, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		device:   device,
		interval: interval,
		logger:   logger.With(zap.String("device", device.Name)),
		stopChan: make(chan struct{}),
	}
}

// Start startet die zyklische Prüfung
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	m.running = true
	m.wg.Add(1)

	go m.loop()

	m.logger.Info("Drift monitor started", zap.Duration("interval", m.interval))

	return nil
}

// Stop stoppt die Prüfung
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	close(m.stopChan)
	m.wg.Wait()

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	m.logger.Info("Drift monitor stopped")
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *Monitor) check() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval/2)
	defer cancel()

	report, drifted, err := m.device.CheckDrift(ctx)
	if err != nil {
		m.logger.Error("Drift check failed", zap.Error(err))
		return
	}

	m.mu.Lock()
	changed := drifted != m.drifted
	m.drifted = drifted
	m.mu.Unlock()

	// Nur Zustandswechsel melden
	if !changed {
		return
	}

	if drifted {
		m.logger.Warn("Input configuration drifted",
			zap.String("expected", report.Expected.Hex()),
			zap.String("actual", report.Actual.Hex()))
	} else {
		m.logger.Info("Input configuration back in sync")
	}
	m.device.publish(EventInputDrift, report)
}

// IsRunning reports whether the monitor is checking the device.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Drifted reports the result of the last successful check.
func (m *Monitor) Drifted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drifted
}
