package devices

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/eposio/internal/config"
	"github.com/KevinKickass/eposio/internal/epos/input"
	"github.com/KevinKickass/eposio/internal/epos/sim"
	"go.uber.org/zap/zaptest"
)

// eventRecorder collects published events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan Event, 64)}
}

func (r *eventRecorder) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()

	select {
	case r.ch <- e:
	default:
	}
}

func (r *eventRecorder) ofType(kind EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

func intPtr(v int) *int { return &v }

func simConfig(name string, apply bool) config.DeviceConfig {
	cfg := config.DeviceConfig{
		Name:         name,
		Transport:    config.TransportSim,
		ApplyOnStart: apply,
		Inputs: map[string]config.InputConfig{
			"home_switch": {Channel: intPtr(2), Polarity: "low", Enabled: true},
			"neg_switch":  {Channel: intPtr(0), Execute: true, Enabled: true},
		},
	}
	return cfg
}

func newTestManager(t *testing.T) (*Manager, *eventRecorder) {
	t.Helper()

	rec := newEventRecorder()
	m, err := NewManager([]string{t.TempDir()}, rec, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.StopAll(context.Background()) })
	return m, rec
}

func simOf(t *testing.T, d *InputDevice) *sim.Device {
	t.Helper()
	s, ok := d.conn.(*sim.Device)
	if !ok {
		t.Fatalf("connection is %T, want *sim.Device", d.conn)
	}
	return s
}

func TestManager_LoadDeviceAppliesOnStart(t *testing.T) {
	m, rec := newTestManager(t)

	d, err := m.LoadDevice(context.Background(), simConfig("axis-x", true))
	if err != nil {
		t.Fatalf("LoadDevice: %v", err)
	}

	if d.State() != input.StateConfigured {
		t.Fatalf("state = %s, want configured", d.State())
	}

	s := simOf(t, d)
	if got := s.Object(input.IndexFuncs, 3); got != uint32(input.HomeSwitch) {
		t.Fatalf("slot 2 = %d, want %d", got, input.HomeSwitch)
	}
	if got := s.Object(input.IndexFuncs, 1); got != uint32(input.NegSwitch) {
		t.Fatalf("slot 0 = %d, want %d", got, input.NegSwitch)
	}
	if got := s.Object(input.IndexConfig, input.SubIndexMask); got != 0x05 {
		t.Fatalf("mask = 0x%02X, want 0x05", got)
	}
	if got := s.Object(input.IndexConfig, input.SubIndexPolarity); got != 0x04 {
		t.Fatalf("polarity = 0x%02X, want 0x04", got)
	}
	if got := s.Object(input.IndexConfig, input.SubIndexExecute); got != 0x01 {
		t.Fatalf("execute = 0x%02X, want 0x01", got)
	}
	if len(s.Writes()) != 12 {
		t.Fatalf("writes = %d, want 12", len(s.Writes()))
	}

	setups := rec.ofType(EventInputSetup)
	if len(setups) != 1 {
		t.Fatalf("setup events = %d, want 1", len(setups))
	}
	result := setups[0].Data.(SetupResult)
	if result.Code != int(input.ErrorNone) || result.Message != "no error" {
		t.Fatalf("setup result = %+v", result)
	}
	if setups[0].DeviceID != d.ID || setups[0].Device != "axis-x" {
		t.Fatalf("event addressed to %s/%s", setups[0].DeviceID, setups[0].Device)
	}
}

func TestManager_LoadDeviceWithoutApply(t *testing.T) {
	m, rec := newTestManager(t)

	d, err := m.LoadDevice(context.Background(), simConfig("axis-y", false))
	if err != nil {
		t.Fatalf("LoadDevice: %v", err)
	}

	if d.State() != input.StateBound {
		t.Fatalf("state = %s, want bound", d.State())
	}
	if n := len(simOf(t, d).Writes()); n != 0 {
		t.Fatalf("writes = %d, want none", n)
	}
	if got := d.Func(input.HomeSwitch); got.Channel != 2 || got.Polarity != input.Low {
		t.Fatalf("home switch = %+v", got)
	}
	if len(rec.ofType(EventInputSetup)) != 0 {
		t.Fatalf("unexpected setup event")
	}
}

func TestManager_RejectsDuplicateAndInvalid(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.LoadDevice(ctx, simConfig("axis-x", false)); err != nil {
		t.Fatalf("LoadDevice: %v", err)
	}
	if _, err := m.LoadDevice(ctx, simConfig("axis-x", false)); err == nil {
		t.Fatalf("expected duplicate name error")
	}

	bad := simConfig("axis-z", false)
	bad.Inputs["pos_marker"] = config.InputConfig{Channel: intPtr(9)}
	if _, err := m.LoadDevice(ctx, bad); err == nil {
		t.Fatalf("expected invalid channel error")
	}

	unknown := simConfig("axis-w", false)
	unknown.Transport = "canopen"
	if _, err := m.LoadDevice(ctx, unknown); err == nil {
		t.Fatalf("expected unknown transport error")
	}

	if n := len(m.ListDevices()); n != 1 {
		t.Fatalf("devices = %d, want 1", n)
	}
}

func TestInputDevice_SetFuncFailureKeepsMemory(t *testing.T) {
	m, rec := newTestManager(t)
	ctx := context.Background()

	d, err := m.LoadDevice(ctx, simConfig("axis-x", false))
	if err != nil {
		t.Fatalf("LoadDevice: %v", err)
	}

	simOf(t, d).FailWrite(input.IndexConfig, input.SubIndexEnabled, errors.New("sdo abort"))

	want := input.NewDescriptor(4, input.High, false, true)
	err = d.SetFunc(ctx, input.PosMarker, want)
	if input.Code(err) != input.ErrorSetup {
		t.Fatalf("code = %v, want setup failed (err %v)", input.Code(err), err)
	}
	if got := d.Func(input.PosMarker); got != want {
		t.Fatalf("memory = %+v, want %+v", got, want)
	}
	if d.State() != input.StateConfigured {
		t.Fatalf("state = %s, want configured", d.State())
	}

	setups := rec.ofType(EventInputSetup)
	if len(setups) != 1 {
		t.Fatalf("setup events = %d, want 1", len(setups))
	}
	result := setups[0].Data.(SetupResult)
	if result.Code != int(input.ErrorSetup) || result.Error == "" {
		t.Fatalf("setup result = %+v", result)
	}

	simOf(t, d).FailWrite(input.IndexConfig, input.SubIndexEnabled, nil)
	if err := d.Setup(ctx); err != nil {
		t.Fatalf("retry Setup: %v", err)
	}
	if ok, err := d.Verify(ctx); err != nil || !ok {
		t.Fatalf("Verify = %v, %v", ok, err)
	}
}

func TestInputDevice_PatchKeepsOtherFields(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	d, err := m.LoadDevice(ctx, simConfig("axis-x", true))
	if err != nil {
		t.Fatalf("LoadDevice: %v", err)
	}

	low := input.Low
	if err := d.Patch(ctx, input.NegSwitch, FuncPatch{Polarity: &low}); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	got := d.Func(input.NegSwitch)
	want := input.NewDescriptor(0, input.Low, true, true)
	if got != want {
		t.Fatalf("neg switch = %+v, want %+v", got, want)
	}
	if pol := simOf(t, d).Object(input.IndexConfig, input.SubIndexPolarity); pol != 0x05 {
		t.Fatalf("polarity = 0x%02X, want 0x05", pol)
	}

	if err := d.Patch(ctx, input.Function(9), FuncPatch{Polarity: &low}); err == nil {
		t.Fatalf("expected error for invalid function")
	}
}

func TestInputDevice_SyncAdoptsDevice(t *testing.T) {
	m, rec := newTestManager(t)
	ctx := context.Background()

	d, err := m.LoadDevice(ctx, simConfig("axis-x", false))
	if err != nil {
		t.Fatalf("LoadDevice: %v", err)
	}

	s := simOf(t, d)
	s.Poke(input.IndexFuncs, 6, uint32(input.DevEnable))
	s.Poke(input.IndexConfig, input.SubIndexMask, 1<<5)
	s.Poke(input.IndexConfig, input.SubIndexEnabled, 1<<5)

	if err := d.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if got := d.Func(input.DevEnable); got.Channel != 5 || !got.Enabled {
		t.Fatalf("dev enable = %+v", got)
	}
	if got := d.Func(input.HomeSwitch); got.Channel != input.DummyFunc {
		t.Fatalf("home switch = %+v, want unassigned", got)
	}
	if len(rec.ofType(EventInputConfig)) == 0 {
		t.Fatalf("no config event after sync")
	}
}

func TestInputDevice_CheckDrift(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	d, err := m.LoadDevice(ctx, simConfig("axis-x", true))
	if err != nil {
		t.Fatalf("LoadDevice: %v", err)
	}

	if _, drifted, err := d.CheckDrift(ctx); err != nil || drifted {
		t.Fatalf("CheckDrift = %v, %v; want no drift", drifted, err)
	}

	simOf(t, d).Poke(input.IndexConfig, input.SubIndexExecute, 0xFF)

	report, drifted, err := d.CheckDrift(ctx)
	if err != nil || !drifted {
		t.Fatalf("CheckDrift = %v, %v; want drift", drifted, err)
	}
	if report.Actual.Execute != 0xFF || report.Expected.Execute != 0x01 {
		t.Fatalf("report = %+v", report)
	}
}

func TestMonitor_PublishesDrift(t *testing.T) {
	m, rec := newTestManager(t)
	ctx := context.Background()

	d, err := m.LoadDevice(ctx, simConfig("axis-x", true))
	if err != nil {
		t.Fatalf("LoadDevice: %v", err)
	}
	if err := m.StartMonitor(d.ID, 10*time.Millisecond); err != nil {
		t.Fatalf("StartMonitor: %v", err)
	}
	monitor, ok := m.GetMonitor(d.ID)
	if !ok || !monitor.IsRunning() {
		t.Fatalf("monitor not running")
	}

	simOf(t, d).Poke(input.IndexFuncs, 8, uint32(input.PosSwitch))

	report := waitDrift(t, rec)
	if !report.Drifted || report.Actual.Slots[7] != uint16(input.PosSwitch) {
		t.Fatalf("drift report = %+v", report)
	}
	if !monitor.Drifted() {
		t.Fatalf("monitor does not report drift")
	}

	// erneutes Setup bringt das Gerät zurück
	if err := d.Setup(ctx); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	report = waitDrift(t, rec)
	if report.Drifted || report.Expected != report.Actual {
		t.Fatalf("back-in-sync report = %+v", report)
	}
	if monitor.Drifted() {
		t.Fatalf("monitor still reports drift")
	}
	if n := len(rec.ofType(EventInputDrift)); n != 2 {
		t.Fatalf("input_drift events = %d, want 2", n)
	}

	monitor.Stop()
	if monitor.IsRunning() {
		t.Fatalf("monitor still running after Stop")
	}
}

func waitDrift(t *testing.T, rec *eventRecorder) DriftReport {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-rec.ch:
			if e.Type == EventInputDrift {
				return e.Data.(DriftReport)
			}
		case <-deadline:
			t.Fatalf("no input_drift event within 2s")
		}
	}
}

func TestManager_LookupAndStopAll(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	d, err := m.LoadDevice(ctx, simConfig("axis-x", false))
	if err != nil {
		t.Fatalf("LoadDevice: %v", err)
	}
	if err := m.StartMonitor(d.ID, time.Hour); err != nil {
		t.Fatalf("StartMonitor: %v", err)
	}

	if got, ok := m.Lookup(d.ID.String()); !ok || got != d {
		t.Fatalf("lookup by id failed")
	}
	if got, ok := m.Lookup("axis-x"); !ok || got != d {
		t.Fatalf("lookup by name failed")
	}
	if _, ok := m.Lookup("axis-q"); ok {
		t.Fatalf("lookup of unknown device succeeded")
	}

	if err := m.StopAll(ctx); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if d.State() != input.StateDestroyed {
		t.Fatalf("state = %s, want destroyed", d.State())
	}
	if len(m.ListDevices()) != 0 {
		t.Fatalf("devices left after StopAll")
	}
	if _, _, err := d.CheckDrift(ctx); err == nil {
		t.Fatalf("CheckDrift on closed device succeeded")
	}
}

func TestManager_LoadAllStartsMonitors(t *testing.T) {
	m, _ := newTestManager(t)

	a := simConfig("axis-a", true)
	a.MonitorInterval = time.Hour
	b := simConfig("axis-b", false)

	if err := m.LoadAll(context.Background(), []config.DeviceConfig{b, a}); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	list := m.ListDevices()
	if len(list) != 2 || list[0].Name != "axis-a" || list[1].Name != "axis-b" {
		t.Fatalf("devices = %v", list)
	}
	if _, ok := m.GetMonitor(list[0].ID); !ok {
		t.Fatalf("monitor for axis-a not started")
	}
	if _, ok := m.GetMonitor(list[1].ID); ok {
		t.Fatalf("monitor for axis-b started without interval")
	}
}
