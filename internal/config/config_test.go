package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/eposio/internal/epos/input"
)

const sampleConfig = `
server:
  http_port: 9090
devices:
  - name: axis-x
    transport: modbus-tcp
    address: 10.0.0.5:502
    object_map: epos-inputs
    apply_on_start: true
    monitor_interval: 2s
    inputs:
      neg_switch:
        channel: 0
        polarity: low
        enabled: true
      home_switch:
        channel: 2
        execute: true
        enabled: true
  - name: axis-y
    transport: modbus-rtu
    address: /dev/ttyUSB0
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config err=%v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate err=%v", err)
	}

	if cfg.Server.HTTPPort != 9090 {
		t.Fatalf("http_port: got %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Fatalf("shutdown_timeout default: got %v", cfg.Server.ShutdownTimeout)
	}
	if len(cfg.ObjectMaps.SearchPaths) != 1 || cfg.ObjectMaps.SearchPaths[0] != "object-maps" {
		t.Fatalf("search_paths default: got %v", cfg.ObjectMaps.SearchPaths)
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(cfg.Devices))
	}

	x := cfg.Devices[0]
	if x.UnitID != 1 || x.Timeout != time.Second || x.MonitorInterval != 2*time.Second || !x.ApplyOnStart {
		t.Fatalf("unexpected device settings %+v", x)
	}

	funcs, err := x.Funcs()
	if err != nil {
		t.Fatalf("Funcs err=%v", err)
	}
	if funcs[input.NegSwitch] != input.NewDescriptor(0, input.Low, false, true) {
		t.Fatalf("neg_switch: %+v", funcs[input.NegSwitch])
	}
	if funcs[input.HomeSwitch] != input.NewDescriptor(2, input.High, true, true) {
		t.Fatalf("home_switch: %+v", funcs[input.HomeSwitch])
	}
	if funcs[input.DevEnable] != input.DefaultDescriptor() {
		t.Fatalf("dev_enable should stay default: %+v", funcs[input.DevEnable])
	}

	y := cfg.Devices[1]
	if y.Serial.BaudRate != 115200 || y.Serial.Parity != "N" || y.Serial.DataBits != 8 || y.Serial.StopBits != 1 {
		t.Fatalf("serial defaults not applied: %+v", y.Serial)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EPOS_SERVER_HTTP_PORT", "7070")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.HTTPPort != 7070 {
		t.Fatalf("expected env override 7070, got %d", cfg.Server.HTTPPort)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate_Errors(t *testing.T) {
	ch := func(v int) *int { return &v }

	cases := []struct {
		name string
		dev  DeviceConfig
		want string
	}{
		{"no name", DeviceConfig{Transport: TransportSim}, "name required"},
		{"transport", DeviceConfig{Name: "a", Transport: "canbus"}, "unknown transport"},
		{"address", DeviceConfig{Name: "a", Transport: TransportModbusTCP}, "address required"},
		{"function", DeviceConfig{Name: "a", Transport: TransportSim, Inputs: map[string]InputConfig{"brake": {}}}, "unknown input function"},
		{"channel", DeviceConfig{Name: "a", Transport: TransportSim, Inputs: map[string]InputConfig{"neg_switch": {Channel: ch(9)}}}, "out of range"},
		{"polarity", DeviceConfig{Name: "a", Transport: TransportSim, Inputs: map[string]InputConfig{"neg_switch": {Polarity: "up"}}}, "unknown polarity"},
	}

	for _, tc := range cases {
		cfg := &Config{Server: ServerConfig{HTTPPort: 8080}, Devices: []DeviceConfig{tc.dev}}
		err := Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}

	dup := &Config{
		Server:  ServerConfig{HTTPPort: 8080},
		Devices: []DeviceConfig{{Name: "a", Transport: TransportSim}, {Name: "a", Transport: TransportSim}},
	}
	if err := Validate(dup); err == nil {
		t.Fatalf("expected duplicate device error")
	}
}

func TestInputConfig_SentinelChannels(t *testing.T) {
	unassigned, err := InputConfig{}.Descriptor()
	if err != nil || unassigned.Channel != input.DummyFunc {
		t.Fatalf("missing channel: %+v %v", unassigned, err)
	}

	reserved := input.ReservedFunc
	d, err := InputConfig{Channel: &reserved}.Descriptor()
	if err != nil || d.Routed() {
		t.Fatalf("reserved channel: %+v %v", d, err)
	}
}
