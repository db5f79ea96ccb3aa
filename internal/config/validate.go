package config

import (
	"fmt"

	"github.com/KevinKickass/eposio/internal/epos/input"
)

// Validate checks configuration correctness without mutating it.
func Validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", cfg.Server.HTTPPort)
	}

	names := make(map[string]bool)

	for i, d := range cfg.Devices {
		if d.Name == "" {
			return fmt.Errorf("devices[%d]: name required", i)
		}
		if names[d.Name] {
			return fmt.Errorf("device %q defined twice", d.Name)
		}
		names[d.Name] = true

		switch d.Transport {
		case TransportSim:
		case TransportModbusTCP, TransportModbusRTU:
			if d.Address == "" {
				return fmt.Errorf("device %q: address required for transport %s", d.Name, d.Transport)
			}
		default:
			return fmt.Errorf("device %q: unknown transport %q", d.Name, d.Transport)
		}

		if d.MonitorInterval < 0 {
			return fmt.Errorf("device %q: negative monitor_interval", d.Name)
		}

		if _, err := d.Funcs(); err != nil {
			return fmt.Errorf("device %q: %w", d.Name, err)
		}
	}

	return nil
}

// Funcs converts the configured inputs into a function table. Functions
// that are not configured keep their defaults.
func (d *DeviceConfig) Funcs() ([input.NumFuncs]input.Descriptor, error) {
	var funcs [input.NumFuncs]input.Descriptor
	for i := range funcs {
		funcs[i] = input.DefaultDescriptor()
	}

	for name, ic := range d.Inputs {
		fn, err := input.ParseFunction(name)
		if err != nil {
			return funcs, err
		}

		desc, err := ic.Descriptor()
		if err != nil {
			return funcs, fmt.Errorf("input %s: %w", name, err)
		}
		funcs[fn] = desc
	}

	return funcs, nil
}

func (ic InputConfig) Descriptor() (input.Descriptor, error) {
	channel := input.DummyFunc
	if ic.Channel != nil {
		channel = *ic.Channel
	}
	if !input.ValidChannel(channel) {
		return input.Descriptor{}, fmt.Errorf("channel %d out of range (0-%d, %d reserved, or %d)", channel, input.ReservedFunc-1, input.ReservedFunc, input.DummyFunc)
	}

	polarity, err := input.ParsePolarity(ic.Polarity)
	if err != nil {
		return input.Descriptor{}, err
	}

	return input.NewDescriptor(channel, polarity, ic.Execute, ic.Enabled), nil
}
