package devices

import (
	"fmt"

	"github.com/KevinKickass/eposio/internal/config"
	"github.com/KevinKickass/eposio/internal/epos/input"
	"github.com/KevinKickass/eposio/internal/epos/sim"
	"github.com/KevinKickass/eposio/internal/modbus"
	"go.uber.org/zap"
)

// Connection is a device link the manager owns: object dictionary access
// plus its life-cycle.
type Connection interface {
	input.Device
	Connect() error
	Close() error
}

// OpenConnection builds the connection for a configured device. It does
// not connect.
func OpenConnection(cfg config.DeviceConfig, loader *ProfileLoader, logger *zap.Logger) (Connection, error) {
	switch cfg.Transport {
	case config.TransportSim:
		return sim.New(logger.Named("sim")), nil

	case config.TransportModbusTCP:
		profile, err := loader.Load(cfg.ObjectMap)
		if err != nil {
			return nil, err
		}
		client := modbus.NewClient(cfg.Address, cfg.Timeout)
		return modbus.NewGateway(cfg.Name, client, cfg.UnitID, profile, logger)

	case config.TransportModbusRTU:
		profile, err := loader.Load(cfg.ObjectMap)
		if err != nil {
			return nil, err
		}
		client, err := modbus.NewRTUClient(modbus.SerialConfig{
			Device:   cfg.Address,
			BaudRate: cfg.Serial.BaudRate,
			DataBits: cfg.Serial.DataBits,
			Parity:   cfg.Serial.Parity,
			StopBits: cfg.Serial.StopBits,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return modbus.NewGateway(cfg.Name, client, cfg.UnitID, profile, logger)

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
