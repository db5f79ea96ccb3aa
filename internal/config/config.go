package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	ObjectMaps ObjectMapsConfig `mapstructure:"object_maps"`
	Devices    []DeviceConfig   `mapstructure:"devices"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type ObjectMapsConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

// Transports a device can be reached through.
const (
	TransportSim       = "sim"
	TransportModbusTCP = "modbus-tcp"
	TransportModbusRTU = "modbus-rtu"
)

type DeviceConfig struct {
	Name      string        `mapstructure:"name"`
	Transport string        `mapstructure:"transport"`
	Address   string        `mapstructure:"address"`
	UnitID    uint8         `mapstructure:"unit_id"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Serial    SerialConfig  `mapstructure:"serial"`

	// Object map profile name, searched in ObjectMaps.SearchPaths.
	ObjectMap string `mapstructure:"object_map"`

	ApplyOnStart    bool          `mapstructure:"apply_on_start"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`

	Inputs map[string]InputConfig `mapstructure:"inputs"`
}

type SerialConfig struct {
	BaudRate int    `mapstructure:"baud_rate"`
	DataBits int    `mapstructure:"data_bits"`
	Parity   string `mapstructure:"parity"`
	StopBits int    `mapstructure:"stop_bits"`
}

// InputConfig is one input function. A missing channel leaves the
// function unassigned.
type InputConfig struct {
	Channel  *int   `mapstructure:"channel"`
	Polarity string `mapstructure:"polarity"`
	Execute  bool   `mapstructure:"execute"`
	Enabled  bool   `mapstructure:"enabled"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults setzen
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("object_maps.search_paths", []string{"object-maps"})

	// Environment Variables mit Prefix EPOS_, z.B. EPOS_SERVER_HTTP_PORT
	v.SetEnvPrefix("EPOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Normalize(&config)

	return &config, nil
}

// Normalize fills per-device defaults viper cannot express for list
// elements.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]

		d.Transport = strings.ToLower(strings.TrimSpace(d.Transport))
		if d.Transport == "" {
			d.Transport = TransportSim
		}
		if d.Timeout == 0 {
			d.Timeout = time.Second
		}
		if d.UnitID == 0 {
			d.UnitID = 1
		}
		if d.Transport == TransportModbusRTU {
			if d.Serial.BaudRate == 0 {
				d.Serial.BaudRate = 115200
			}
			if d.Serial.DataBits == 0 {
				d.Serial.DataBits = 8
			}
			if d.Serial.Parity == "" {
				d.Serial.Parity = "N"
			}
			if d.Serial.StopBits == 0 {
				d.Serial.StopBits = 1
			}
		}
	}
}
