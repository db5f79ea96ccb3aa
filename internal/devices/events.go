package devices

import (
	"github.com/KevinKickass/eposio/internal/epos/input"
	"github.com/google/uuid"
)

type EventType string

const (
	EventInputConfig EventType = "input_config"
	EventInputSetup  EventType = "input_setup"
	EventInputDrift  EventType = "input_drift"
)

type Event struct {
	Type     EventType
	DeviceID uuid.UUID
	Device   string
	Data     interface{}
}

// EventSink receives device events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

// SetupResult is the outcome of one apply.
type SetupResult struct {
	Code    int                `json:"code"`
	Message string             `json:"message"`
	Error   string             `json:"error,omitempty"`
	Packed  input.PackedConfig `json:"packed"`
}

// DriftReport compares the packed table with what the drive holds. It is
// published whenever a device drifts or comes back in sync.
type DriftReport struct {
	Drifted  bool               `json:"drifted"`
	Expected input.PackedConfig `json:"expected"`
	Actual   input.PackedConfig `json:"actual"`
}
