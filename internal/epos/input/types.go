package input

import (
	"fmt"
	"strings"
)

// Object dictionary entries of the EPOS input configuration.
const (
	IndexConfig uint16 = 0x2070
	IndexFuncs  uint16 = 0x2071

	SubIndexMask     uint8 = 0x02
	SubIndexPolarity uint8 = 0x03
	SubIndexExecute  uint8 = 0x04
	SubIndexEnabled  uint8 = 0x05
)

const (
	// ReservedFunc marks a channel that is not routed to a physical line.
	ReservedFunc = 7
	// DummyFunc marks an unassigned channel slot.
	DummyFunc = 65535

	NumChannels = 8
	NumFuncs    = 5
)

// Function is one of the fixed logical input roles. Its ordinal is the
// value the device stores in a channel slot.
type Function int

const (
	NegSwitch Function = iota
	PosSwitch
	HomeSwitch
	PosMarker
	DevEnable
)

var functionNames = [NumFuncs]string{
	NegSwitch:  "neg_switch",
	PosSwitch:  "pos_switch",
	HomeSwitch: "home_switch",
	PosMarker:  "pos_marker",
	DevEnable:  "dev_enable",
}

// Functions returns all input functions in enumeration order.
func Functions() []Function {
	return []Function{NegSwitch, PosSwitch, HomeSwitch, PosMarker, DevEnable}
}

func (f Function) Valid() bool {
	return f >= NegSwitch && f <= DevEnable
}

func (f Function) String() string {
	if !f.Valid() {
		return fmt.Sprintf("function(%d)", int(f))
	}
	return functionNames[f]
}

// ParseFunction accepts the snake_case name of a function.
func ParseFunction(s string) (Function, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range functionNames {
		if n == name {
			return Function(i), nil
		}
	}
	return 0, fmt.Errorf("unknown input function %q", s)
}

func (f Function) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid input function %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *Function) UnmarshalText(text []byte) error {
	v, err := ParseFunction(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

type Polarity int

const (
	High Polarity = 0
	Low  Polarity = 1
)

func (p Polarity) String() string {
	switch p {
	case High:
		return "high"
	case Low:
		return "low"
	default:
		return fmt.Sprintf("polarity(%d)", int(p))
	}
}

func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "":
		return High, nil
	case "low":
		return Low, nil
	default:
		return High, fmt.Errorf("unknown polarity %q", s)
	}
}

func (p Polarity) MarshalText() ([]byte, error) {
	if p != High && p != Low {
		return nil, fmt.Errorf("invalid polarity %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Polarity) UnmarshalText(text []byte) error {
	v, err := ParsePolarity(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Descriptor holds the settings of one input function.
type Descriptor struct {
	Channel  int      `json:"channel"`
	Polarity Polarity `json:"polarity"`
	Execute  bool     `json:"execute"`
	Enabled  bool     `json:"enabled"`
}

// NewDescriptor builds a descriptor without validating the channel.
func NewDescriptor(channel int, polarity Polarity, execute, enabled bool) Descriptor {
	return Descriptor{
		Channel:  channel,
		Polarity: polarity,
		Execute:  execute,
		Enabled:  enabled,
	}
}

// DefaultDescriptor is the state of a function that was never configured.
func DefaultDescriptor() Descriptor {
	return Descriptor{Channel: DummyFunc, Polarity: High}
}

// Routed reports whether the descriptor claims a physical channel slot.
// ReservedFunc and DummyFunc never do, and neither does anything outside
// the channel bank.
func (d Descriptor) Routed() bool {
	return d.Channel >= 0 && d.Channel < NumChannels && d.Channel != ReservedFunc
}

// ValidChannel reports whether ch is a routable channel or one of the
// two sentinels.
func ValidChannel(ch int) bool {
	return (ch >= 0 && ch < NumChannels) || ch == DummyFunc
}
