package types

import (
	"fmt"

	"github.com/google/uuid"
)

// ObjectMapProfile describes how a gateway exposes object dictionary
// entries of a drive as Modbus holding registers.
type ObjectMapProfile struct {
	Profile ObjectMapInfo      `json:"profile" yaml:"profile"`
	Objects []ObjectDefinition `json:"objects" yaml:"objects"`
}

type ObjectMapInfo struct {
	ID          string `json:"id" yaml:"id"`
	Vendor      string `json:"vendor" yaml:"vendor"`
	Model       string `json:"model" yaml:"model"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description" yaml:"description"`
}

type ObjectDefinition struct {
	Name        string     `json:"name" yaml:"name"`
	Index       uint16     `json:"index" yaml:"index"`
	SubIndex    uint8      `json:"subindex" yaml:"subindex"`
	Address     uint16     `json:"address" yaml:"address"`
	DataType    DataType   `json:"data_type" yaml:"data_type"`
	Access      AccessType `json:"access" yaml:"access"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
}

// ObjectKey addresses one entry of the object dictionary.
type ObjectKey struct {
	Index    uint16
	SubIndex uint8
}

func (k ObjectKey) String() string {
	return fmt.Sprintf("0x%04X/0x%02X", k.Index, k.SubIndex)
}

func (o *ObjectDefinition) Key() ObjectKey {
	return ObjectKey{Index: o.Index, SubIndex: o.SubIndex}
}

type DataType string

const (
	DataTypeUint8  DataType = "uint8"
	DataTypeUint16 DataType = "uint16"
	DataTypeUint32 DataType = "uint32"
)

// Registers returns the number of 16 bit registers a value occupies.
func (d DataType) Registers() uint16 {
	if d == DataTypeUint32 {
		return 2
	}
	return 1
}

// Max returns the largest value the type holds.
func (d DataType) Max() uint32 {
	switch d {
	case DataTypeUint8:
		return 0xFF
	case DataTypeUint16:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}

type AccessType string

const (
	AccessTypeReadOnly  AccessType = "read_only"
	AccessTypeReadWrite AccessType = "read_write"
)

// Device Runtime Info
type DeviceInfo struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Transport string    `json:"transport"`
	Address   string    `json:"address,omitempty"`
	UnitID    uint8     `json:"unit_id"`
	State     string    `json:"state"`
}
