package modbus

import (
	"context"
	"fmt"

	"github.com/KevinKickass/eposio/internal/types"
	"go.uber.org/zap"
)

// Gateway gives object dictionary access to a drive behind a Modbus
// gateway. Each object is mapped onto one or two holding registers by an
// object map profile; 32 bit values are stored high word first.
type Gateway struct {
	Name    string
	Profile *types.ObjectMapProfile
	Client  RegisterClient

	unitID  uint8
	objects map[types.ObjectKey]*types.ObjectDefinition
	logger  *zap.Logger
}

func NewGateway(
	name string,
	client RegisterClient,
	unitID uint8,
	profile *types.ObjectMapProfile,
	logger *zap.Logger,
) (*Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("gateway %s: register client required", name)
	}
	if profile == nil {
		return nil, fmt.Errorf("gateway %s: object map profile required", name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	objects := make(map[types.ObjectKey]*types.ObjectDefinition, len(profile.Objects))
	for i := range profile.Objects {
		obj := &profile.Objects[i]
		key := obj.Key()
		if _, dup := objects[key]; dup {
			return nil, fmt.Errorf("gateway %s: object %s mapped twice", name, key)
		}
		objects[key] = obj
	}

	return &Gateway{
		Name:    name,
		Profile: profile,
		Client:  client,
		unitID:  unitID,
		objects: objects,
		logger:  logger,
	}, nil
}

func (g *Gateway) Connect() error {
	if err := g.Client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", g.Name, err)
	}
	return nil
}

func (g *Gateway) Close() error {
	return g.Client.Close()
}

func (g *Gateway) lookup(index uint16, subindex uint8) (*types.ObjectDefinition, error) {
	key := types.ObjectKey{Index: index, SubIndex: subindex}
	obj, ok := g.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not mapped by profile %s", key, g.Profile.Profile.ID)
	}
	return obj, nil
}

// ReadObject reads an object through its mapped registers.
func (g *Gateway) ReadObject(ctx context.Context, index uint16, subindex uint8) (uint32, error) {
	obj, err := g.lookup(index, subindex)
	if err != nil {
		return 0, err
	}

	regs, err := g.Client.ReadHoldingRegisters(ctx, g.unitID, obj.Address, obj.DataType.Registers())
	if err != nil {
		return 0, fmt.Errorf("failed to read object %s (%s): %w", obj.Key(), obj.Name, err)
	}

	return decodeValue(regs, obj.DataType), nil
}

// WriteObject writes an object through its mapped registers.
func (g *Gateway) WriteObject(ctx context.Context, index uint16, subindex uint8, value uint32) error {
	obj, err := g.lookup(index, subindex)
	if err != nil {
		return err
	}

	if obj.Access != types.AccessTypeReadWrite {
		return fmt.Errorf("object %s (%s) is read-only", obj.Key(), obj.Name)
	}
	if value > obj.DataType.Max() {
		return fmt.Errorf("value %d out of range for %s object %s", value, obj.DataType, obj.Key())
	}

	// Ein-Register-Objekte per FC 0x06, uint32 per FC 0x10
	regs := encodeValue(value, obj.DataType)
	if len(regs) == 1 {
		err = g.Client.WriteSingleRegister(ctx, g.unitID, obj.Address, regs[0])
	} else {
		err = g.Client.WriteMultipleRegisters(ctx, g.unitID, obj.Address, regs)
	}
	if err != nil {
		return fmt.Errorf("failed to write object %s (%s): %w", obj.Key(), obj.Name, err)
	}

	g.logger.Debug("Object written",
		zap.String("gateway", g.Name),
		zap.Stringer("object", obj.Key()),
		zap.Uint16("address", obj.Address),
		zap.Uint32("value", value))

	return nil
}

func decodeValue(regs []uint16, dataType types.DataType) uint32 {
	switch dataType {
	case types.DataTypeUint32:
		if len(regs) >= 2 {
			return uint32(regs[0])<<16 | uint32(regs[1])
		}
	case types.DataTypeUint8:
		return uint32(regs[0] & 0xFF)
	}
	return uint32(regs[0])
}

func encodeValue(value uint32, dataType types.DataType) []uint16 {
	if dataType == types.DataTypeUint32 {
		return []uint16{uint16(value >> 16), uint16(value)}
	}
	return []uint16{uint16(value)}
}
