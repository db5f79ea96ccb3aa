package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/KevinKickass/eposio/internal/epos/input"
	"github.com/KevinKickass/eposio/internal/types"
	"go.uber.org/zap"
)

// Write is one recorded object write.
type Write struct {
	Key   types.ObjectKey
	Value uint32
}

// Device is an in-memory object dictionary holding the input
// configuration objects at their factory state.
type Device struct {
	mu         sync.Mutex
	objects    map[types.ObjectKey]uint32
	writes     []Write
	failWrites map[types.ObjectKey]error
	failReads  map[types.ObjectKey]error
	logger     *zap.Logger
}

func New(logger *zap.Logger) *Device {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Device{
		objects:    make(map[types.ObjectKey]uint32),
		failWrites: make(map[types.ObjectKey]error),
		failReads:  make(map[types.ObjectKey]error),
		logger:     logger,
	}
	for _, obj := range input.EmptyPacked().Objects() {
		d.objects[types.ObjectKey{Index: obj.Index, SubIndex: obj.SubIndex}] = obj.Value
	}

	return d
}

func (d *Device) Connect() error {
	return nil
}

func (d *Device) Close() error {
	return nil
}

func (d *Device) WriteObject(ctx context.Context, index uint16, subindex uint8, value uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := types.ObjectKey{Index: index, SubIndex: subindex}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.failWrites[key]; ok {
		return err
	}
	if _, ok := d.objects[key]; !ok {
		return fmt.Errorf("object %s does not exist", key)
	}

	d.objects[key] = value
	d.writes = append(d.writes, Write{Key: key, Value: value})

	d.logger.Debug("Simulated object write",
		zap.Stringer("object", key),
		zap.Uint32("value", value))

	return nil
}

func (d *Device) ReadObject(ctx context.Context, index uint16, subindex uint8) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	key := types.ObjectKey{Index: index, SubIndex: subindex}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.failReads[key]; ok {
		return 0, err
	}
	v, ok := d.objects[key]
	if !ok {
		return 0, fmt.Errorf("object %s does not exist", key)
	}
	return v, nil
}

// FailWrite makes every write to the object fail with err. A nil err
// clears the failure.
func (d *Device) FailWrite(index uint16, subindex uint8, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := types.ObjectKey{Index: index, SubIndex: subindex}
	if err == nil {
		delete(d.failWrites, key)
		return
	}
	d.failWrites[key] = err
}

func (d *Device) FailRead(index uint16, subindex uint8, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := types.ObjectKey{Index: index, SubIndex: subindex}
	if err == nil {
		delete(d.failReads, key)
		return
	}
	d.failReads[key] = err
}

// Poke changes an object without recording a write, the way a second
// master or a front-panel tool would.
func (d *Device) Poke(index uint16, subindex uint8, value uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[types.ObjectKey{Index: index, SubIndex: subindex}] = value
}

func (d *Device) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Write, len(d.writes))
	copy(out, d.writes)
	return out
}

func (d *Device) Object(index uint16, subindex uint8) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.objects[types.ObjectKey{Index: index, SubIndex: subindex}]
}
