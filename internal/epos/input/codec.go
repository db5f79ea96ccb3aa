package input

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// PackedConfig is the device-side form of the function table. Bit n of
// every mask belongs to channel n.
type PackedConfig struct {
	Slots    [NumChannels]uint16 `json:"slots"`
	Mask     uint8               `json:"mask"`
	Polarity uint8               `json:"polarity"`
	Execute  uint8               `json:"execute"`
	Enabled  uint8               `json:"enabled"`
}

// EmptyPacked has every slot unassigned and all masks cleared.
func EmptyPacked() PackedConfig {
	var p PackedConfig
	for ch := range p.Slots {
		p.Slots[ch] = DummyFunc
	}
	return p
}

// Pack builds the register image of funcs. Functions are visited in
// enumeration order, so when two claim the same channel the later one
// owns the slot and its bits.
func Pack(funcs [NumFuncs]Descriptor) PackedConfig {
	p := EmptyPacked()
	for i, d := range funcs {
		if !d.Routed() {
			continue
		}
		bit := uint(d.Channel)
		p.Slots[d.Channel] = uint16(i)
		p.Mask = setBit(p.Mask, bit, true)
		p.Polarity = setBit(p.Polarity, bit, d.Polarity == Low)
		p.Execute = setBit(p.Execute, bit, d.Execute)
		p.Enabled = setBit(p.Enabled, bit, d.Enabled)
	}
	return p
}

// Unpack is the inverse of Pack. Slots holding DummyFunc, ReservedFunc or
// any other non-function value are empty; functions found in no slot come
// back as DefaultDescriptor.
func Unpack(p PackedConfig) [NumFuncs]Descriptor {
	var funcs [NumFuncs]Descriptor
	for i := range funcs {
		funcs[i] = DefaultDescriptor()
	}
	for ch, slot := range p.Slots {
		if ch == ReservedFunc || int(slot) >= NumFuncs {
			continue
		}
		bit := uint(ch)
		polarity := High
		if hasBit(p.Polarity, bit) {
			polarity = Low
		}
		funcs[slot] = Descriptor{
			Channel:  ch,
			Polarity: polarity,
			Execute:  hasBit(p.Execute, bit),
			Enabled:  hasBit(p.Enabled, bit),
		}
	}
	return funcs
}

// Slot returns the function assigned to channel ch, if any.
func (p PackedConfig) Slot(ch int) (Function, bool) {
	if ch < 0 || ch >= NumChannels {
		return 0, false
	}
	f := Function(p.Slots[ch])
	return f, f.Valid()
}

// Bytes encodes the slots little-endian followed by the four masks.
func (p PackedConfig) Bytes() []byte {
	buf := make([]byte, 2*NumChannels+4)
	for ch, slot := range p.Slots {
		binary.LittleEndian.PutUint16(buf[2*ch:], slot)
	}
	buf[2*NumChannels] = p.Mask
	buf[2*NumChannels+1] = p.Polarity
	buf[2*NumChannels+2] = p.Execute
	buf[2*NumChannels+3] = p.Enabled
	return buf
}

func (p PackedConfig) Hex() string {
	return hex.EncodeToString(p.Bytes())
}

// Object is one object dictionary write of an apply.
type Object struct {
	Index    uint16 `json:"index"`
	SubIndex uint8  `json:"subindex"`
	Value    uint32 `json:"value"`
}

// Objects lists the writes of an apply in order: the eight assignment
// slots first, then mask, polarity, execute and enabled mask.
func (p PackedConfig) Objects() []Object {
	objs := make([]Object, 0, NumChannels+4)
	for ch, slot := range p.Slots {
		objs = append(objs, Object{Index: IndexFuncs, SubIndex: uint8(ch + 1), Value: uint32(slot)})
	}
	return append(objs,
		Object{Index: IndexConfig, SubIndex: SubIndexMask, Value: uint32(p.Mask)},
		Object{Index: IndexConfig, SubIndex: SubIndexPolarity, Value: uint32(p.Polarity)},
		Object{Index: IndexConfig, SubIndex: SubIndexExecute, Value: uint32(p.Execute)},
		Object{Index: IndexConfig, SubIndex: SubIndexEnabled, Value: uint32(p.Enabled)},
	)
}

// WritePacked sends p to dev. It stops at the first failed write; the
// writes before it stay applied.
func WritePacked(ctx context.Context, dev Device, p PackedConfig) error {
	if dev == nil {
		return &Error{Code: ErrorSetup, Err: errNotBound}
	}
	for _, obj := range p.Objects() {
		if err := dev.WriteObject(ctx, obj.Index, obj.SubIndex, obj.Value); err != nil {
			return setupError(obj.Index, obj.SubIndex, err)
		}
	}
	return nil
}

// ReadPacked reads the objects WritePacked writes.
func ReadPacked(ctx context.Context, dev Device) (PackedConfig, error) {
	p := EmptyPacked()
	if dev == nil {
		return p, errNotBound
	}

	for ch := range p.Slots {
		sub := uint8(ch + 1)
		v, err := dev.ReadObject(ctx, IndexFuncs, sub)
		if err != nil {
			return p, fmt.Errorf("read object 0x%04X/0x%02X: %w", IndexFuncs, sub, err)
		}
		p.Slots[ch] = uint16(v)
	}

	masks := []struct {
		sub uint8
		dst *uint8
	}{
		{SubIndexMask, &p.Mask},
		{SubIndexPolarity, &p.Polarity},
		{SubIndexExecute, &p.Execute},
		{SubIndexEnabled, &p.Enabled},
	}
	for _, m := range masks {
		v, err := dev.ReadObject(ctx, IndexConfig, m.sub)
		if err != nil {
			return p, fmt.Errorf("read object 0x%04X/0x%02X: %w", IndexConfig, m.sub, err)
		}
		*m.dst = uint8(v)
	}

	return p, nil
}

// Collision describes a channel claimed by more than one function.
type Collision struct {
	Channel    int        `json:"channel"`
	Winner     Function   `json:"winner"`
	Overridden []Function `json:"overridden"`
}

// Collisions lists the channels Pack resolves by last-writer-wins.
func Collisions(funcs [NumFuncs]Descriptor) []Collision {
	var claims [NumChannels][]Function
	for i, d := range funcs {
		if d.Routed() {
			claims[d.Channel] = append(claims[d.Channel], Function(i))
		}
	}

	var out []Collision
	for ch, fns := range claims {
		if len(fns) < 2 {
			continue
		}
		out = append(out, Collision{
			Channel:    ch,
			Winner:     fns[len(fns)-1],
			Overridden: fns[:len(fns)-1],
		})
	}
	return out
}

func setBit(v uint8, bit uint, on bool) uint8 {
	if on {
		return v | 1<<bit
	}
	return v &^ (1 << bit)
}

func hasBit(v uint8, bit uint) bool {
	return v&(1<<bit) != 0
}
