package input

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Device is the object dictionary access the module borrows. The module
// never opens or closes it.
type Device interface {
	WriteObject(ctx context.Context, index uint16, subindex uint8, value uint32) error
	ReadObject(ctx context.Context, index uint16, subindex uint8) (uint32, error)
}

// State of the input module.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateBound         State = "bound"
	StateConfigured    State = "configured"
	StateDestroyed     State = "destroyed"
)

// Input maps the logical input functions of one EPOS device onto its
// digital input channels.
//
// Input is not safe for concurrent use. Every setter updates memory first
// and then pushes the complete table to the device; a failed push leaves
// memory updated and the device possibly half written. Setup can be
// repeated until it succeeds.
type Input struct {
	dev    Device
	state  State
	funcs  [NumFuncs]Descriptor
	logger *zap.Logger
}

type Option func(*Input)

func WithLogger(logger *zap.Logger) Option {
	return func(in *Input) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// WithFuncs preloads the function table without touching the device.
func WithFuncs(funcs [NumFuncs]Descriptor) Option {
	return func(in *Input) {
		in.funcs = funcs
	}
}

// New binds a module to dev. No I/O happens until Setup or a setter.
func New(dev Device, opts ...Option) *Input {
	in := &Input{
		dev:    dev,
		state:  StateBound,
		logger: zap.NewNop(),
	}
	in.reset()

	for _, opt := range opts {
		opt(in)
	}

	return in
}

func (in *Input) reset() {
	for i := range in.funcs {
		in.funcs[i] = DefaultDescriptor()
	}
}

func (in *Input) State() State {
	if in.state == "" {
		return StateUninitialized
	}
	return in.state
}

func (in *Input) bound() bool {
	return in.dev != nil && (in.state == StateBound || in.state == StateConfigured)
}

// Destroy releases the device binding and discards the table.
func (in *Input) Destroy() {
	if in.state == StateDestroyed {
		return
	}
	in.dev = nil
	in.state = StateDestroyed
	in.reset()
}

// Func returns the descriptor of fn. Unknown functions and unbound modules
// yield DefaultDescriptor.
func (in *Input) Func(fn Function) Descriptor {
	if !fn.Valid() || !in.bound() {
		return DefaultDescriptor()
	}
	return in.funcs[fn]
}

// Funcs returns a copy of the whole table.
func (in *Input) Funcs() [NumFuncs]Descriptor {
	if !in.bound() {
		var funcs [NumFuncs]Descriptor
		for i := range funcs {
			funcs[i] = DefaultDescriptor()
		}
		return funcs
	}
	return in.funcs
}

// Packed returns the register image of the current table.
func (in *Input) Packed() PackedConfig {
	return Pack(in.Funcs())
}

// SetFunc replaces the descriptor of fn and applies the table.
func (in *Input) SetFunc(ctx context.Context, fn Function, d Descriptor) error {
	return in.update(ctx, fn, func(cur *Descriptor) {
		*cur = d
	})
}

func (in *Input) Channel(fn Function) int {
	return in.Func(fn).Channel
}

func (in *Input) SetChannel(ctx context.Context, fn Function, channel int) error {
	return in.update(ctx, fn, func(d *Descriptor) {
		d.Channel = channel
	})
}

func (in *Input) Polarity(fn Function) Polarity {
	return in.Func(fn).Polarity
}

func (in *Input) SetPolarity(ctx context.Context, fn Function, polarity Polarity) error {
	return in.update(ctx, fn, func(d *Descriptor) {
		d.Polarity = polarity
	})
}

func (in *Input) Execute(fn Function) bool {
	return in.Func(fn).Execute
}

func (in *Input) SetExecute(ctx context.Context, fn Function, execute bool) error {
	return in.update(ctx, fn, func(d *Descriptor) {
		d.Execute = execute
	})
}

func (in *Input) Enabled(fn Function) bool {
	return in.Func(fn).Enabled
}

func (in *Input) SetEnabled(ctx context.Context, fn Function, enabled bool) error {
	return in.update(ctx, fn, func(d *Descriptor) {
		d.Enabled = enabled
	})
}

func (in *Input) update(ctx context.Context, fn Function, mutate func(*Descriptor)) error {
	if !fn.Valid() {
		return &Error{Code: ErrorSetup, Err: fmt.Errorf("invalid input function %d", int(fn))}
	}
	if !in.bound() {
		return &Error{Code: ErrorSetup, Err: errNotBound}
	}

	mutate(&in.funcs[fn])
	in.state = StateConfigured

	return in.Setup(ctx)
}

// Setup writes the packed table to the device.
func (in *Input) Setup(ctx context.Context) error {
	if !in.bound() {
		return &Error{Code: ErrorSetup, Err: errNotBound}
	}

	p := Pack(in.funcs)
	if err := WritePacked(ctx, in.dev, p); err != nil {
		in.logger.Error("Input setup failed",
			zap.String("packed", p.Hex()),
			zap.Error(err))
		return err
	}

	in.state = StateConfigured
	in.logger.Debug("Input setup applied",
		zap.String("packed", p.Hex()))

	return nil
}

// Sync replaces the table with what the device currently holds.
func (in *Input) Sync(ctx context.Context) error {
	if !in.bound() {
		return errNotBound
	}

	p, err := ReadPacked(ctx, in.dev)
	if err != nil {
		return fmt.Errorf("input sync: %w", err)
	}

	in.funcs = Unpack(p)
	in.logger.Debug("Input table synced from device",
		zap.String("packed", p.Hex()))

	return nil
}

// Verify reports whether the device holds exactly the packed table.
func (in *Input) Verify(ctx context.Context) (bool, error) {
	if !in.bound() {
		return false, errNotBound
	}

	p, err := ReadPacked(ctx, in.dev)
	if err != nil {
		return false, fmt.Errorf("input verify: %w", err)
	}

	return p == Pack(in.funcs), nil
}
