package devices

import (
	"context"
	"fmt"
	"sync"

	"github.com/KevinKickass/eposio/internal/config"
	"github.com/KevinKickass/eposio/internal/epos/input"
	"github.com/KevinKickass/eposio/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InputDevice is one EPOS drive with its input module. The module itself
// has no locking; InputDevice serializes every access to it.
type InputDevice struct {
	ID        uuid.UUID
	Name      string
	Transport string
	Address   string
	UnitID    uint8

	conn   Connection
	logger *zap.Logger
	events EventSink

	mu    sync.Mutex
	input *input.Input
}

// FuncPatch carries the fields of a partial descriptor update.
type FuncPatch struct {
	Channel  *int            `json:"channel,omitempty"`
	Polarity *input.Polarity `json:"polarity,omitempty"`
	Execute  *bool           `json:"execute,omitempty"`
	Enabled  *bool           `json:"enabled,omitempty"`
}

func (p FuncPatch) Empty() bool {
	return p.Channel == nil && p.Polarity == nil && p.Execute == nil && p.Enabled == nil
}

func newInputDevice(cfg config.DeviceConfig, conn Connection, events EventSink, logger *zap.Logger) (*InputDevice, error) {
	funcs, err := cfg.Funcs()
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("device", cfg.Name))

	return &InputDevice{
		ID:        uuid.New(),
		Name:      cfg.Name,
		Transport: cfg.Transport,
		Address:   cfg.Address,
		UnitID:    cfg.UnitID,
		conn:      conn,
		logger:    logger,
		events:    events,
		input:     input.New(conn, input.WithLogger(logger), input.WithFuncs(funcs)),
	}, nil
}

func (d *InputDevice) Info() types.DeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	return types.DeviceInfo{
		ID:        d.ID,
		Name:      d.Name,
		Transport: d.Transport,
		Address:   d.Address,
		UnitID:    d.UnitID,
		State:     string(d.input.State()),
	}
}

// Connection returns the link the device was loaded with.
func (d *InputDevice) Connection() Connection {
	return d.conn
}

func (d *InputDevice) State() input.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input.State()
}

func (d *InputDevice) Funcs() [input.NumFuncs]input.Descriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input.Funcs()
}

func (d *InputDevice) Func(fn input.Function) input.Descriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input.Func(fn)
}

func (d *InputDevice) Packed() input.PackedConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input.Packed()
}

// SetFunc replaces one descriptor and applies the table.
func (d *InputDevice) SetFunc(ctx context.Context, fn input.Function, desc input.Descriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.warnRouting(fn, desc)
	err := d.input.SetFunc(ctx, fn, desc)
	d.publishApply(err)
	return err
}

// Patch applies each set field through its own setter, stopping at the
// first failure. Unset fields are left alone.
func (d *InputDevice) Patch(ctx context.Context, fn input.Function, patch FuncPatch) error {
	if !fn.Valid() {
		return fmt.Errorf("invalid input function %d", int(fn))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.input.Func(fn)
	if patch.Channel != nil {
		next.Channel = *patch.Channel
	}
	d.warnRouting(fn, next)

	var err error
	if patch.Channel != nil && err == nil {
		err = d.input.SetChannel(ctx, fn, *patch.Channel)
	}
	if patch.Polarity != nil && err == nil {
		err = d.input.SetPolarity(ctx, fn, *patch.Polarity)
	}
	if patch.Execute != nil && err == nil {
		err = d.input.SetExecute(ctx, fn, *patch.Execute)
	}
	if patch.Enabled != nil && err == nil {
		err = d.input.SetEnabled(ctx, fn, *patch.Enabled)
	}

	d.publishApply(err)
	return err
}

// Setup pushes the current table to the drive.
func (d *InputDevice) Setup(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	funcs := d.input.Funcs()
	for fn, desc := range funcs {
		if desc.Channel == input.ReservedFunc {
			d.logReserved(input.Function(fn))
		}
	}
	for _, c := range input.Collisions(funcs) {
		d.logCollision(c)
	}
	err := d.input.Setup(ctx)
	d.publishApply(err)
	return err
}

// Sync reloads the table from the drive.
func (d *InputDevice) Sync(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.input.Sync(ctx); err != nil {
		return err
	}

	d.logger.Info("Input table synced from device")
	d.publish(EventInputConfig, d.input.Funcs())
	return nil
}

// Verify compares the drive with the table.
func (d *InputDevice) Verify(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input.Verify(ctx)
}

// CheckDrift reads the configuration objects back and compares them with
// the packed table.
func (d *InputDevice) CheckDrift(ctx context.Context) (DriftReport, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.input.State() == input.StateDestroyed {
		return DriftReport{}, false, fmt.Errorf("device %s is closed", d.Name)
	}

	actual, err := input.ReadPacked(ctx, d.conn)
	if err != nil {
		return DriftReport{}, false, err
	}

	report := DriftReport{Expected: d.input.Packed(), Actual: actual}
	report.Drifted = report.Expected != report.Actual
	return report, report.Drifted, nil
}

// Close destroys the input module and closes the connection.
func (d *InputDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.input.Destroy()
	return d.conn.Close()
}

// warnRouting logs what Pack will drop if desc replaces fn: a function on
// the reserved channel and functions losing a shared channel. Must hold d.mu.
func (d *InputDevice) warnRouting(fn input.Function, desc input.Descriptor) {
	if !fn.Valid() {
		return
	}
	if desc.Channel == input.ReservedFunc {
		d.logReserved(fn)
	}
	funcs := d.input.Funcs()
	funcs[fn] = desc
	for _, c := range input.Collisions(funcs) {
		d.logCollision(c)
	}
}

func (d *InputDevice) logReserved(fn input.Function) {
	d.logger.Warn("Input function on reserved channel is not routed",
		zap.Stringer("function", fn),
		zap.Int("channel", input.ReservedFunc))
}

func (d *InputDevice) logCollision(c input.Collision) {
	overridden := make([]string, 0, len(c.Overridden))
	for _, fn := range c.Overridden {
		overridden = append(overridden, fn.String())
	}
	d.logger.Warn("Input channel claimed by several functions, last one wins",
		zap.Int("channel", c.Channel),
		zap.Stringer("winner", c.Winner),
		zap.Strings("overridden", overridden))
}

// Must hold d.mu.
func (d *InputDevice) publishApply(err error) {
	code := input.Code(err)
	result := SetupResult{
		Code:    int(code),
		Message: code.String(),
		Packed:  d.input.Packed(),
	}
	if err != nil {
		result.Error = err.Error()
		d.logger.Error("Input configuration apply failed", zap.Error(err))
	} else {
		d.logger.Info("Input configuration applied",
			zap.String("packed", result.Packed.Hex()))
	}

	d.publish(EventInputSetup, result)
	d.publish(EventInputConfig, d.input.Funcs())
}

func (d *InputDevice) publish(kind EventType, data interface{}) {
	if d.events == nil {
		return
	}
	d.events.Publish(Event{
		Type:     kind,
		DeviceID: d.ID,
		Device:   d.Name,
		Data:     data,
	})
}
