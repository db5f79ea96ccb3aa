package modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// SerialConfig holds the line settings of an RTU link.
type SerialConfig struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
	Timeout  time.Duration
}

// RTUClient talks Modbus RTU over a serial line. It serializes requests
// because the handler's slave id is set per request.
type RTUClient struct {
	mu      sync.Mutex
	handler *modbus.RTUClientHandler
	client  modbus.Client
}

func NewRTUClient(cfg SerialConfig) (*RTUClient, error) {
	if cfg.Device == "" {
		return nil, errors.New("modbus rtu: serial device required")
	}

	h := modbus.NewRTUClientHandler(cfg.Device)
	if cfg.BaudRate > 0 {
		h.BaudRate = cfg.BaudRate
	}
	if cfg.DataBits > 0 {
		h.DataBits = cfg.DataBits
	}
	if cfg.Parity != "" {
		h.Parity = cfg.Parity
	}
	if cfg.StopBits > 0 {
		h.StopBits = cfg.StopBits
	}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}

	return &RTUClient{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

func (c *RTUClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.handler.Connect(); err != nil {
		return fmt.Errorf("open serial %s: %w", c.handler.Address, err)
	}
	return nil
}

func (c *RTUClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

func (c *RTUClient) ReadHoldingRegisters(ctx context.Context, unitID uint8, startAddr uint16, quantity uint16) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if quantity == 0 || quantity > MaxReadRegisters {
		return nil, fmt.Errorf("invalid register quantity: %d", quantity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	raw, err := c.client.ReadHoldingRegisters(startAddr, quantity)
	if err != nil {
		return nil, translateError(err)
	}

	regs := decodeRegisters(raw)
	if len(regs) != int(quantity) {
		return nil, fmt.Errorf("expected %d registers, got %d", quantity, len(regs))
	}
	return regs, nil
}

func (c *RTUClient) WriteSingleRegister(ctx context.Context, unitID uint8, addr uint16, value uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	_, err := c.client.WriteSingleRegister(addr, value)
	return translateError(err)
}

func (c *RTUClient) WriteMultipleRegisters(ctx context.Context, unitID uint8, startAddr uint16, values []uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(values) == 0 || len(values) > MaxWriteRegisters {
		return fmt.Errorf("invalid register quantity: %d", len(values))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	_, err := c.client.WriteMultipleRegisters(startAddr, uint16(len(values)), encodeRegisters(values))
	return translateError(err)
}

// translateError maps goburrow exceptions onto ExceptionError so both
// transports report device rejections the same way.
func translateError(err error) error {
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return &ExceptionError{
			FunctionCode: mbErr.FunctionCode &^ exceptionFlag,
			Code:         mbErr.ExceptionCode,
		}
	}
	return err
}
