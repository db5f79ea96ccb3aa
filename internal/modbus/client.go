package modbus

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// RegisterClient is the holding register access a Gateway needs.
type RegisterClient interface {
	Connect() error
	Close() error
	ReadHoldingRegisters(ctx context.Context, unitID uint8, startAddr uint16, quantity uint16) ([]uint16, error)
	WriteSingleRegister(ctx context.Context, unitID uint8, addr uint16, value uint16) error
	WriteMultipleRegisters(ctx context.Context, unitID uint8, startAddr uint16, values []uint16) error
}

// Client is a Modbus TCP client on a single connection. A connection
// dropped after an I/O error is redialed by the next request.
type Client struct {
	address       string
	conn          net.Conn
	mu            sync.Mutex
	transactionID uint16
	timeout       time.Duration
	connected     bool
}

func NewClient(address string, timeout time.Duration) *Client {
	return &Client{
		address: address,
		timeout: timeout,
	}
}

// Connect stellt TCP-Verbindung her
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.connected {
		return nil
	}

	conn, err := net.DialTimeout("tcp", c.address, c.timeout)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true

	return nil
}

// Close schließt die Verbindung
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	err := c.conn.Close()
	c.connected = false
	c.conn = nil

	return err
}

// SendFrame sendet ein Frame und wartet auf Response
func (c *Client) SendFrame(ctx context.Context, request *ModbusFrame) (*ModbusFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Verbindung nach Fehler neu aufbauen
	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	c.transactionID++
	request.TransactionID = c.transactionID

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write(request.Encode()); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("write failed: %w", err)
	}

	// MBAP zuerst, dann Rest anhand des Length-Felds
	header := make([]byte, 7)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("read failed: %w", err)
	}
	length := int(header[4])<<8 | int(header[5])
	if length < 2 || length > 254 {
		c.dropLocked()
		return nil, fmt.Errorf("invalid response length: %d", length)
	}
	body := make([]byte, length-1)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("read failed: %w", err)
	}

	response, err := DecodeFrame(append(header, body...))
	if err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	if response.TransactionID != request.TransactionID {
		c.dropLocked()
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d",
			request.TransactionID, response.TransactionID)
	}

	if err := response.Exception(); err != nil {
		return nil, err
	}

	return response, nil
}

// dropLocked verwirft eine kaputte Verbindung; nächster Request baut neu auf
func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.connected = false
}

// ReadHoldingRegisters liest Holding Registers
func (c *Client) ReadHoldingRegisters(ctx context.Context, unitID uint8, startAddr uint16, quantity uint16) ([]uint16, error) {
	if quantity == 0 || quantity > MaxReadRegisters {
		return nil, fmt.Errorf("invalid register quantity: %d", quantity)
	}

	response, err := c.SendFrame(ctx, ReadHoldingRegistersRequest(0, unitID, startAddr, quantity))
	if err != nil {
		return nil, err
	}

	regs, err := response.ParseRegisterResponse()
	if err != nil {
		return nil, err
	}
	if len(regs) != int(quantity) {
		return nil, fmt.Errorf("expected %d registers, got %d", quantity, len(regs))
	}
	return regs, nil
}

// WriteSingleRegister schreibt ein einzelnes Register (FC 0x06)
func (c *Client) WriteSingleRegister(ctx context.Context, unitID uint8, addr uint16, value uint16) error {
	response, err := c.SendFrame(ctx, WriteSingleRegisterRequest(0, unitID, addr, value))
	if err != nil {
		return err
	}
	return response.ParseWriteResponse(addr, value)
}

// WriteMultipleRegisters schreibt zusammenhängende Register (FC 0x10)
func (c *Client) WriteMultipleRegisters(ctx context.Context, unitID uint8, startAddr uint16, values []uint16) error {
	if len(values) == 0 || len(values) > MaxWriteRegisters {
		return fmt.Errorf("invalid register quantity: %d", len(values))
	}

	response, err := c.SendFrame(ctx, WriteMultipleRegistersRequest(0, unitID, startAddr, values))
	if err != nil {
		return err
	}
	return response.ParseWriteResponse(startAddr, uint16(len(values)))
}
