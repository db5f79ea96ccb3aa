package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// serveRegisters answers FC 0x03, 0x06 and 0x10 requests from a register
// bank until the listener is closed. Writes to rejectAddr get exception
// 0x02. The first dropFirst connections are closed without an answer.
func serveRegisters(t *testing.T, regs map[uint16]uint16, rejectAddr uint16, dropFirst int) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen err=%v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			if dropFirst > 0 {
				dropFirst--
				conn.Close()
				continue
			}
			serveConn(conn, regs, rejectAddr)
		}
	}()

	return ln.Addr().String()
}

func serveConn(conn net.Conn, regs map[uint16]uint16, rejectAddr uint16) {
	defer conn.Close()

	for {
		header := make([]byte, 7)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint16(header[4:6])
		pdu := make([]byte, length-1)
		if _, err := io.ReadFull(conn, pdu); err != nil {
			return
		}

		fc := pdu[0]
		addr := binary.BigEndian.Uint16(pdu[1:3])
		qty := binary.BigEndian.Uint16(pdu[3:5])

		var resp []byte
		switch {
		case (fc == FuncCodeWriteMultipleRegisters || fc == FuncCodeWriteSingleRegister) && addr == rejectAddr:
			resp = []byte{fc | exceptionFlag, 0x02}
		case fc == FuncCodeWriteMultipleRegisters:
			for i := uint16(0); i < qty; i++ {
				regs[addr+i] = binary.BigEndian.Uint16(pdu[6+2*i:])
			}
			resp = append([]byte{fc}, pdu[1:5]...)
		case fc == FuncCodeWriteSingleRegister:
			regs[addr] = qty
			resp = append([]byte{fc}, pdu[1:5]...)
		case fc == FuncCodeReadHoldingRegisters:
			resp = []byte{fc, byte(2 * qty)}
			for i := uint16(0); i < qty; i++ {
				resp = binary.BigEndian.AppendUint16(resp, regs[addr+i])
			}
		default:
			resp = []byte{fc | exceptionFlag, 0x01}
		}

		out := make([]byte, 7, 7+len(resp))
		copy(out[0:4], header[0:4])
		binary.BigEndian.PutUint16(out[4:6], uint16(len(resp)+1))
		out[6] = header[6]
		if _, err := conn.Write(append(out, resp...)); err != nil {
			return
		}
	}
}

func TestClient_WriteThenRead(t *testing.T) {
	regs := make(map[uint16]uint16)
	addr := serveRegisters(t, regs, 0xFFFF, 0)

	c := NewClient(addr, time.Second)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect err=%v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.WriteMultipleRegisters(ctx, 1, 10, []uint16{7, 65535}); err != nil {
		t.Fatalf("WriteMultipleRegisters err=%v", err)
	}

	got, err := c.ReadHoldingRegisters(ctx, 1, 10, 2)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters err=%v", err)
	}
	if got[0] != 7 || got[1] != 65535 {
		t.Fatalf("unexpected registers %v", got)
	}
}

func TestClient_Exception(t *testing.T) {
	addr := serveRegisters(t, make(map[uint16]uint16), 3, 0)

	c := NewClient(addr, time.Second)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect err=%v", err)
	}
	defer c.Close()

	err := c.WriteMultipleRegisters(context.Background(), 1, 3, []uint16{1})
	var exc *ExceptionError
	if !errors.As(err, &exc) || exc.Code != 0x02 {
		t.Fatalf("expected illegal data address exception, got %v", err)
	}
}

func TestClient_WriteSingleRegister(t *testing.T) {
	regs := make(map[uint16]uint16)
	addr := serveRegisters(t, regs, 3, 0)

	c := NewClient(addr, time.Second)
	defer c.Close()

	ctx := context.Background()
	if err := c.WriteSingleRegister(ctx, 1, 9, 0x0A); err != nil {
		t.Fatalf("WriteSingleRegister err=%v", err)
	}
	got, err := c.ReadHoldingRegisters(ctx, 1, 9, 1)
	if err != nil || got[0] != 0x0A {
		t.Fatalf("register 9 = %v, %v", got, err)
	}

	var exc *ExceptionError
	if err := c.WriteSingleRegister(ctx, 1, 3, 1); !errors.As(err, &exc) || exc.FunctionCode != FuncCodeWriteSingleRegister {
		t.Fatalf("expected FC 0x06 exception, got %v", err)
	}
}

func TestClient_RedialsAfterDroppedConnection(t *testing.T) {
	regs := make(map[uint16]uint16)
	addr := serveRegisters(t, regs, 0xFFFF, 1)

	c := NewClient(addr, time.Second)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect err=%v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.WriteSingleRegister(ctx, 1, 0, 5); err == nil {
		t.Fatalf("expected error on dropped connection")
	}

	// nächster Request wählt neu
	if err := c.WriteSingleRegister(ctx, 1, 0, 5); err != nil {
		t.Fatalf("retry err=%v", err)
	}
	got, err := c.ReadHoldingRegisters(ctx, 1, 0, 1)
	if err != nil || got[0] != 5 {
		t.Fatalf("ReadHoldingRegisters = %v, %v", got, err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	c := NewClient("127.0.0.1:1", time.Second)

	if _, err := c.ReadHoldingRegisters(context.Background(), 1, 0, 1); err == nil {
		t.Fatalf("expected error when peer is unreachable")
	}
	if err := c.WriteMultipleRegisters(context.Background(), 1, 0, nil); err == nil {
		t.Fatalf("expected quantity error")
	}
}
