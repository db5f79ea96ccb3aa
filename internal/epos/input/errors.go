package input

import (
	"errors"
	"fmt"
)

// ErrorCode is the result code of an apply to the device.
type ErrorCode int

const (
	ErrorNone ErrorCode = iota
	ErrorSetup
)

var errorMessages = [...]string{
	ErrorNone:  "no error",
	ErrorSetup: "setup failed",
}

func (c ErrorCode) String() string {
	if c < 0 || int(c) >= len(errorMessages) {
		return fmt.Sprintf("unknown error %d", int(c))
	}
	return errorMessages[c]
}

// ErrorMessages returns the code to message table, indexed by code.
func ErrorMessages() []string {
	out := make([]string, len(errorMessages))
	copy(out, errorMessages[:])
	return out
}

// ErrSetup matches every setup failure with errors.Is.
var ErrSetup = &Error{Code: ErrorSetup}

var errNotBound = errors.New("input module is not bound to a device")

// Error is returned by every operation that pushes configuration to the
// device. Index and SubIndex name the object whose write failed, if any.
type Error struct {
	Code     ErrorCode
	Index    uint16
	SubIndex uint8
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Code.String()
	case e.Index == 0:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: object 0x%04X/0x%02X: %v", e.Code, e.Index, e.SubIndex, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Err == nil && t.Index == 0
}

// Code maps err to its ErrorCode. Errors not produced by this package
// count as setup failures.
func Code(err error) ErrorCode {
	if err == nil {
		return ErrorNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrorSetup
}

func setupError(index uint16, subindex uint8, err error) *Error {
	return &Error{Code: ErrorSetup, Index: index, SubIndex: subindex, Err: err}
}
