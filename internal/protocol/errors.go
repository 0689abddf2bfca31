package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size")
	ErrLengthMismatch = errors.New("payload length does not match rule")
	ErrTerminator     = errors.New("payload contains terminator byte")
	ErrShortPayload   = errors.New("payload too short")
)

// ProtocolError is a framing failure. The byte stream cannot be
// resynchronized after one, so the session that produced it must be closed.
type ProtocolError struct {
	Table  string
	Opcode Opcode
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s table, opcode %d: %s", e.Table, e.Opcode, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsViolation reports whether err was caused by a protocol violation.
func IsViolation(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
