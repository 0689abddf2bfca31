package protocol

// Encoder serializes frames against an outbound table. It must be used by a
// single writer so that the keystream advances in transmission order.
type Encoder struct {
	table    *Table
	cipher   Cipher
	maxFrame int
}

func NewEncoder(table *Table, maxFrame int) *Encoder {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &Encoder{
		table:    table,
		maxFrame: maxFrame,
	}
}

func (e *Encoder) SetTable(t *Table) {
	e.table = t
}

func (e *Encoder) SetCipher(c Cipher) {
	e.cipher = c
}

// Encode returns the wire bytes of f. A frame that violates its rule is
// rejected before any keystream value is consumed.
func (e *Encoder) Encode(f Frame) ([]byte, error) {
	return e.Append(nil, f)
}

// Append encodes f onto dst.
func (e *Encoder) Append(dst []byte, f Frame) ([]byte, error) {
	rule, ok := e.table.Rule(f.Opcode)
	if !ok {
		return dst, e.violation(f.Opcode, ErrUnknownOpcode)
	}

	n := len(f.Payload)
	if n > e.maxFrame {
		return dst, e.violation(f.Opcode, ErrFrameTooLarge)
	}
	switch rule.Kind {
	case KindFixed:
		if n != rule.Size {
			return dst, e.violation(f.Opcode, ErrLengthMismatch)
		}
	case KindBytePrefixed:
		if n > 0xff {
			return dst, e.violation(f.Opcode, ErrFrameTooLarge)
		}
	case KindShortPrefixed:
		if n > 0xffff {
			return dst, e.violation(f.Opcode, ErrFrameTooLarge)
		}
	case KindTerminated:
		for _, b := range f.Payload {
			if b == 0 {
				return dst, e.violation(f.Opcode, ErrTerminator)
			}
		}
	}

	op := byte(f.Opcode)
	if e.cipher != nil {
		op += byte(e.cipher.Next())
	}
	dst = append(dst, op)

	switch rule.Kind {
	case KindBytePrefixed:
		dst = append(dst, byte(n))
	case KindShortPrefixed:
		dst = append(dst, byte(n>>8), byte(n))
	}
	dst = append(dst, f.Payload...)
	if rule.Kind == KindTerminated {
		dst = append(dst, 0)
	}
	return dst, nil
}

func (e *Encoder) violation(op Opcode, err error) error {
	return &ProtocolError{Table: e.table.Name(), Opcode: op, Err: err}
}
