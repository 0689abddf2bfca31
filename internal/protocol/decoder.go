package protocol

import "fmt"

const DefaultMaxFrameSize = 5000

// Frame is one complete protocol message.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("frame(op=%d len=%d)", f.Opcode, len(f.Payload))
}

// Decoder turns an arbitrarily fragmented byte stream into frames. Bytes
// that do not yet form a complete frame are retained between writes, and a
// frame's opcode is deciphered exactly once even when its body arrives
// across several writes. A Decoder is owned by a single reader goroutine.
type Decoder struct {
	table    *Table
	cipher   Cipher
	maxFrame int

	buf []byte
	off int

	pending bool
	op      Opcode
	rule    LengthRule

	err error
}

func NewDecoder(table *Table, maxFrame int) *Decoder {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &Decoder{
		table:    table,
		maxFrame: maxFrame,
	}
}

// SetTable switches the opcode table. Call it only between frames.
func (d *Decoder) SetTable(t *Table) {
	d.table = t
}

// SetCipher installs the inbound keystream for all following opcodes.
func (d *Decoder) SetCipher(c Cipher) {
	d.cipher = c
}

// Write appends received bytes to the residue buffer.
func (d *Decoder) Write(p []byte) {
	if d.off > 0 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes not yet consumed by a frame.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// Pending reports whether a frame has been started but not completed.
func (d *Decoder) Pending() bool {
	return d.pending || d.Buffered() > 0
}

// Next extracts the next complete frame. ok is false when more bytes are
// needed. Once Next returns an error the decoder is unusable and keeps
// returning that error.
func (d *Decoder) Next() (f Frame, ok bool, err error) {
	if d.err != nil {
		return Frame{}, false, d.err
	}

	buf := d.buf[d.off:]
	if !d.pending {
		if len(buf) == 0 {
			return Frame{}, false, nil
		}

		op := Opcode(buf[0])
		if d.cipher != nil {
			op = Opcode(buf[0] - byte(d.cipher.Next()))
		}

		rule, found := d.table.Rule(op)
		if !found {
			return d.fail(op, ErrUnknownOpcode)
		}

		d.off++
		buf = buf[1:]
		d.pending, d.op, d.rule = true, op, rule
	}

	header, size, consumed, complete, err := d.rule.measure(buf, d.maxFrame)
	if err != nil {
		return d.fail(d.op, err)
	}
	if !complete {
		return Frame{}, false, nil
	}

	payload := make([]byte, size)
	copy(payload, buf[header:header+size])
	d.off += consumed
	d.pending = false

	return Frame{Opcode: d.op, Payload: payload}, true, nil
}

func (d *Decoder) fail(op Opcode, err error) (Frame, bool, error) {
	d.err = &ProtocolError{Table: d.table.Name(), Opcode: op, Err: err}
	return Frame{}, false, d.err
}
