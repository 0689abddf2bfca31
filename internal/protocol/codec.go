package protocol

import (
	"bytes"
	"encoding/binary"
)

// Reader decodes big-endian fields from a payload. The first short read is
// sticky: later reads return zero values and Err reports ErrShortPayload.
type Reader struct {
	b   []byte
	off int
	err error
}

func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b)-r.off < n {
		r.err = ErrShortPayload
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *Reader) U8() uint8 {
	p := r.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *Reader) U16() uint16 {
	p := r.take(2)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint16(p)
}

func (r *Reader) U32() uint32 {
	p := r.take(4)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint32(p)
}

// String reads a NUL-terminated string.
func (r *Reader) String() string {
	if r.err != nil {
		return ""
	}
	i := bytes.IndexByte(r.b[r.off:], 0)
	if i < 0 {
		r.err = ErrShortPayload
		return ""
	}
	s := string(r.b[r.off : r.off+i])
	r.off += i + 1
	return s
}

func (r *Reader) Remaining() int {
	return len(r.b) - r.off
}

func (r *Reader) Err() error {
	return r.err
}

// Writer builds a big-endian payload.
type Writer struct {
	b []byte
}

func NewWriter(size int) *Writer {
	return &Writer{b: make([]byte, 0, size)}
}

func (w *Writer) U8(v uint8) *Writer {
	w.b = append(w.b, v)
	return w
}

func (w *Writer) U16(v uint16) *Writer {
	w.b = binary.BigEndian.AppendUint16(w.b, v)
	return w
}

func (w *Writer) U32(v uint32) *Writer {
	w.b = binary.BigEndian.AppendUint32(w.b, v)
	return w
}

// String appends s followed by a NUL byte.
func (w *Writer) String(s string) *Writer {
	w.b = append(w.b, s...)
	w.b = append(w.b, 0)
	return w
}

func (w *Writer) Bytes() []byte {
	return w.b
}
