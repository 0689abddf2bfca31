package protocol

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/pixil98/go-testutil"
)

var testSeed = []uint32{11, 22, 33, 44}

func gameFrames() []Frame {
	return []Frame{
		{Opcode: OpKeepAlive},
		Walk{X: 3200, Y: 3210, Run: true}.Frame(),
		{Opcode: OpChat, Payload: []byte("hello there")},
		{Opcode: OpCommand, Payload: []byte("players")},
		{Opcode: OpChat, Payload: []byte{}},
		{Opcode: OpChat, Payload: []byte(strings.Repeat("x", 255))},
		{Opcode: OpCommand, Payload: []byte{}},
		{Opcode: OpLogout},
	}
}

func encodeStream(t *testing.T, frames []Frame) []byte {
	t.Helper()
	enc := NewEncoder(GameInbound, 0)
	enc.SetCipher(NewISAAC(testSeed))

	var out []byte
	for _, f := range frames {
		var err error
		out, err = enc.Append(out, f)
		if err != nil {
			t.Fatalf("encoding %s: %v", f, err)
		}
	}
	return out
}

func decodeChunks(t *testing.T, chunks [][]byte) []Frame {
	t.Helper()
	dec := NewDecoder(GameInbound, 0)
	dec.SetCipher(NewISAAC(testSeed))

	var got []Frame
	for _, c := range chunks {
		dec.Write(c)
		for {
			f, ok, err := dec.Next()
			if err != nil {
				t.Fatalf("decoding: %v", err)
			}
			if !ok {
				break
			}
			got = append(got, f)
		}
	}
	testutil.AssertEqual(t, "residue", dec.Buffered(), 0)
	testutil.AssertEqual(t, "pending", dec.Pending(), false)
	return got
}

func assertFrames(t *testing.T, got, exp []Frame) {
	t.Helper()
	testutil.AssertEqual(t, "frame count", len(got), len(exp))
	for i := range exp {
		testutil.AssertEqual(t, "opcode", got[i].Opcode, exp[i].Opcode)
		testutil.AssertEqual(t, "payload", string(got[i].Payload), string(exp[i].Payload))
	}
}

func TestDecoder_ChunkingInvariant(t *testing.T) {
	frames := gameFrames()
	stream := encodeStream(t, frames)

	whole := decodeChunks(t, [][]byte{stream})
	assertFrames(t, whole, frames)

	var bytewise [][]byte
	for i := range stream {
		bytewise = append(bytewise, stream[i:i+1])
	}
	assertFrames(t, decodeChunks(t, bytewise), frames)

	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 50; n++ {
		var chunks [][]byte
		rest := stream
		for len(rest) > 0 {
			k := rng.Intn(len(rest)) + 1
			chunks = append(chunks, rest[:k])
			rest = rest[k:]
		}
		assertFrames(t, decodeChunks(t, chunks), frames)
	}
}

func TestDecoder_PartialFrameRetained(t *testing.T) {
	dec := NewDecoder(GameInbound, 0)

	dec.Write([]byte{byte(OpWalk), 0x0c})
	_, ok, err := dec.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "complete", ok, false)
	testutil.AssertEqual(t, "pending", dec.Pending(), true)

	dec.Write([]byte{0x80, 0x0c, 0x8a, 0x00, byte(OpKeepAlive)})
	f, ok, err := dec.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "complete", ok, true)

	w, err := DecodeWalk(f.Payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "walk", w, Walk{X: 3200, Y: 3210})

	f, ok, _ = dec.Next()
	testutil.AssertEqual(t, "keepalive", ok, true)
	testutil.AssertEqual(t, "keepalive opcode", f.Opcode, OpKeepAlive)
}

func TestDecoder_Violations(t *testing.T) {
	tests := map[string]struct {
		table    *Table
		maxFrame int
		input    []byte
		expErr   error
	}{
		"unknown opcode": {
			table:  GameInbound,
			input:  []byte{99},
			expErr: ErrUnknownOpcode,
		},
		"login opcode in game table": {
			table:  GameInbound,
			input:  []byte{byte(OpWorldLogin), 0, 0},
			expErr: ErrUnknownOpcode,
		},
		"declared length too large": {
			table:    LoginInbound,
			maxFrame: 100,
			input:    []byte{byte(OpWorldLogin), 0x01, 0x00},
			expErr:   ErrFrameTooLarge,
		},
		"unterminated payload too large": {
			table:    GameInbound,
			maxFrame: 8,
			input:    []byte{byte(OpCommand), 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j'},
			expErr:   ErrFrameTooLarge,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			dec := NewDecoder(tt.table, tt.maxFrame)
			dec.Write(tt.input)

			_, ok, err := dec.Next()
			testutil.AssertEqual(t, "ok", ok, false)
			testutil.AssertEqual(t, "is expected", errors.Is(err, tt.expErr), true)
			testutil.AssertEqual(t, "violation", IsViolation(err), true)

			dec.Write([]byte{byte(OpKeepAlive)})
			_, _, again := dec.Next()
			testutil.AssertEqual(t, "sticky", again == err, true)
		})
	}
}

func TestDecoder_UnknownOpcodeUnderCipher(t *testing.T) {
	enc := NewISAAC(testSeed)
	raw := []byte{byte(OpKeepAlive) + byte(enc.Next()), 99 + byte(enc.Next())}

	dec := NewDecoder(GameInbound, 0)
	dec.SetCipher(NewISAAC(testSeed))
	dec.Write(raw)

	f, ok, err := dec.Next()
	if err != nil || !ok {
		t.Fatalf("expected keepalive, got ok=%v err=%v", ok, err)
	}
	testutil.AssertEqual(t, "opcode", f.Opcode, OpKeepAlive)

	_, _, err = dec.Next()
	testutil.AssertEqual(t, "unknown", errors.Is(err, ErrUnknownOpcode), true)

	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %T", err)
	}
	testutil.AssertEqual(t, "deciphered opcode", pe.Opcode, Opcode(99))
	testutil.AssertEqual(t, "table", pe.Table, "game")
}

func TestDecoder_TableSwitchBetweenFrames(t *testing.T) {
	dec := NewDecoder(HandshakeInbound, 0)
	dec.Write(append(encodeHandshake(t, 317), byte(OpWorldLogin), 0, 0))

	f, ok, err := dec.Next()
	if err != nil || !ok {
		t.Fatalf("expected handshake frame, got ok=%v err=%v", ok, err)
	}
	rev, err := DecodeHandshake(f.Payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "revision", rev, uint32(317))

	dec.SetTable(LoginInbound)
	f, ok, err = dec.Next()
	if err != nil || !ok {
		t.Fatalf("expected login frame, got ok=%v err=%v", ok, err)
	}
	testutil.AssertEqual(t, "opcode", f.Opcode, OpWorldLogin)
	testutil.AssertEqual(t, "payload length", len(f.Payload), 0)
}

func encodeHandshake(t *testing.T, rev uint32) []byte {
	t.Helper()
	b, err := NewEncoder(HandshakeInbound, 0).Encode(Handshake(rev))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return b
}
