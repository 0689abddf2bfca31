package protocol

import (
	"errors"
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestDecodeLogin(t *testing.T) {
	tests := map[string]struct {
		payload []byte
		exp     LoginRequest
		expErr  string
	}{
		"valid": {
			payload: LoginRequest{Revision: 317, Seed: [4]uint32{1, 2, 3, 4}, Username: "Bob", Password: "secret"}.Encode(),
			exp:     LoginRequest{Revision: 317, Seed: [4]uint32{1, 2, 3, 4}, Username: "Bob", Password: "secret"},
		},
		"empty password": {
			payload: LoginRequest{Revision: 1, Username: "Bob"}.Encode(),
			exp:     LoginRequest{Revision: 1, Username: "Bob"},
		},
		"truncated seeds": {
			payload: []byte{0, 0, 1, 61, 0, 0},
			expErr:  "decoding login",
		},
		"missing password terminator": {
			payload: append(NewWriter(32).U32(1).U32(0).U32(0).U32(0).U32(0).String("Bob").Bytes(), 'p'),
			expErr:  "payload too short",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeLogin(tt.payload)
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "login", got, tt.exp)
		})
	}
}

func TestReader_ShortIsSticky(t *testing.T) {
	r := NewReader([]byte{0, 1, 2})
	testutil.AssertEqual(t, "u16", r.U16(), uint16(1))
	testutil.AssertEqual(t, "u32", r.U32(), uint32(0))
	testutil.AssertEqual(t, "u8 after failure", r.U8(), uint8(0))
	testutil.AssertEqual(t, "err", errors.Is(r.Err(), ErrShortPayload), true)
}

func TestLoginRequest_Ciphers(t *testing.T) {
	l := LoginRequest{Seed: [4]uint32{5, 6, 7, 8}}
	in, out := l.Ciphers()

	expIn := NewISAAC([]uint32{5, 6, 7, 8})
	expOut := NewISAAC([]uint32{55, 56, 57, 58})
	for i := 0; i < 10; i++ {
		testutil.AssertEqual(t, "inbound", in.Next(), expIn.Next())
		testutil.AssertEqual(t, "outbound", out.Next(), expOut.Next())
	}
}

func TestMessage_Truncates(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	f := Message(string(long))
	testutil.AssertEqual(t, "length", len(f.Payload), 255)
}
