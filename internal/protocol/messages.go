package protocol

import "fmt"

// outboundSeedOffset is added to every login seed word to key the server's
// outbound stream.
const outboundSeedOffset = 50

// LoginRequest is the payload of a world or lobby login frame.
type LoginRequest struct {
	Revision uint32
	Seed     [4]uint32
	Username string
	Password string
}

func DecodeLogin(payload []byte) (LoginRequest, error) {
	r := NewReader(payload)

	var req LoginRequest
	req.Revision = r.U32()
	for i := range req.Seed {
		req.Seed[i] = r.U32()
	}
	req.Username = r.String()
	req.Password = r.String()

	if err := r.Err(); err != nil {
		return LoginRequest{}, fmt.Errorf("decoding login: %w", err)
	}
	return req, nil
}

func (l LoginRequest) Encode() []byte {
	w := NewWriter(4 + 16 + len(l.Username) + len(l.Password) + 2)
	w.U32(l.Revision)
	for _, s := range l.Seed {
		w.U32(s)
	}
	return w.String(l.Username).String(l.Password).Bytes()
}

// Ciphers keys the inbound and outbound streams from the login seeds.
func (l LoginRequest) Ciphers() (in Cipher, out Cipher) {
	seed := l.Seed[:]
	in = NewISAAC(seed)

	outSeed := make([]uint32, len(seed))
	for i, s := range seed {
		outSeed[i] = s + outboundSeedOffset
	}
	return in, NewISAAC(outSeed)
}

func DecodeHandshake(payload []byte) (uint32, error) {
	r := NewReader(payload)
	rev := r.U32()
	if err := r.Err(); err != nil {
		return 0, fmt.Errorf("decoding handshake: %w", err)
	}
	return rev, nil
}

func Handshake(revision uint32) Frame {
	return Frame{Opcode: OpHandshake, Payload: NewWriter(4).U32(revision).Bytes()}
}

// Walk is a movement request.
type Walk struct {
	X, Y uint16
	Run  bool
}

func DecodeWalk(payload []byte) (Walk, error) {
	r := NewReader(payload)
	w := Walk{
		X:   r.U16(),
		Y:   r.U16(),
		Run: r.U8() != 0,
	}
	if err := r.Err(); err != nil {
		return Walk{}, fmt.Errorf("decoding walk: %w", err)
	}
	return w, nil
}

func (w Walk) Frame() Frame {
	var run uint8
	if w.Run {
		run = 1
	}
	return Frame{Opcode: OpWalk, Payload: NewWriter(walkPayloadSize).U16(w.X).U16(w.Y).U8(run).Bytes()}
}

// Response is an empty-bodied status frame such as OutInvalidCredentials.
func Response(op Opcode) Frame {
	return Frame{Opcode: op}
}

func LoginOK(rights uint8, index uint16) Frame {
	return Frame{Opcode: OutLoginOK, Payload: NewWriter(loginOKPayloadSize).U8(rights).U16(index).Bytes()}
}

func Position(x, y uint16, energy uint8) Frame {
	return Frame{Opcode: OutPosition, Payload: NewWriter(positionPayloadSize).U16(x).U16(y).U8(energy).Bytes()}
}

func Chat(sender, text string) Frame {
	return Frame{Opcode: OutChat, Payload: NewWriter(len(sender) + len(text) + 2).String(sender).String(text).Bytes()}
}

// Message carries server text. Text longer than a byte-prefixed frame allows
// is truncated.
func Message(text string) Frame {
	if len(text) > 0xff {
		text = text[:0xff]
	}
	return Frame{Opcode: OutMessage, Payload: []byte(text)}
}

func TickSync(tick uint32) Frame {
	return Frame{Opcode: OutTickSync, Payload: NewWriter(4).U32(tick).Bytes()}
}

func Logout() Frame {
	return Frame{Opcode: OutLogout}
}

// DecodeChat returns the text of an inbound chat frame.
func DecodeChat(payload []byte) string {
	return string(payload)
}
