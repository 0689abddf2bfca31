package protocol

// Client to server.
const (
	OpHandshake  Opcode = 14
	OpWorldLogin Opcode = 16
	OpLobbyLogin Opcode = 19

	OpKeepAlive Opcode = 0
	OpLogout    Opcode = 1
	OpWalk      Opcode = 2
	OpChat      Opcode = 3
	OpCommand   Opcode = 4
)

// Server to client, handshake and login phases.
const (
	OutHandshakeOK       Opcode = 0
	OutHandshakeOutdated Opcode = 6

	OutLoginOK            Opcode = 2
	OutInvalidCredentials Opcode = 3
	OutAlreadyOnline      Opcode = 5
	OutOutdated           Opcode = 6
	OutWorldFull          Opcode = 7
	OutServerBusy         Opcode = 8
)

// Server to client, game and lobby phases.
const (
	OutTickSync Opcode = 20
	OutPosition Opcode = 21
	OutChat     Opcode = 22
	OutMessage  Opcode = 23
	OutLogout   Opcode = 24
)

const (
	walkPayloadSize     = 5
	loginOKPayloadSize  = 3
	positionPayloadSize = 5
)

var (
	HandshakeInbound = NewTable("handshake", map[Opcode]LengthRule{
		OpHandshake: Fixed(4),
	})
	LoginInbound = NewTable("login", map[Opcode]LengthRule{
		OpWorldLogin: ShortPrefixed,
		OpLobbyLogin: ShortPrefixed,
	})
	GameInbound = NewTable("game", map[Opcode]LengthRule{
		OpKeepAlive: Fixed(0),
		OpLogout:    Fixed(0),
		OpWalk:      Fixed(walkPayloadSize),
		OpChat:      BytePrefixed,
		OpCommand:   Terminated,
	})
	LobbyInbound = NewTable("lobby", map[Opcode]LengthRule{
		OpKeepAlive: Fixed(0),
		OpLogout:    Fixed(0),
		OpChat:      BytePrefixed,
	})

	HandshakeOutbound = NewTable("handshake-out", map[Opcode]LengthRule{
		OutHandshakeOK:       Fixed(0),
		OutHandshakeOutdated: Fixed(0),
	})
	LoginOutbound = NewTable("login-out", map[Opcode]LengthRule{
		OutLoginOK:            Fixed(loginOKPayloadSize),
		OutInvalidCredentials: Fixed(0),
		OutAlreadyOnline:      Fixed(0),
		OutOutdated:           Fixed(0),
		OutWorldFull:          Fixed(0),
		OutServerBusy:         Fixed(0),
	})
	WorldOutbound = NewTable("world-out", map[Opcode]LengthRule{
		OutTickSync: Fixed(4),
		OutPosition: Fixed(positionPayloadSize),
		OutChat:     ShortPrefixed,
		OutMessage:  BytePrefixed,
		OutLogout:   Fixed(0),
	})
)
