package session

// State is the protocol phase of a session.
type State int32

const (
	StateHandshake State = iota
	StateAwaitingLogin
	StateLobbyRegistered
	StateInGame
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateAwaitingLogin:
		return "awaiting_login"
	case StateLobbyRegistered:
		return "lobby_registered"
	case StateInGame:
		return "in_game"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Active reports whether the session has been admitted and not yet closed.
func (s State) Active() bool {
	return s == StateLobbyRegistered || s == StateInGame
}
