package listener

import "errors"

var (
	ErrAddrInUse      = errors.New("address already in use")
	ErrNotListening   = errors.New("acceptor is not listening")
	ErrAcceptorClosed = errors.New("acceptor is shut down")
)
