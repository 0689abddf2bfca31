package session

import "errors"

var (
	ErrClosed         = errors.New("session closed")
	ErrBackpressure   = errors.New("outbound queue full")
	ErrInboundFlood   = errors.New("inbound queue full")
	ErrIdleTimeout    = errors.New("idle timeout")
	ErrDisconnected   = errors.New("client disconnected")
	ErrLogout         = errors.New("logged out")
	ErrOutdated       = errors.New("unsupported revision")
	ErrRejected       = errors.New("login rejected")
	ErrServerBusy     = errors.New("server busy")
	ErrServerShutdown = errors.New("server shutting down")
	ErrHandlerPanic   = errors.New("session handler panicked")
)
