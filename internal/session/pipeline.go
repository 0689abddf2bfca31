package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/pixil98/go-world/internal/auth"
	"github.com/pixil98/go-world/internal/protocol"
	"github.com/pixil98/go-world/internal/scheduler"
	"github.com/pixil98/go-world/internal/storage"
)

// Authenticator validates login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, name string, password string) (*storage.PlayerRecord, error)
}

// Submitter runs work off the reader goroutine, bounding how many expensive
// credential checks run at once.
type Submitter interface {
	Submit(name string, action scheduler.Action) error
}

// Admitter hands an authenticated session to the world. Admit must not
// block; the answer arrives later through Join.Reply.
type Admitter interface {
	Admit(Join) error
}

// Join asks the world to admit an authenticated session.
type Join struct {
	Session *Session
	Record  *storage.PlayerRecord
	Lobby   bool
	Reply   func(Admission)
}

// Admission is the world's answer to a Join. Response is OutLoginOK or one
// of the login failure opcodes.
type Admission struct {
	Response protocol.Opcode
	Rights   uint8
	Index    uint16
}

// Observer receives session events. Implementations must be safe for
// concurrent use.
type Observer interface {
	SessionOpened()
	SessionClosed(reason error)
	FrameIn(op protocol.Opcode)
	BytesOut(n int)
}

type Pipeline struct {
	cfg       Config
	auth      Authenticator
	admitter  Admitter
	submitter Submitter
	obs       Observer
}

func NewPipeline(cfg Config, a Authenticator, admitter Admitter, submitter Submitter, obs Observer) *Pipeline {
	return &Pipeline{
		cfg:       cfg.withDefaults(),
		auth:      a,
		admitter:  admitter,
		submitter: submitter,
		obs:       obs,
	}
}

// Attach starts serving conn and returns its session in HANDSHAKE. The
// session closes when ctx is cancelled.
func (p *Pipeline) Attach(ctx context.Context, conn net.Conn) *Session {
	s := newSession(conn, p.cfg, p.obs)
	if p.obs != nil {
		p.obs.SessionOpened()
	}

	s.wg.Add(2)
	go s.writeLoop(protocol.NewEncoder(protocol.HandshakeOutbound, p.cfg.MaxFrameSize))
	go p.readLoop(ctx, s)
	go s.finish()

	go func() {
		select {
		case <-ctx.Done():
			s.Close(ErrServerShutdown)
		case <-s.closing:
		}
	}()

	return s
}

func (p *Pipeline) readLoop(ctx context.Context, s *Session) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "session reader panic", "session", s.id, "panic", r)
			s.Abort(fmt.Errorf("%w: %v", ErrHandlerPanic, r))
		}
	}()

	err := p.serve(ctx, s)
	switch {
	case err == nil:
		s.Close(nil)
	case protocol.IsViolation(err), errors.Is(err, ErrInboundFlood):
		slog.WarnContext(ctx, "protocol violation", "session", s.id, "state", s.State(), "error", err)
		s.Abort(err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		s.Close(ErrIdleTimeout)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, net.ErrClosed):
		s.Close(ErrDisconnected)
	default:
		slog.DebugContext(ctx, "session closed", "session", s.id, "error", err)
		s.Close(err)
	}
}

// serve decodes frames until the session closes or the transport fails.
// Complete frames already buffered are handled before a read error is
// reported, and a partial frame at disconnect is discarded.
func (p *Pipeline) serve(ctx context.Context, s *Session) error {
	dec := protocol.NewDecoder(protocol.HandshakeInbound, p.cfg.MaxFrameSize)
	buf := make([]byte, p.cfg.ReadBufferSize)

	var readErr error
	for {
		for {
			f, ok, err := dec.Next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if p.obs != nil {
				p.obs.FrameIn(f.Opcode)
			}
			if err := p.handle(ctx, s, dec, f); err != nil {
				return err
			}
			if s.Closed() {
				return nil
			}
		}

		if readErr != nil {
			return readErr
		}

		timeout := p.cfg.IdleTimeout
		if !s.State().Active() {
			timeout = p.cfg.LoginTimeout
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}

		n, err := s.conn.Read(buf)
		if n > 0 {
			dec.Write(buf[:n])
			s.touch()
		}
		readErr = err
	}
}

func (p *Pipeline) handle(ctx context.Context, s *Session, dec *protocol.Decoder, f protocol.Frame) error {
	switch s.State() {
	case StateHandshake:
		return p.handshake(s, dec, f)
	case StateAwaitingLogin:
		return p.login(ctx, s, dec, f)
	case StateInGame, StateLobbyRegistered:
		return p.game(s, f)
	default:
		return nil
	}
}

func (p *Pipeline) handshake(s *Session, dec *protocol.Decoder, f protocol.Frame) error {
	rev, err := protocol.DecodeHandshake(f.Payload)
	if err != nil {
		return &protocol.ProtocolError{Table: "handshake", Opcode: f.Opcode, Err: err}
	}
	if rev != p.cfg.Revision {
		_ = s.enqueue(outbound{frame: protocol.Response(protocol.OutHandshakeOutdated)})
		return fmt.Errorf("%w: %d", ErrOutdated, rev)
	}

	if err := s.enqueue(outbound{frame: protocol.Response(protocol.OutHandshakeOK), table: protocol.LoginOutbound}); err != nil {
		return err
	}
	dec.SetTable(protocol.LoginInbound)
	s.setState(StateHandshake, StateAwaitingLogin)
	return nil
}

func (p *Pipeline) login(ctx context.Context, s *Session, dec *protocol.Decoder, f protocol.Frame) error {
	req, err := protocol.DecodeLogin(f.Payload)
	if err != nil {
		return &protocol.ProtocolError{Table: "login", Opcode: f.Opcode, Err: err}
	}
	if req.Revision != p.cfg.Revision {
		return reject(s, protocol.OutOutdated, fmt.Errorf("%w: %d", ErrOutdated, req.Revision))
	}

	rec, err := p.authenticate(ctx, s, req)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return reject(s, protocol.OutInvalidCredentials, fmt.Errorf("%w: %w", ErrRejected, err))
	}
	if err != nil {
		slog.WarnContext(ctx, "login not processed", "session", s.id, "error", err)
		return reject(s, protocol.OutServerBusy, err)
	}

	lobby := f.Opcode == protocol.OpLobbyLogin
	in, out := req.Ciphers()
	s.outCipher = out
	s.name.Store(rec.Name)

	err = p.admitter.Admit(Join{
		Session: s,
		Record:  rec,
		Lobby:   lobby,
		Reply:   func(a Admission) { s.admit(a, lobby) },
	})
	if err != nil {
		return reject(s, protocol.OutServerBusy, fmt.Errorf("%w: %w", ErrServerBusy, err))
	}

	timer := time.NewTimer(p.cfg.LoginTimeout)
	defer timer.Stop()

	var a Admission
	select {
	case a = <-s.admitted:
	case <-s.closing:
		return nil
	case <-timer.C:
		return reject(s, protocol.OutServerBusy, fmt.Errorf("%w: admission timed out", ErrServerBusy))
	}
	if a.Response != protocol.OutLoginOK {
		return fmt.Errorf("%w: response %d", ErrRejected, a.Response)
	}

	dec.SetCipher(in)
	if lobby {
		dec.SetTable(protocol.LobbyInbound)
	} else {
		dec.SetTable(protocol.GameInbound)
	}

	slog.InfoContext(ctx, "player logged in", "session", s.id, "name", rec.Name, "index", a.Index, "lobby", lobby)
	return nil
}

// reject queues a login failure response and returns err so the session is
// closed once the response is flushed.
func reject(s *Session, op protocol.Opcode, err error) error {
	_ = s.enqueue(outbound{frame: protocol.Response(op)})
	return err
}

type authResult struct {
	rec *storage.PlayerRecord
	err error
}

func (p *Pipeline) authenticate(ctx context.Context, s *Session, req protocol.LoginRequest) (*storage.PlayerRecord, error) {
	result := make(chan authResult, 1)
	err := p.submitter.Submit("authenticate", func(poolCtx context.Context) error {
		var r authResult
		defer func() { result <- r }()

		r.rec, r.err = p.auth.Authenticate(poolCtx, req.Username, req.Password)
		if errors.Is(r.err, auth.ErrInvalidCredentials) {
			return nil
		}
		return r.err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerBusy, err)
	}

	timer := time.NewTimer(p.cfg.LoginTimeout)
	defer timer.Stop()

	select {
	case r := <-result:
		if r.err == nil && r.rec == nil {
			return nil, fmt.Errorf("%w: authentication produced no account", ErrServerBusy)
		}
		return r.rec, r.err
	case <-s.closing:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: authentication timed out", ErrServerBusy)
	}
}

func (p *Pipeline) game(s *Session, f protocol.Frame) error {
	switch f.Opcode {
	case protocol.OpKeepAlive:
		return nil
	case protocol.OpLogout:
		_ = s.Send(protocol.Logout())
		return ErrLogout
	default:
		return s.push(f)
	}
}
