package session

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pixil98/go-world/internal/protocol"
)

// outbound is one queued frame. After it is encoded the writer switches to
// table and cipher when they are set, so a phase change takes effect exactly
// between two frames.
type outbound struct {
	frame  protocol.Frame
	table  *protocol.Table
	cipher protocol.Cipher
}

// Session is the server side of one client connection. The reader and writer
// goroutines own the transport; the world only calls Send, Inbound, Closed
// and Close.
type Session struct {
	id   string
	conn net.Conn
	cfg  Config
	obs  Observer

	state        atomic.Int32
	lastActivity atomic.Int64
	name         atomic.Value

	inMu    sync.Mutex
	inbound []protocol.Frame

	out       chan outbound
	outCipher protocol.Cipher
	admitted  chan Admission

	closing   chan struct{}
	closeOnce sync.Once
	aborted   atomic.Bool
	reason    error

	wg   sync.WaitGroup
	done chan struct{}
}

func newSession(conn net.Conn, cfg Config, obs Observer) *Session {
	s := &Session{
		id:       uuid.NewString(),
		conn:     conn,
		cfg:      cfg,
		obs:      obs,
		out:      make(chan outbound, cfg.OutboundQueue),
		admitted: make(chan Admission, 1),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.name.Store("")
	s.touch()
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// Name returns the display name of the logged-in player, or "" before login.
func (s *Session) Name() string {
	return s.name.Load().(string)
}

func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// Send queues f for transmission and never blocks. When the outbound queue
// is full the client is not draining and the session is dropped.
func (s *Session) Send(f protocol.Frame) error {
	return s.enqueue(outbound{frame: f})
}

func (s *Session) enqueue(o outbound) error {
	if s.Closed() {
		return ErrClosed
	}
	select {
	case s.out <- o:
		return nil
	default:
		s.Abort(ErrBackpressure)
		return ErrBackpressure
	}
}

// Inbound removes and returns every decoded frame received since the last
// call, in arrival order.
func (s *Session) Inbound() []protocol.Frame {
	s.inMu.Lock()
	defer s.inMu.Unlock()

	frames := s.inbound
	s.inbound = nil
	return frames
}

func (s *Session) push(f protocol.Frame) error {
	s.inMu.Lock()
	defer s.inMu.Unlock()

	if len(s.inbound) >= s.cfg.InboundQueue {
		return ErrInboundFlood
	}
	s.inbound = append(s.inbound, f)
	return nil
}

func (s *Session) Closed() bool {
	return s.State() == StateClosing
}

// Close moves the session to CLOSING. Frames already queued are flushed for
// at most the flush timeout before the transport is closed. Only the first
// reason is kept.
func (s *Session) Close(reason error) {
	s.shutdown(reason, false)
}

// Abort closes the transport immediately and discards queued frames.
func (s *Session) Abort(reason error) {
	s.shutdown(reason, true)
}

func (s *Session) shutdown(reason error, abort bool) {
	if abort && s.aborted.CompareAndSwap(false, true) {
		_ = s.conn.Close()
	}
	s.closeOnce.Do(func() {
		s.reason = reason
		s.state.Store(int32(StateClosing))
		close(s.closing)
	})
}

// Reason returns why the session closed, or nil while it is open.
func (s *Session) Reason() error {
	select {
	case <-s.closing:
		return s.reason
	default:
		return nil
	}
}

// Done is closed once both I/O goroutines have exited and the transport is
// closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) finish() {
	s.wg.Wait()
	_ = s.conn.Close()
	if s.obs != nil {
		s.obs.SessionClosed(s.reason)
	}
	close(s.done)
}

// admit is the reply to a Join. It runs on the world lane, so the response
// frame is queued ahead of anything the world sends to this session.
func (s *Session) admit(a Admission, lobby bool) {
	if a.Response == protocol.OutLoginOK {
		next := StateInGame
		if lobby {
			next = StateLobbyRegistered
		}
		err := s.enqueue(outbound{
			frame:  protocol.LoginOK(a.Rights, a.Index),
			table:  protocol.WorldOutbound,
			cipher: s.outCipher,
		})
		if err == nil && !s.setState(StateAwaitingLogin, next) {
			a.Response = protocol.OutServerBusy
		}
	} else {
		_ = s.enqueue(outbound{frame: protocol.Response(a.Response)})
	}

	select {
	case s.admitted <- a:
	default:
	}
}

// writeLoop owns the write side of the transport and closes it on exit,
// which also unblocks the reader.
func (s *Session) writeLoop(enc *protocol.Encoder) {
	defer s.wg.Done()
	defer func() { _ = s.conn.Close() }()

	var buf []byte
	for {
		select {
		case o := <-s.out:
			var err error
			buf, err = s.encode(enc, buf[:0], o)
			if err == nil {
				buf, err = s.drain(enc, buf)
			}
			if err != nil {
				slog.Error("encoding outbound frame", "session", s.id, "error", err)
				s.Abort(err)
				return
			}
			if err := s.write(buf, s.cfg.WriteTimeout); err != nil {
				s.Abort(fmt.Errorf("writing: %w", err))
				return
			}
		case <-s.closing:
			if s.aborted.Load() {
				return
			}
			buf, err := s.drain(enc, buf[:0])
			if err == nil && len(buf) > 0 {
				err = s.write(buf, s.cfg.FlushTimeout)
			}
			if err != nil {
				slog.Debug("flushing session", "session", s.id, "error", err)
			}
			return
		}
	}
}

// drain encodes every frame queued right now without blocking.
func (s *Session) drain(enc *protocol.Encoder, buf []byte) ([]byte, error) {
	for {
		select {
		case o := <-s.out:
			var err error
			buf, err = s.encode(enc, buf, o)
			if err != nil {
				return buf, err
			}
		default:
			return buf, nil
		}
	}
}

func (s *Session) encode(enc *protocol.Encoder, buf []byte, o outbound) ([]byte, error) {
	buf, err := enc.Append(buf, o.frame)
	if err != nil {
		return buf, err
	}
	if o.table != nil {
		enc.SetTable(o.table)
	}
	if o.cipher != nil {
		enc.SetCipher(o.cipher)
	}
	return buf, nil
}

func (s *Session) write(buf []byte, timeout time.Duration) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := s.conn.Write(buf); err != nil {
		return err
	}
	if s.obs != nil {
		s.obs.BytesOut(len(buf))
	}
	return nil
}
