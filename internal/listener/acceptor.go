package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/pixil98/go-world/internal/session"
)

const (
	minBackoff = 5 * time.Millisecond
	maxBackoff = time.Second

	// maxLimiters bounds the per-host limiter table.
	maxLimiters = 4096
)

// Attacher turns an accepted connection into a running session.
type Attacher interface {
	Attach(ctx context.Context, conn net.Conn) *session.Session
}

// Observer is told about connections refused before a session exists.
type Observer interface {
	ConnectionRejected(reason string)
}

type AcceptorOpt func(*Acceptor)

// WithMaxSessions caps concurrent sessions. Zero means no cap.
func WithMaxSessions(n int) AcceptorOpt {
	return func(a *Acceptor) {
		a.maxSessions = n
	}
}

// WithRateLimit limits how fast a single remote host may open connections.
func WithRateLimit(limit rate.Limit, burst int) AcceptorOpt {
	return func(a *Acceptor) {
		a.limit = limit
		a.burst = burst
	}
}

func WithObserver(o Observer) AcceptorOpt {
	return func(a *Acceptor) {
		a.obs = o
	}
}

// WithListener serves on an existing listener instead of binding addr.
func WithListener(ln net.Listener) AcceptorOpt {
	return func(a *Acceptor) {
		a.ln = ln
	}
}

// Acceptor listens on a TCP port and attaches a session to every admitted
// connection.
type Acceptor struct {
	addr        string
	attacher    Attacher
	maxSessions int
	limit       rate.Limit
	burst       int
	obs         Observer

	mu       sync.Mutex
	ln       net.Listener
	closed   bool
	sessions map[string]*session.Session
	limiters map[string]*rate.Limiter

	wg         sync.WaitGroup
	sessCtx    context.Context
	cancelSess context.CancelFunc
	stopOnce   sync.Once
}

func NewAcceptor(addr string, attacher Attacher, opts ...AcceptorOpt) *Acceptor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Acceptor{
		addr:       addr,
		attacher:   attacher,
		limit:      rate.Inf,
		sessions:   map[string]*session.Session{},
		limiters:   map[string]*rate.Limiter{},
		sessCtx:    ctx,
		cancelSess: cancel,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Listen binds the configured address. It is a no-op when a listener was
// supplied with WithListener.
func (a *Acceptor) Listen() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrAcceptorClosed
	}
	if a.ln != nil {
		return nil
	}

	ln, err := net.Listen("tcp", a.addr)
	if errors.Is(err, syscall.EADDRINUSE) {
		return fmt.Errorf("listening on %s: %w", a.addr, ErrAddrInUse)
	}
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.addr, err)
	}
	a.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Count returns the number of live sessions.
func (a *Acceptor) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Serve accepts connections until ctx is cancelled or Shutdown is called,
// returning nil in both cases. Any other listener failure is returned.
func (a *Acceptor) Serve(ctx context.Context) error {
	a.mu.Lock()
	ln := a.ln
	a.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	slog.InfoContext(ctx, "accepting connections", "addr", ln.Addr())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	backoff := time.Duration(0)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || a.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if !transient(err) {
				return fmt.Errorf("accepting connections: %w", err)
			}

			if backoff == 0 {
				backoff = minBackoff
			} else {
				backoff = min(backoff*2, maxBackoff)
			}
			slog.WarnContext(ctx, "accepting connection", "error", err, "retry", backoff)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		a.admit(ctx, conn)
	}
}

func (a *Acceptor) admit(ctx context.Context, conn net.Conn) {
	if reason := a.refuse(conn); reason != "" {
		slog.DebugContext(ctx, "connection refused", "remote", conn.RemoteAddr(), "reason", reason)
		if a.obs != nil {
			a.obs.ConnectionRejected(reason)
		}
		_ = conn.Close()
		return
	}

	s := a.attacher.Attach(a.sessCtx, conn)

	a.mu.Lock()
	a.sessions[s.ID()] = s
	closed := a.closed
	a.mu.Unlock()
	if closed {
		s.Close(session.ErrServerShutdown)
	}

	go func() {
		defer a.wg.Done()
		<-s.Done()

		a.mu.Lock()
		delete(a.sessions, s.ID())
		a.mu.Unlock()
	}()
}

// refuse returns a non-empty reason when conn must not get a session. An
// admitted connection is counted in wg before the lock is released.
func (a *Acceptor) refuse(conn net.Conn) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return "shutdown"
	}
	if a.maxSessions > 0 && len(a.sessions) >= a.maxSessions {
		return "full"
	}
	if !a.limiter(conn.RemoteAddr()).Allow() {
		return "rate"
	}
	a.wg.Add(1)
	return ""
}

// limiter must be called with mu held.
func (a *Acceptor) limiter(addr net.Addr) *rate.Limiter {
	host := addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	l, ok := a.limiters[host]
	if !ok {
		if len(a.limiters) >= maxLimiters {
			clear(a.limiters)
		}
		l = rate.NewLimiter(a.limit, a.burst)
		a.limiters[host] = l
	}
	return l
}

func (a *Acceptor) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Shutdown stops accepting and closes every session. Queued frames get up to
// flushTimeout to drain before the remaining transports are cut. It is safe
// to call more than once.
func (a *Acceptor) Shutdown(flushTimeout time.Duration) {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		if a.ln != nil {
			_ = a.ln.Close()
		}
		open := a.snapshot()
		a.mu.Unlock()

		for _, s := range open {
			s.Close(session.ErrServerShutdown)
		}

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		timer := time.NewTimer(flushTimeout)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
			a.mu.Lock()
			open = a.snapshot()
			a.mu.Unlock()

			slog.Warn("sessions did not flush in time", "remaining", len(open))
			for _, s := range open {
				s.Abort(session.ErrServerShutdown)
			}
			<-done
		}

		a.cancelSess()
	})
}

// Sessions returns the live sessions at the time of the call.
func (a *Acceptor) Sessions() []*session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}

// snapshot must be called with mu held.
func (a *Acceptor) snapshot() []*session.Session {
	out := make([]*session.Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		out = append(out, s)
	}
	return out
}

// transient reports whether an accept error is worth retrying.
func transient(err error) bool {
	for _, errno := range []syscall.Errno{syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS, syscall.ENOMEM, syscall.ECONNABORTED} {
		if errors.Is(err, errno) {
			return true
		}
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
