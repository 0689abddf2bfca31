package listener

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
	"golang.org/x/time/rate"

	"github.com/pixil98/go-world/internal/session"
)

type recordingObserver struct {
	mu      sync.Mutex
	reasons []string
}

func (o *recordingObserver) ConnectionRejected(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reasons = append(o.reasons, reason)
}

func (o *recordingObserver) list() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.reasons...)
}

type scriptedListener struct {
	mu      sync.Mutex
	errs    []error
	accepts int
}

func (l *scriptedListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accepts++
	err := l.errs[0]
	if len(l.errs) > 1 {
		l.errs = l.errs[1:]
	}
	return nil, err
}

func (l *scriptedListener) Close() error   { return nil }
func (l *scriptedListener) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startAcceptor(t *testing.T, opts ...AcceptorOpt) (*Acceptor, chan error) {
	t.Helper()

	pl := session.NewPipeline(session.Config{}, nil, nil, nil, nil)
	a := NewAcceptor("127.0.0.1:0", pl, opts...)
	if err := a.Listen(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- a.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		a.Shutdown(time.Second)
	})
	return a, served
}

func dial(t *testing.T, a *Acceptor) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", a.Addr().String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func assertClosedByServer(t *testing.T, conn net.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Read(make([]byte, 1))
	testutil.AssertEqual(t, "closed by server", errors.Is(err, io.EOF), true)
}

func TestAcceptor_MaxSessions(t *testing.T) {
	obs := &recordingObserver{}
	a, _ := startAcceptor(t, WithMaxSessions(1), WithObserver(obs))

	dial(t, a)
	waitFor(t, func() bool { return a.Count() == 1 })

	excess := dial(t, a)
	assertClosedByServer(t, excess)

	testutil.AssertEqual(t, "sessions", a.Count(), 1)
	testutil.AssertEqual(t, "rejections", len(obs.list()), 1)
	testutil.AssertEqual(t, "reason", obs.list()[0], "full")
}

func TestAcceptor_RateLimit(t *testing.T) {
	obs := &recordingObserver{}
	a, _ := startAcceptor(t, WithRateLimit(rate.Every(time.Hour), 1), WithObserver(obs))

	dial(t, a)
	waitFor(t, func() bool { return a.Count() == 1 })

	limited := dial(t, a)
	assertClosedByServer(t, limited)

	testutil.AssertEqual(t, "reason", obs.list()[0], "rate")
}

func TestAcceptor_Shutdown(t *testing.T) {
	a, served := startAcceptor(t)

	conns := []net.Conn{dial(t, a), dial(t, a)}
	waitFor(t, func() bool { return a.Count() == 2 })

	addr := a.Addr().String()
	a.Shutdown(time.Second)
	a.Shutdown(time.Second)

	for _, c := range conns {
		assertClosedByServer(t, c)
	}
	testutil.AssertEqual(t, "sessions", a.Count(), 0)

	select {
	case err := <-served:
		testutil.AssertEqual(t, "serve error", err == nil, true)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	_, err := net.DialTimeout("tcp", addr, time.Second)
	testutil.AssertEqual(t, "refused after shutdown", err != nil, true)
}

func TestAcceptor_ContextCancelStopsServe(t *testing.T) {
	pl := session.NewPipeline(session.Config{}, nil, nil, nil, nil)
	a := NewAcceptor("127.0.0.1:0", pl)
	if err := a.Listen(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Shutdown(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- a.Serve(ctx) }()
	cancel()

	select {
	case err := <-served:
		testutil.AssertEqual(t, "serve error", err == nil, true)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestAcceptor_AcceptErrors(t *testing.T) {
	emfile := &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept", syscall.EMFILE)}

	tests := map[string]struct {
		errs       []error
		expAccepts int
		expErr     string
	}{
		"fatal immediately": {
			errs:       []error{errors.New("listener broken")},
			expAccepts: 1,
			expErr:     "listener broken",
		},
		"transient retried before fatal": {
			errs:       []error{emfile, emfile, errors.New("listener broken")},
			expAccepts: 3,
			expErr:     "accepting connections",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ln := &scriptedListener{errs: tt.errs}
			a := NewAcceptor("", nil, WithListener(ln))

			err := a.Serve(context.Background())
			testutil.AssertErrorContains(t, err, tt.expErr)
			testutil.AssertEqual(t, "accepts", ln.accepts, tt.expAccepts)
		})
	}
}

func TestAcceptor_Listen(t *testing.T) {
	first := NewAcceptor("127.0.0.1:0", nil)
	if err := first.Listen(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer first.Shutdown(0)

	second := NewAcceptor(first.Addr().String(), nil)
	err := second.Listen()
	testutil.AssertEqual(t, "address in use", errors.Is(err, ErrAddrInUse), true)

	err = NewAcceptor("", nil).Serve(context.Background())
	testutil.AssertEqual(t, "not listening", errors.Is(err, ErrNotListening), true)
}

func TestTransient(t *testing.T) {
	tests := map[string]struct {
		err error
		exp bool
	}{
		"emfile":       {err: os.NewSyscallError("accept", syscall.EMFILE), exp: true},
		"econnaborted": {err: &net.OpError{Op: "accept", Err: syscall.ECONNABORTED}, exp: true},
		"closed":       {err: net.ErrClosed, exp: false},
		"other":        {err: errors.New("boom"), exp: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, "transient", transient(tt.err), tt.exp)
		})
	}
}
