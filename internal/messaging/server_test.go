package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pixil98/go-testutil"
)

func TestBroker_Start(t *testing.T) {
	s, err := NewBroker(WithPort(RandomPort), WithStartTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-s.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}

	conn, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "connected", conn.IsConnected(), true)
	conn.Close()

	cancel()
	select {
	case err := <-done:
		testutil.AssertEqual(t, "clean stop", err == nil, true)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewBroker_Options(t *testing.T) {
	tests := map[string]struct {
		opts   []BrokerOpt
		expErr string
	}{
		"random port": {
			opts: []BrokerOpt{WithPort(RandomPort)},
		},
		"fixed port": {
			opts: []BrokerOpt{WithHost("127.0.0.1"), WithPort(4333)},
		},
		"port below random": {
			opts:   []BrokerOpt{WithPort(-2)},
			expErr: "port -2",
		},
		"port too large": {
			opts:   []BrokerOpt{WithPort(70000)},
			expErr: "port 70000",
		},
		"empty host": {
			opts:   []BrokerOpt{WithHost("")},
			expErr: "empty host",
		},
		"zero start timeout": {
			opts:   []BrokerOpt{WithStartTimeout(0)},
			expErr: "start timeout",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewBroker(tt.opts...)
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				testutil.AssertEqual(t, "invalid option", errors.Is(err, ErrInvalidOption), true)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
