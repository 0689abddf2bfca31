package webapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
)

type fixedStatus Status

func (f fixedStatus) Status() Status { return Status(f) }

func TestServer_Routes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("world_players_online 1\n"))
	})
	s := New("", fixedStatus{World: 2, Tick: 40, Players: 1, Sessions: 3}, metrics)

	tests := map[string]struct {
		method  string
		path    string
		expCode int
	}{
		"status":       {method: "GET", path: "/status", expCode: 200},
		"health":       {method: "GET", path: "/health", expCode: 200},
		"metrics":      {method: "GET", path: "/metrics", expCode: 200},
		"unknown":      {method: "GET", path: "/nope", expCode: 404},
		"wrong method": {method: "POST", path: "/status", expCode: 405},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			testutil.AssertEqual(t, "code", rec.Code, tt.expCode)
		})
	}
}

func TestServer_Status(t *testing.T) {
	exp := Status{World: 2, Tick: 40, Players: 1, Sessions: 3, Lobby: true}
	s := New("", fixedStatus(exp), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	var got Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "status", got, exp)
	testutil.AssertEqual(t, "content type", rec.Header().Get("Content-Type"), "application/json")
}

func TestServer_Start(t *testing.T) {
	s := New("127.0.0.1:0", fixedStatus{World: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("not ready")
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = resp.Body.Close()
	testutil.AssertEqual(t, "code", resp.StatusCode, 200)

	cancel()
	select {
	case err := <-done:
		testutil.AssertEqual(t, "clean stop", err == nil, true)
	case <-time.After(6 * time.Second):
		t.Fatal("did not stop")
	}
}
