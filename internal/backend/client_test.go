// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		PatientUID:     "patient-123",
		Port:           8001,
		Timeout:        2 * time.Second,
		MaxRetries:     10,
		RetryBaseDelay: 5 * time.Second,
		Interval:       40 * time.Second,
	}
}

// recordedSleeps swaps the client's sleep for one that records requested
// delays and returns instantly.
func recordedSleeps(c *Client) *[]time.Duration {
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return &delays
}

func TestBackoffDelaySequence(t *testing.T) {
	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for attempt, w := range want {
		if got := backoffDelay(5*time.Second, attempt, 60*time.Second); got != w {
			t.Errorf("attempt %d: delay = %s, want %s", attempt, got, w)
		}
	}
}

func TestRegisterSucceedsAfterTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/device/register" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	delays := recordedSleeps(c)

	if !c.Register(context.Background(), "192.168.1.10") {
		t.Fatal("registration failed")
	}
	if calls.Load() != 4 {
		t.Errorf("attempts = %d, want 4", calls.Load())
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v", *delays)
	}
	for i, w := range want {
		if (*delays)[i] != w {
			t.Errorf("delay[%d] = %s, want %s", i, (*delays)[i], w)
		}
	}
	if !c.Status().Registered {
		t.Error("state not marked registered")
	}
}

func TestRegisterUnauthorizedIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	delays := recordedSleeps(c)

	if c.Register(context.Background(), "192.168.1.10") {
		t.Fatal("registration should fail")
	}
	if calls.Load() != 1 {
		t.Errorf("attempts = %d, want 1", calls.Load())
	}
	if len(*delays) != 0 {
		t.Errorf("unexpected retries: %v", *delays)
	}
}

func TestRegisterNotFoundIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	delays := recordedSleeps(c)
	if c.Register(context.Background(), "10.0.0.5") {
		t.Fatal("registration should fail")
	}
	if len(*delays) != 0 {
		t.Errorf("unexpected retries: %v", *delays)
	}
}

func TestRegisterUsesAuthenticatedPathWithToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/register" {
			t.Errorf("path = %s, want /register", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.AuthToken = "secret-token"
	c := NewClient(cfg)
	recordedSleeps(c)

	if !c.Register(context.Background(), "10.0.0.5") {
		t.Fatal("registration failed")
	}
}

func TestHeartbeatFailuresTriggerReRegistration(t *testing.T) {
	var heartbeats, registers atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/device/heartbeat":
			heartbeats.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		case "/device/register":
			registers.Add(1)
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	c := NewClient(cfg)
	c.localIP = func() string { return "192.168.1.10" }

	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	c.sleep = func(ctx context.Context, d time.Duration) error {
		if d == cfg.Interval {
			ticks++
			if ticks > 4 {
				cancel()
				return ctx.Err()
			}
		}
		return nil
	}

	c.RunHeartbeat(ctx)

	if heartbeats.Load() < 3 {
		t.Errorf("heartbeats = %d, want at least 3", heartbeats.Load())
	}
	if registers.Load() == 0 {
		t.Error("re-registration never attempted")
	}
}

func TestHeartbeatRecoveryFiresReconnectCallback(t *testing.T) {
	var heartbeats atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/device/heartbeat" {
			w.Write([]byte(`{}`))
			return
		}
		w.Write([]byte(`{}`))
		heartbeats.Add(1)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	c := NewClient(cfg)
	c.mu.Lock()
	c.state.Reconnecting = true
	c.mu.Unlock()

	reconnected := make(chan struct{}, 1)
	c.SetReconnectCallback(func() { reconnected <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	c.sleep = func(ctx context.Context, d time.Duration) error {
		ticks++
		if ticks > 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	c.RunHeartbeat(ctx)

	select {
	case <-reconnected:
	default:
		t.Error("reconnect callback not fired after recovery")
	}
	st := c.Status()
	if st.Reconnecting {
		t.Error("still marked reconnecting after successful heartbeat")
	}
	if st.HeartbeatFailures != 0 {
		t.Errorf("failures = %d after success", st.HeartbeatFailures)
	}
	if st.LastHeartbeat.IsZero() {
		t.Error("last heartbeat not recorded")
	}
}

func TestHeartbeat404ReRegistersImmediately(t *testing.T) {
	var registers atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/device/heartbeat":
			w.WriteHeader(http.StatusNotFound)
		case "/device/register":
			registers.Add(1)
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	c := NewClient(cfg)
	c.localIP = func() string { return "192.168.1.10" }
	c.mu.Lock()
	c.state.Registered = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	c.sleep = func(ctx context.Context, d time.Duration) error {
		if d == cfg.Interval {
			ticks++
			if ticks > 1 {
				cancel()
				return ctx.Err()
			}
		}
		return nil
	}

	c.RunHeartbeat(ctx)

	// One 404 must re-register without waiting for three failures.
	if registers.Load() == 0 {
		t.Error("404 heartbeat did not trigger immediate re-registration")
	}
}

func TestLogEventRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	delays := recordedSleeps(c)

	if !c.LogEvent(context.Background(), "conversation_summary", map[string]any{"text": "hi"}) {
		t.Fatal("log event failed")
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v", *delays)
	}
	for i, w := range want {
		if (*delays)[i] != w {
			t.Errorf("delay[%d] = %s, want %s", i, (*delays)[i], w)
		}
	}
}

func TestLogEventAuthErrorAborts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	recordedSleeps(c)

	if c.LogEvent(context.Background(), "test", nil) {
		t.Fatal("log event should fail")
	}
	if calls.Load() != 1 {
		t.Errorf("attempts = %d, want 1", calls.Load())
	}
}

func TestLocalIPFallback(t *testing.T) {
	// Whatever the environment, the result must parse as an address.
	if ip := LocalIP(); ip == "" {
		t.Error("empty local IP")
	}
}
