// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package backend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/deon-george/auramodule/internal/logging"
	"github.com/deon-george/auramodule/internal/metrics"
)

const (
	// maxHeartbeatFailures consecutive misses mark the backend disconnected.
	maxHeartbeatFailures = 3

	// registerMaxDelay caps the registration backoff.
	registerMaxDelay = 60 * time.Second

	// Event logging retry schedule.
	logEventMaxRetries = 3
	logEventBaseDelay  = 1 * time.Second
	logEventMaxDelay   = 10 * time.Second
)

// Config carries the client's connection parameters.
type Config struct {
	BaseURL        string
	AuthToken      string
	PatientUID     string
	Port           int
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	Interval       time.Duration
}

// Client manages registration, heartbeats and event logging against the
// coordination backend. All exported methods are safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger

	// sleep and localIP are swappable in tests.
	sleep   func(ctx context.Context, d time.Duration) error
	localIP func() string

	onReconnect func()

	mu    sync.Mutex
	state State
}

// NewClient builds a backend client. The base URL must not have a trailing
// slash.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     logging.With().Str("component", "backend").Logger(),
		sleep:   sleepCtx,
		localIP: LocalIP,
	}
}

// SetReconnectCallback registers a hook invoked after connectivity recovers
// (a heartbeat succeeds while the client was reconnecting).
func (c *Client) SetReconnectCallback(fn func()) {
	c.onReconnect = fn
}

// Status returns a snapshot of connectivity state.
func (c *Client) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// endpoint picks the authenticated or device-scoped path depending on
// whether a bearer token is configured.
func (c *Client) endpoint(authedPath, devicePath string) string {
	if strings.TrimSpace(c.cfg.AuthToken) != "" {
		return c.cfg.BaseURL + authedPath
	}
	return c.cfg.BaseURL + devicePath
}

func (c *Client) post(ctx context.Context, url string, payload any) (*http.Response, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(c.cfg.AuthToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp, nil, err
	}
	return resp, respBody, nil
}

// hardwareInfo describes the device for the registration payload.
func hardwareInfo() map[string]string {
	hostname, _ := os.Hostname()
	return map[string]string{
		"platform":        runtime.GOOS,
		"arch":            runtime.GOARCH,
		"hostname":        hostname,
		"runtime_version": runtime.Version(),
	}
}

// Register announces the device at ip to the backend, retrying with
// exponential backoff (delay = min(base * 2^attempt, 60s)). A 401 or 404
// response is terminal and stops retrying immediately. Returns true once
// registered.
func (c *Client) Register(ctx context.Context, ip string) bool {
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return false
		}

		resp, body, err := c.post(ctx, c.endpoint("/register", "/device/register"), map[string]any{
			"patient_uid":   c.cfg.PatientUID,
			"ip":            ip,
			"port":          c.cfg.Port,
			"hardware_info": hardwareInfo(),
		})
		switch {
		case err != nil:
			metrics.RegistrationAttempts.WithLabelValues("error").Inc()
			c.log.Warn().Err(err).Int("attempt", attempt+1).Int("max", c.cfg.MaxRetries).Msg("cannot reach backend")
		case resp.StatusCode == http.StatusOK:
			metrics.RegistrationAttempts.WithLabelValues("ok").Inc()
			c.log.Info().RawJSON("response", jsonOrNull(body)).Msg("registered with backend")
			c.mu.Lock()
			c.state.Registered = true
			c.state.HeartbeatFailures = 0
			c.mu.Unlock()
			return true
		case resp.StatusCode == http.StatusUnauthorized:
			metrics.RegistrationAttempts.WithLabelValues("unauthorized").Inc()
			c.log.Error().Msg("authentication failed during registration, check patient uid")
			return false
		case resp.StatusCode == http.StatusNotFound:
			metrics.RegistrationAttempts.WithLabelValues("not_found").Inc()
			c.log.Error().Msg("registration endpoint not found, check backend url")
			return false
		default:
			metrics.RegistrationAttempts.WithLabelValues("error").Inc()
			c.log.Warn().Int("status", resp.StatusCode).Str("body", string(body)).Msg("registration rejected")
		}

		if attempt < c.cfg.MaxRetries-1 {
			delay := backoffDelay(c.cfg.RetryBaseDelay, attempt, registerMaxDelay)
			c.log.Info().Dur("delay", delay).Msg("retrying registration")
			if err := c.sleep(ctx, delay); err != nil {
				return false
			}
		}
	}
	c.log.Error().Msg("failed to register with backend after all attempts")
	return false
}

// backoffDelay computes min(base * 2^attempt, max).
func backoffDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// RunHeartbeat sends heartbeats strictly sequentially until the context is
// cancelled. Each tick sleeps first, so a freshly registered device does
// not double-announce. Three consecutive failures trigger re-registration.
func (c *Client) RunHeartbeat(ctx context.Context) {
	c.log.Info().Dur("interval", c.cfg.Interval).Msg("heartbeat loop started")
	for {
		if err := c.sleep(ctx, c.cfg.Interval); err != nil {
			c.log.Info().Msg("heartbeat loop stopped")
			return
		}

		if c.heartbeatTick(ctx) {
			c.mu.Lock()
			c.state.HeartbeatFailures = 0
			c.state.LastHeartbeat = time.Now()
			wasReconnecting := c.state.Reconnecting
			c.state.Reconnecting = false
			c.mu.Unlock()

			if wasReconnecting {
				c.log.Info().Msg("backend connection recovered")
				if c.onReconnect != nil {
					c.onReconnect()
				}
			}
			continue
		}

		c.mu.Lock()
		c.state.HeartbeatFailures++
		failures := c.state.HeartbeatFailures
		c.mu.Unlock()
		c.log.Warn().Int("failures", failures).Int("max", maxHeartbeatFailures).Msg("heartbeat failed")

		if failures >= maxHeartbeatFailures {
			c.reRegister(ctx)
		}
	}
}

// heartbeatTick sends one heartbeat. A 404 clears the registered flag and
// re-registers immediately on this tick.
func (c *Client) heartbeatTick(ctx context.Context) bool {
	resp, _, err := c.post(ctx, c.endpoint("/heartbeat", "/device/heartbeat"), map[string]any{
		"patient_uid": c.cfg.PatientUID,
	})
	if err != nil {
		metrics.HeartbeatsSent.WithLabelValues("error").Inc()
		c.log.Warn().Err(err).Msg("cannot send heartbeat")
		return false
	}

	switch resp.StatusCode {
	case http.StatusOK:
		metrics.HeartbeatsSent.WithLabelValues("ok").Inc()
		return true
	case http.StatusUnauthorized:
		metrics.HeartbeatsSent.WithLabelValues("unauthorized").Inc()
		c.log.Warn().Msg("heartbeat auth failed")
		return false
	case http.StatusNotFound:
		metrics.HeartbeatsSent.WithLabelValues("not_found").Inc()
		c.log.Warn().Msg("backend no longer knows this device, re-registering")
		c.mu.Lock()
		c.state.Registered = false
		c.mu.Unlock()
		c.reRegister(ctx)
		return false
	default:
		metrics.HeartbeatsSent.WithLabelValues("error").Inc()
		c.log.Warn().Int("status", resp.StatusCode).Msg("heartbeat rejected")
		return false
	}
}

// reRegister re-announces the device with its current local address. Only
// one recovery attempt runs at a time; concurrent triggers are ignored.
func (c *Client) reRegister(ctx context.Context) {
	c.mu.Lock()
	if c.state.Reconnecting {
		c.mu.Unlock()
		return
	}
	c.state.Reconnecting = true
	c.state.Registered = false
	c.mu.Unlock()

	c.log.Warn().Msg("backend appears disconnected, re-registering")
	if c.Register(ctx, c.localIP()) {
		c.log.Info().Msg("re-registration successful")
	} else {
		c.log.Error().Msg("re-registration failed, will retry on next heartbeat")
	}
}

// LogEvent sends an event to the backend, best effort: up to 3 attempts
// with backoff min(1s * 2^attempt, 10s). Auth failures (401/403) and
// non-retriable client errors abort immediately. Returns true on success.
func (c *Client) LogEvent(ctx context.Context, eventType string, data map[string]any) bool {
	for attempt := 0; attempt < logEventMaxRetries; attempt++ {
		resp, _, err := c.post(ctx, c.endpoint("/log_event", "/device/log_event"), map[string]any{
			"patient_uid": c.cfg.PatientUID,
			"event_type":  eventType,
			"data":        data,
		})
		switch {
		case err != nil:
			c.log.Warn().Err(err).Int("attempt", attempt+1).Str("event_type", eventType).Msg("cannot log event")
		case resp.StatusCode == http.StatusOK:
			c.log.Debug().Str("event_type", eventType).Msg("event logged")
			return true
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			c.log.Warn().Int("status", resp.StatusCode).Str("event_type", eventType).Msg("auth error logging event")
			return false
		case resp.StatusCode >= 500:
			c.log.Warn().Int("status", resp.StatusCode).Str("event_type", eventType).Msg("server error logging event")
		default:
			c.log.Warn().Int("status", resp.StatusCode).Str("event_type", eventType).Msg("event rejected")
			return false
		}

		if attempt < logEventMaxRetries-1 {
			delay := backoffDelay(logEventBaseDelay, attempt, logEventMaxDelay)
			if err := c.sleep(ctx, delay); err != nil {
				return false
			}
		}
	}
	c.log.Error().Str("event_type", eventType).Msg("failed to log event after all attempts")
	return false
}

func jsonOrNull(b []byte) []byte {
	if json.Valid(b) {
		return b
	}
	return []byte("null")
}
