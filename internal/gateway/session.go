// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/deon-george/auramodule/internal/metrics"
)

// reaperInterval is how often idle sessions are checked.
const reaperInterval = 60 * time.Second

// session is one websocket client. The id is assigned at accept time and
// never reassigned. Replies are serialized through the send channel so a
// single writer goroutine owns the connection.
type session struct {
	id   string
	conn *websocket.Conn

	send chan any

	mu           sync.Mutex
	patientUID   string
	authToken    string
	lastActivity time.Time
}

func newSession(conn *websocket.Conn) *session {
	return &session{
		id:           uuid.NewString(),
		conn:         conn,
		send:         make(chan any, 16),
		lastActivity: time.Now(),
	}
}

// touch bumps the idle clock. Every inbound message counts as activity.
func (s *session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// authenticate stores the session's credentials after a successful connect.
func (s *session) authenticate(patientUID, token string) {
	s.mu.Lock()
	s.patientUID = patientUID
	s.authToken = token
	s.mu.Unlock()
}

// auth returns the stored credentials and whether the session connected.
func (s *session) auth() (patientUID, token string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patientUID, s.authToken, s.patientUID != ""
}

// reply queues a message for the writer goroutine. A full queue drops the
// reply rather than blocking the reader.
func (s *session) reply(msg any) {
	select {
	case s.send <- msg:
	default:
	}
}

// sessionTable tracks connected websocket clients.
type sessionTable struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[string]*session)}
}

func (t *sessionTable) add(s *session) {
	t.mu.Lock()
	t.sessions[s.id] = s
	n := len(t.sessions)
	t.mu.Unlock()
	metrics.SessionsActive.Set(float64(n))
}

func (t *sessionTable) remove(id string) {
	t.mu.Lock()
	delete(t.sessions, id)
	n := len(t.sessions)
	t.mu.Unlock()
	metrics.SessionsActive.Set(float64(n))
}

func (t *sessionTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *sessionTable) snapshot() []*session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

// reapIdle closes sessions idle beyond timeout with a going-away frame and
// returns how many were reaped.
func (t *sessionTable) reapIdle(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)
	reaped := 0
	for _, s := range t.snapshot() {
		if s.idleSince().After(cutoff) {
			continue
		}
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "connection timeout")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = s.conn.Close()
		t.remove(s.id)
		reaped++
	}
	if reaped > 0 {
		metrics.SessionsReaped.Add(float64(reaped))
	}
	return reaped
}

// RunReaper closes idle websocket sessions on a fixed cadence until the
// context is cancelled.
func (g *Gateway) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.sessions.reapIdle(g.cfg.Server.SessionTimeout); n > 0 {
				g.log.Warn().Int("count", n).Dur("timeout", g.cfg.Server.SessionTimeout).Msg("closed stale websocket sessions")
			}
		}
	}
}
