// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/deon-george/auramodule/internal/metrics"
)

// minTokenLength is the shortest auth token accepted on connect.
const minTokenLength = 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The gateway serves caregiver apps on the local network; origin
	// enforcement happens at the backend.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsCommand is the envelope every client message must fit.
type wsCommand struct {
	Command    string `json:"command"`
	AuthToken  string `json:"auth_token"`
	PatientUID string `json:"patient_uid"`
}

// HandleWS upgrades the connection and runs the command loop until the
// client goes away or the server shuts down.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	s := newSession(conn)
	g.sessions.add(s)
	g.log.Info().Str("session", s.id).Str("remote", r.RemoteAddr).Msg("websocket client connected")

	writerDone := make(chan struct{})
	go g.sessionWriter(s, writerDone)

	defer func() {
		g.sessions.remove(s.id)
		close(s.send)
		<-writerDone
		conn.Close()
		g.log.Info().Str("session", s.id).Msg("websocket client disconnected")
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.touch()

		if g.shuttingDown.Load() {
			s.reply(map[string]any{"type": "shutdown", "message": "Server shutting down"})
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.reply(map[string]any{"type": "error", "error": "invalid_json"})
			continue
		}
		if errMsg := validateCommand(raw, cmd); errMsg != "" {
			g.log.Warn().Str("session", s.id).Str("reason", errMsg).Msg("websocket message rejected")
			s.reply(map[string]any{"type": "error", "error": "validation_error", "message": errMsg})
			continue
		}

		g.dispatch(r.Context(), s, cmd)
	}
}

// sessionWriter is the session's single connection writer. Replies leave in
// queue order.
func (g *Gateway) sessionWriter(s *session, done chan struct{}) {
	defer close(done)
	for msg := range s.send {
		payload, err := json.Marshal(msg)
		if err != nil {
			g.log.Error().Err(err).Str("session", s.id).Msg("cannot encode websocket reply")
			continue
		}
		s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// validateCommand enforces the message envelope. The raw payload is checked
// for field presence on connect, where absent and empty differ.
func validateCommand(raw []byte, cmd wsCommand) string {
	if cmd.Command == "" {
		return "Missing 'command' field"
	}
	if cmd.Command == "connect" {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return "Message must be a JSON object"
		}
		if _, ok := fields["auth_token"]; !ok {
			return "Missing 'auth_token' for connect command"
		}
		if _, ok := fields["patient_uid"]; !ok {
			return "Missing 'patient_uid' for connect command"
		}
	}
	return ""
}

func (g *Gateway) dispatch(ctx context.Context, s *session, cmd wsCommand) {
	outcome := "ok"
	switch cmd.Command {
	case "connect":
		outcome = g.cmdConnect(s, cmd)
	case "identify":
		outcome = g.cmdIdentify(ctx, s)
	case "start_listening":
		if err := g.mic.Start(); err != nil {
			g.log.Error().Err(err).Msg("cannot start listening")
			s.reply(map[string]any{"type": "listening", "status": "error", "error": "microphone_unavailable"})
			outcome = "error"
			break
		}
		s.reply(map[string]any{"type": "listening", "status": "started"})
	case "stop_listening":
		g.mic.Stop()
		s.reply(map[string]any{"type": "listening", "status": "stopped"})
	case "get_transcript":
		outcome = g.cmdGetTranscript(ctx, s)
	case "status":
		_, _, authed := s.auth()
		s.reply(map[string]any{
			"type":          "status",
			"camera":        g.camera.Running(),
			"mic":           g.mic.Running(),
			"authenticated": authed,
		})
	case "ping":
		s.reply(map[string]any{"type": "pong"})
	default:
		g.log.Warn().Str("command", cmd.Command).Msg("unknown websocket command")
		s.reply(map[string]any{"type": "error", "error": "unknown_command", "command": cmd.Command})
		outcome = "unknown"
	}
	metrics.WSCommands.WithLabelValues(cmd.Command, outcome).Inc()
}

// cmdConnect validates credentials and binds them to the session. Failures
// answer in-band; the connection stays open for another attempt.
func (g *Gateway) cmdConnect(s *session, cmd wsCommand) string {
	token := cmd.AuthToken
	if token == "" || len(token) < minTokenLength {
		g.log.Warn().Str("session", s.id).Msg("invalid auth token rejected")
		s.reply(map[string]any{"type": "connected", "status": "error", "error": "invalid_token"})
		return "error"
	}
	if cmd.PatientUID == "" {
		g.log.Warn().Str("session", s.id).Msg("missing patient uid rejected")
		s.reply(map[string]any{"type": "connected", "status": "error", "error": "missing_patient_uid"})
		return "error"
	}

	s.authenticate(cmd.PatientUID, token)
	g.log.Info().Str("session", s.id).Str("patient_uid", truncateUID(cmd.PatientUID)).Msg("websocket client authenticated")
	s.reply(map[string]any{"type": "connected", "status": "ok"})
	return "ok"
}

func (g *Gateway) cmdIdentify(ctx context.Context, s *session) string {
	patientUID, token, authed := s.auth()
	if !authed {
		s.reply(map[string]any{"type": "identify_result", "error": "not_authenticated"})
		return "unauthenticated"
	}

	frame, err := g.camera.Frame()
	if err != nil {
		s.reply(map[string]any{"type": "identify_result", "error": "no_frame"})
		return "no_frame"
	}

	result, err := g.identifier.Identify(ctx, frame.Image, patientUID, token)
	if err != nil {
		g.log.Error().Err(err).Msg("face identification failed")
		s.reply(map[string]any{"type": "identify_result", "error": "identification_failed", "message": err.Error()})
		return "error"
	}
	s.reply(map[string]any{"type": "identify_result", "faces": result.Faces})
	return "ok"
}

func (g *Gateway) cmdGetTranscript(ctx context.Context, s *session) string {
	_, _, authed := s.auth()
	if !authed {
		s.reply(map[string]any{"type": "transcript", "error": "not_authenticated"})
		return "unauthenticated"
	}

	chunk := g.mic.LatestChunk()
	if chunk == nil {
		s.reply(map[string]any{"type": "transcript", "text": ""})
		return "empty"
	}

	text, err := g.transcribe.TranscribeWAV(ctx, chunk)
	if err != nil {
		g.log.Error().Err(err).Msg("transcription failed")
		s.reply(map[string]any{"type": "transcript", "error": "transcription_failed", "message": err.Error()})
		return "error"
	}
	if text == "" {
		s.reply(map[string]any{"type": "transcript", "text": "", "speakers": []string{}})
		return "empty"
	}

	var analysis map[string]any
	if g.analyze != nil && g.analyze.Available() {
		analysis, err = g.analyze.Analyze(ctx, text)
		if err != nil {
			g.log.Warn().Err(err).Msg("conversation analysis failed")
			analysis = nil
		}
	}

	g.latest.Set(text, analysis, time.Now())
	s.reply(map[string]any{
		"type":     "transcript",
		"text":     text,
		"speakers": []string{},
		"analysis": analysis,
	})
	return "ok"
}

func truncateUID(uid string) string {
	if len(uid) <= 8 {
		return uid
	}
	return uid[:8] + "..."
}

// Shutdown runs the ordered teardown: refuse new work, give in-flight
// requests a grace period, notify and close websocket sessions, then end
// video streams. The HTTP listener closes after this returns.
func (g *Gateway) Shutdown(ctx context.Context) {
	g.shuttingDown.Store(true)
	g.log.Info().Msg("gateway shutting down")

	grace := g.cfg.Server.ShutdownGrace
	if grace > 0 {
		t := time.NewTimer(grace)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}

	for _, s := range g.sessions.snapshot() {
		s.reply(map[string]any{"type": "shutdown", "message": "Server shutting down"})
	}
	// Let the writers flush the shutdown frames.
	time.Sleep(100 * time.Millisecond)
	for _, s := range g.sessions.snapshot() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = s.conn.Close()
		g.sessions.remove(s.id)
	}

	g.closeStreams()
}
