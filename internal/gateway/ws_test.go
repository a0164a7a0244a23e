// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package gateway

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, g *Gateway) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(g.Router())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial failed: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func sendRecv(t *testing.T, conn *websocket.Conn, msg string) map[string]any {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var reply map[string]any
	if err := json.Unmarshal(raw, &reply); err != nil {
		t.Fatalf("invalid reply %q: %v", raw, err)
	}
	return reply
}

func TestWSIdentifyBeforeConnect(t *testing.T) {
	g := testGateway(Deps{})
	conn, done := dialWS(t, g)
	defer done()

	reply := sendRecv(t, conn, `{"command":"identify"}`)
	if reply["type"] != "identify_result" || reply["error"] != "not_authenticated" {
		t.Errorf("reply = %v", reply)
	}
}

func TestWSConnectValidation(t *testing.T) {
	g := testGateway(Deps{})
	conn, done := dialWS(t, g)
	defer done()

	// Token below the minimum length.
	reply := sendRecv(t, conn, `{"command":"connect","auth_token":"short","patient_uid":"p1"}`)
	if reply["type"] != "connected" || reply["status"] != "error" || reply["error"] != "invalid_token" {
		t.Errorf("short token reply = %v", reply)
	}

	// Empty patient uid.
	reply = sendRecv(t, conn, `{"command":"connect","auth_token":"0123456789","patient_uid":""}`)
	if reply["error"] != "missing_patient_uid" {
		t.Errorf("missing uid reply = %v", reply)
	}

	// The connection survived both failures.
	reply = sendRecv(t, conn, `{"command":"connect","auth_token":"0123456789","patient_uid":"p1"}`)
	if reply["type"] != "connected" || reply["status"] != "ok" {
		t.Errorf("valid connect reply = %v", reply)
	}
}

func TestWSConnectMissingFields(t *testing.T) {
	g := testGateway(Deps{})
	conn, done := dialWS(t, g)
	defer done()

	reply := sendRecv(t, conn, `{"command":"connect","patient_uid":"p1"}`)
	if reply["type"] != "error" || reply["error"] != "validation_error" {
		t.Errorf("reply = %v", reply)
	}
}

func TestWSMalformedJSON(t *testing.T) {
	g := testGateway(Deps{})
	conn, done := dialWS(t, g)
	defer done()

	reply := sendRecv(t, conn, `{not json`)
	if reply["type"] != "error" || reply["error"] != "invalid_json" {
		t.Errorf("reply = %v", reply)
	}

	// The connection stays open.
	reply = sendRecv(t, conn, `{"command":"ping"}`)
	if reply["type"] != "pong" {
		t.Errorf("ping after error = %v", reply)
	}
}

func TestWSUnknownCommand(t *testing.T) {
	g := testGateway(Deps{})
	conn, done := dialWS(t, g)
	defer done()

	reply := sendRecv(t, conn, `{"command":"fly"}`)
	if reply["type"] != "error" || reply["error"] != "unknown_command" || reply["command"] != "fly" {
		t.Errorf("reply = %v", reply)
	}
}

func TestWSListeningFlow(t *testing.T) {
	mic := &stubMic{}
	g := testGateway(Deps{Microphone: mic})
	conn, done := dialWS(t, g)
	defer done()

	reply := sendRecv(t, conn, `{"command":"start_listening"}`)
	if reply["type"] != "listening" || reply["status"] != "started" {
		t.Errorf("start reply = %v", reply)
	}
	if !mic.Running() {
		t.Error("mic not started")
	}

	reply = sendRecv(t, conn, `{"command":"stop_listening"}`)
	if reply["status"] != "stopped" {
		t.Errorf("stop reply = %v", reply)
	}
	if mic.Running() {
		t.Error("mic not stopped")
	}
}

func TestWSStatusReflectsAuth(t *testing.T) {
	g := testGateway(Deps{})
	conn, done := dialWS(t, g)
	defer done()

	reply := sendRecv(t, conn, `{"command":"status"}`)
	if reply["authenticated"] != false {
		t.Errorf("pre-auth status = %v", reply)
	}

	sendRecv(t, conn, `{"command":"connect","auth_token":"0123456789","patient_uid":"p1"}`)
	reply = sendRecv(t, conn, `{"command":"status"}`)
	if reply["authenticated"] != true {
		t.Errorf("post-auth status = %v", reply)
	}
	if reply["camera"] != true {
		t.Errorf("camera = %v", reply["camera"])
	}
}

func TestWSGetTranscript(t *testing.T) {
	mic := &stubMic{chunk: []byte("RIFFfakewav")}
	g := testGateway(Deps{Microphone: mic, Transcribe: &stubSpeech{text: "hello world"}})
	conn, done := dialWS(t, g)
	defer done()

	// Unauthenticated first.
	reply := sendRecv(t, conn, `{"command":"get_transcript"}`)
	if reply["type"] != "transcript" || reply["error"] != "not_authenticated" {
		t.Errorf("unauth reply = %v", reply)
	}

	sendRecv(t, conn, `{"command":"connect","auth_token":"0123456789","patient_uid":"p1"}`)
	reply = sendRecv(t, conn, `{"command":"get_transcript"}`)
	if reply["text"] != "hello world" {
		t.Errorf("transcript reply = %v", reply)
	}

	// The result is published to the polling endpoint.
	text, _, _, ok := g.latest.Get()
	if !ok || text != "hello world" {
		t.Errorf("latest transcript = %q, ok=%v", text, ok)
	}
}

func TestSessionReaperClosesIdle(t *testing.T) {
	g := testGateway(Deps{})
	conn, done := dialWS(t, g)
	defer done()

	// Wait for the session to appear.
	deadline := time.Now().Add(time.Second)
	for g.sessions.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if g.sessions.count() != 1 {
		t.Fatalf("sessions = %d", g.sessions.count())
	}

	// Fresh activity: not reaped.
	if n := g.sessions.reapIdle(300 * time.Second); n != 0 {
		t.Errorf("reaped fresh session")
	}

	// Backdate past the timeout: reaped with a close frame.
	for _, s := range g.sessions.snapshot() {
		s.mu.Lock()
		s.lastActivity = time.Now().Add(-301 * time.Second)
		s.mu.Unlock()
	}
	if n := g.sessions.reapIdle(300 * time.Second); n != 1 {
		t.Errorf("reaped = %d, want 1", n)
	}
	if g.sessions.count() != 0 {
		t.Errorf("sessions = %d after reap", g.sessions.count())
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected closed connection")
	}
}
