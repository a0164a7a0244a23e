// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deon-george/auramodule/internal/config"
)

func TestClientUnavailableWithoutURL(t *testing.T) {
	c := NewClient(config.SpeechConfig{})
	if c.Available() {
		t.Fatal("client without service URL reports available")
	}
	if _, err := c.TranscribeWAV(context.Background(), []byte("RIFF")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("TranscribeWAV error = %v, want ErrUnavailable", err)
	}
	if _, err := c.Analyze(context.Background(), "hello"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Analyze error = %v, want ErrUnavailable", err)
	}
}

func TestTranscribeWAVUploadsMultipart(t *testing.T) {
	var gotModel string
	var gotFile []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			gotFile, _ = io.ReadAll(f)
			f.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"  hello there  "}`))
	}))
	defer ts.Close()

	c := NewClient(config.SpeechConfig{ServiceURL: ts.URL, Model: "whisper-small"})
	text, err := c.TranscribeWAV(context.Background(), []byte("RIFFfake"))
	if err != nil {
		t.Fatalf("TranscribeWAV: %v", err)
	}
	if text != "hello there" {
		t.Errorf("text = %q, want trimmed", text)
	}
	if gotModel != "whisper-small" {
		t.Errorf("model field = %q", gotModel)
	}
	if string(gotFile) != "RIFFfake" {
		t.Errorf("uploaded file = %q", gotFile)
	}
}

func TestTranscribeWAVServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(config.SpeechConfig{ServiceURL: ts.URL})
	if _, err := c.TranscribeWAV(context.Background(), []byte("RIFF")); err == nil {
		t.Fatal("expected error from HTTP 500")
	}
}

func TestTranscribeQuantizesSamples(t *testing.T) {
	var uploaded []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		f, _, err := r.FormFile("file")
		if err == nil {
			uploaded, _ = io.ReadAll(f)
			f.Close()
		}
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer ts.Close()

	c := NewClient(config.SpeechConfig{ServiceURL: ts.URL})
	if _, err := c.Transcribe(context.Background(), []float32{0, 0.5, -0.5, 2.0}, 16000); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	// 44-byte header plus 2 bytes per sample.
	if len(uploaded) != 44+8 {
		t.Fatalf("uploaded %d bytes, want 52", len(uploaded))
	}
	if string(uploaded[:4]) != "RIFF" || string(uploaded[8:12]) != "WAVE" {
		t.Errorf("payload is not a WAV file: % x", uploaded[:12])
	}
}

func TestAnalyzePostsText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"text":"good morning"}` {
			t.Errorf("analyze body = %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"mood":"calm","topics":["greeting"]}`))
	}))
	defer ts.Close()

	c := NewClient(config.SpeechConfig{ServiceURL: ts.URL, AnalyzeURL: ts.URL})
	result, err := c.Analyze(context.Background(), "good morning")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result["mood"] != "calm" {
		t.Errorf("mood = %v", result["mood"])
	}
}
