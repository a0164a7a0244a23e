// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package capture

import (
	"fmt"
	"testing"
	"time"
)

func TestTranscriptLogAppendAndSnapshot(t *testing.T) {
	log := NewTranscriptLog()
	now := time.Now()

	log.Append("hello", now)
	log.Append("world", now.Add(time.Second))

	entries := log.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Text != "hello" || entries[1].Text != "world" {
		t.Errorf("unexpected order: %q, %q", entries[0].Text, entries[1].Text)
	}
}

func TestTranscriptLogIgnoresBlankText(t *testing.T) {
	log := NewTranscriptLog()
	log.Append("", time.Now())
	log.Append("   ", time.Now())
	log.Append("\n\t", time.Now())

	if n := log.Len(); n != 0 {
		t.Errorf("expected empty log, got %d entries", n)
	}
}

func TestTranscriptLogKeepsNewestHalfOnOverflow(t *testing.T) {
	log := NewTranscriptLog()
	now := time.Now()
	for i := 0; i <= transcriptCap; i++ {
		log.Append(fmt.Sprintf("utterance %d", i), now.Add(time.Duration(i)*time.Second))
	}

	entries := log.Snapshot()
	if len(entries) != transcriptCap/2 {
		t.Fatalf("expected %d entries after overflow, got %d", transcriptCap/2, len(entries))
	}
	// 101 appends, trimmed to the newest 50: entries 51..100 survive.
	if got, want := entries[0].Text, fmt.Sprintf("utterance %d", transcriptCap/2+1); got != want {
		t.Errorf("oldest surviving entry = %q, want %q", got, want)
	}
	if got, want := entries[len(entries)-1].Text, fmt.Sprintf("utterance %d", transcriptCap); got != want {
		t.Errorf("newest entry = %q, want %q", got, want)
	}
}

func TestTranscriptLogFlushReturnsAndClears(t *testing.T) {
	log := NewTranscriptLog()
	log.Append("one", time.Now())
	log.Append("two", time.Now())

	flushed := log.Flush()
	if len(flushed) != 2 {
		t.Fatalf("expected 2 flushed entries, got %d", len(flushed))
	}
	if n := log.Len(); n != 0 {
		t.Errorf("expected empty log after flush, got %d entries", n)
	}
	if again := log.Flush(); len(again) != 0 {
		t.Errorf("second flush returned %d entries", len(again))
	}
}

func TestJoinText(t *testing.T) {
	entries := []TranscriptEntry{
		{Text: "good"},
		{Text: "morning"},
		{Text: "again"},
	}
	if got := JoinText(entries); got != "good morning again" {
		t.Errorf("JoinText = %q", got)
	}
	if got := JoinText(nil); got != "" {
		t.Errorf("JoinText(nil) = %q", got)
	}
}

func TestLatestTranscript(t *testing.T) {
	var latest LatestTranscript

	if _, _, _, ok := latest.Get(); ok {
		t.Fatal("expected no transcript before Set")
	}

	at := time.Now()
	latest.Set("hello there", map[string]any{"sentiment": "positive"}, at)
	text, analysis, got, ok := latest.Get()
	if !ok {
		t.Fatal("expected transcript after Set")
	}
	if text != "hello there" {
		t.Errorf("text = %q", text)
	}
	if analysis["sentiment"] != "positive" {
		t.Errorf("analysis = %v", analysis)
	}
	if !got.Equal(at) {
		t.Errorf("timestamp = %v, want %v", got, at)
	}
}
