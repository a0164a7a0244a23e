// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package capture

import (
	"strings"
	"sync"
	"time"

	"github.com/deon-george/auramodule/internal/metrics"
)

// transcriptCap is the maximum number of entries held in a TranscriptLog.
// When exceeded, the oldest half is discarded so the log keeps exactly the
// newest transcriptCap/2 entries.
const transcriptCap = 100

// TranscriptEntry is one transcribed utterance.
type TranscriptEntry struct {
	Text string    `json:"text"`
	At   time.Time `json:"timestamp"`
}

// TranscriptLog is a bounded rolling buffer of transcribed speech.
type TranscriptLog struct {
	mu      sync.Mutex
	entries []TranscriptEntry
}

// NewTranscriptLog returns an empty log.
func NewTranscriptLog() *TranscriptLog {
	return &TranscriptLog{}
}

// Append adds an entry, trimming to the newest half of capacity when the
// buffer overflows. Empty or whitespace-only text is ignored.
func (t *TranscriptLog) Append(text string, at time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, TranscriptEntry{Text: text, At: at})
	if len(t.entries) > transcriptCap {
		keep := transcriptCap / 2
		t.entries = append(t.entries[:0], t.entries[len(t.entries)-keep:]...)
	}
	metrics.TranscriptBufferSize.Set(float64(len(t.entries)))
}

// Len reports the current entry count.
func (t *TranscriptLog) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Snapshot returns a copy of the entries in chronological order.
func (t *TranscriptLog) Snapshot() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Flush returns all entries and clears the log atomically. Used by the
// summarization cycle so no utterance is counted twice.
func (t *TranscriptLog) Flush() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.entries
	t.entries = nil
	metrics.TranscriptBufferSize.Set(0)
	return out
}

// JoinText concatenates entry texts with single spaces.
func JoinText(entries []TranscriptEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Text)
	}
	return strings.Join(parts, " ")
}

// LatestTranscript holds the most recent finished transcription result for
// the gateway's polling endpoint.
type LatestTranscript struct {
	mu       sync.Mutex
	text     string
	analysis map[string]any
	at       time.Time
}

// Set records a new result. A nil analysis is allowed.
func (l *LatestTranscript) Set(text string, analysis map[string]any, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.text = text
	l.analysis = analysis
	l.at = at
}

// Get returns the latest result and whether one exists.
func (l *LatestTranscript) Get() (text string, analysis map[string]any, at time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text, l.analysis, l.at, !l.at.IsZero()
}
