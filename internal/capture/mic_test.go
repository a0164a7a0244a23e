// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package capture

import (
	"bytes"
	"testing"
	"time"

	"github.com/deon-george/auramodule/internal/config"
)

func testAudioConfig() config.AudioConfig {
	return config.AudioConfig{
		SampleRate:        16000,
		Channels:          1,
		SummarizeInterval: 600 * time.Second,
	}
}

func TestMicrophoneBufferFIFO(t *testing.T) {
	mic := NewMicrophone(testAudioConfig(), true)

	mic.enqueueSegment([]byte{1, 1})
	mic.enqueueSegment([]byte{2, 2})
	mic.enqueueSegment([]byte{3, 3})

	if n := mic.BufferSize(); n != 3 {
		t.Fatalf("buffer size = %d, want 3", n)
	}

	first := mic.LatestChunk()
	if first == nil {
		t.Fatal("expected a segment")
	}
	// Segments are WAV-wrapped; the payload follows the 44-byte header.
	if !bytes.Equal(first[44:], []byte{1, 1}) {
		t.Errorf("pop order wrong, payload = %v", first[44:])
	}
	if n := mic.BufferSize(); n != 2 {
		t.Errorf("buffer size after pop = %d, want 2", n)
	}
}

func TestMicrophoneBufferCapDropsOldest(t *testing.T) {
	mic := NewMicrophone(testAudioConfig(), true)

	for i := 0; i <= maxBufferedSegments; i++ {
		mic.enqueueSegment([]byte{byte(i), byte(i)})
	}
	if n := mic.BufferSize(); n != maxBufferedSegments {
		t.Fatalf("buffer size = %d, want %d", n, maxBufferedSegments)
	}
	// Segment 0 was dropped; the oldest remaining is segment 1.
	oldest := mic.LatestChunk()
	if !bytes.Equal(oldest[44:], []byte{1, 1}) {
		t.Errorf("oldest payload = %v, want [1 1]", oldest[44:])
	}
}

func TestMicrophoneLatestChunkEmpty(t *testing.T) {
	mic := NewMicrophone(testAudioConfig(), true)
	if chunk := mic.LatestChunk(); chunk != nil {
		t.Errorf("expected nil from empty buffer, got %d bytes", len(chunk))
	}
}

func TestMicrophoneClearBuffer(t *testing.T) {
	mic := NewMicrophone(testAudioConfig(), true)
	mic.enqueueSegment([]byte{1, 1})
	mic.ClearBuffer()
	if n := mic.BufferSize(); n != 0 {
		t.Errorf("buffer size after clear = %d", n)
	}
}

func TestMicrophoneStartStop(t *testing.T) {
	mic := NewMicrophone(testAudioConfig(), true)
	if err := mic.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !mic.Running() {
		t.Error("mic not running after Start")
	}
	// Demo source is silent; no segments should accumulate.
	time.Sleep(250 * time.Millisecond)
	if n := mic.BufferSize(); n != 0 {
		t.Errorf("silent source produced %d segments", n)
	}
	mic.Stop()
	if mic.Running() {
		t.Error("mic still running after Stop")
	}
}
