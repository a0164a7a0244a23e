// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package capture

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := make([]byte, 3200) // 100 ms at 16 kHz mono
	wav := EncodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad container magic: %q %q", wav[0:4], wav[8:12])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data length = %d, want %d", got, len(pcm))
	}
}

func putSample(buf []byte, v int16) {
	binary.LittleEndian.PutUint16(buf, uint16(v))
}

func TestPCMToFloat32(t *testing.T) {
	pcm := make([]byte, 6)
	putSample(pcm[0:], 0)
	putSample(pcm[2:], 16384)
	putSample(pcm[4:], -32768)

	samples := PCMToFloat32(pcm)
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if samples[0] != 0 {
		t.Errorf("samples[0] = %v", samples[0])
	}
	if math.Abs(float64(samples[1])-0.5) > 1e-6 {
		t.Errorf("samples[1] = %v, want 0.5", samples[1])
	}
	if samples[2] != -1 {
		t.Errorf("samples[2] = %v, want -1", samples[2])
	}
}

func TestMeanAmplitude(t *testing.T) {
	quiet := make([]byte, 8) // all zero samples
	if got := meanAmplitude(quiet); got != 0 {
		t.Errorf("silence amplitude = %v", got)
	}

	loud := make([]byte, 4)
	putSample(loud[0:], 1000)
	putSample(loud[2:], -1000)
	if got := meanAmplitude(loud); got != 1000 {
		t.Errorf("amplitude = %v, want 1000", got)
	}

	if got := meanAmplitude(nil); got != 0 {
		t.Errorf("empty amplitude = %v", got)
	}
}
