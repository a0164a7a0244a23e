// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

// Package speech wraps the external speech-to-text and conversation
// analysis services. Both are optional capabilities; when unconfigured the
// rest of the runtime degrades rather than failing.
package speech

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no transcription service is configured.
var ErrUnavailable = errors.New("speech service not configured")

// Transcriber converts captured audio to text.
type Transcriber interface {
	// Transcribe converts normalized mono float32 samples to text.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)

	// TranscribeWAV converts a complete WAV payload to text.
	TranscribeWAV(ctx context.Context, wav []byte) (string, error)

	// Available reports whether the capability is configured.
	Available() bool
}

// Analyzer extracts structured insight from conversation text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (map[string]any, error)
	Available() bool
}
