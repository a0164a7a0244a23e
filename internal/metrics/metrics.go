// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

// Package metrics provides Prometheus instrumentation for the device runtime:
// capture throughput, websocket session counts, heartbeat outcomes,
// identification latency and circuit breaker state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Capture metrics

	FramesCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_frames_captured_total",
			Help: "Total frames captured, by source (device or demo)",
		},
		[]string{"source"},
	)

	CaptureErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_capture_errors_total",
			Help: "Total capture read errors, by subsystem",
		},
		[]string{"subsystem"}, // "camera", "microphone", "continuous_mic"
	)

	AudioChunksTranscribed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aura_audio_chunks_transcribed_total",
			Help: "Total audio batches pushed through the speech capability",
		},
	)

	TranscriptBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aura_transcript_buffer_entries",
			Help: "Current number of entries in the rolling transcript buffer",
		},
	)

	// Gateway metrics

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aura_ws_sessions_active",
			Help: "Current number of connected websocket sessions",
		},
	)

	SessionsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aura_ws_sessions_reaped_total",
			Help: "Total websocket sessions closed for inactivity",
		},
	)

	VideoStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aura_video_streams_active",
			Help: "Current number of open multipart video streams",
		},
	)

	WSCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_ws_commands_total",
			Help: "Total websocket commands processed, by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	// Connectivity metrics

	HeartbeatsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_heartbeats_total",
			Help: "Total heartbeat attempts, by outcome",
		},
		[]string{"outcome"}, // "ok", "error"
	)

	RegistrationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_registration_attempts_total",
			Help: "Total registration attempts, by outcome",
		},
		[]string{"outcome"}, // "ok", "retryable", "terminal"
	)

	// Identification metrics

	IdentifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aura_identify_duration_seconds",
			Help:    "End-to-end identification pipeline latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	FacesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aura_faces_detected_total",
			Help: "Total faces detected across identification requests",
		},
	)

	FacesMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_faces_matched_total",
			Help: "Total per-face match outcomes",
		},
		[]string{"outcome"}, // "identified", "unknown", "error"
	)

	// Circuit breaker metrics (coordinator side)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aura_breaker_state",
			Help: "Circuit breaker state per device (0=closed, 1=half-open, 2=open)",
		},
		[]string{"device"},
	)
)
