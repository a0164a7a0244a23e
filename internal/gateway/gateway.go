// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

// Package gateway is the device's local HTTP and websocket surface: health
// and status endpoints, the MJPEG video feed, face extraction and
// identification APIs, and the caregiver websocket protocol.
package gateway

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/deon-george/auramodule/internal/backend"
	"github.com/deon-george/auramodule/internal/capture"
	"github.com/deon-george/auramodule/internal/config"
	"github.com/deon-george/auramodule/internal/identify"
	"github.com/deon-george/auramodule/internal/logging"
	"github.com/deon-george/auramodule/internal/metrics"
	"github.com/deon-george/auramodule/internal/speech"
)

func setVideoStreamsActive(n int) {
	metrics.VideoStreamsActive.Set(float64(n))
}

// Version reported by the health and status endpoints.
const Version = "1.0.0"

// FrameProvider supplies the latest camera frame.
type FrameProvider interface {
	Frame() (*capture.Frame, error)
	Running() bool
	Info() capture.CameraInfo
}

// Listener is the on-demand utterance capture used by the websocket
// listening flow.
type Listener interface {
	Start() error
	Stop()
	Running() bool
	LatestChunk() []byte
}

// Identifier runs the face identification pipeline.
type Identifier interface {
	Identify(ctx context.Context, frame image.Image, patientUID, authToken string) (*identify.Result, error)
	Detect(ctx context.Context, frame image.Image) ([]identify.DetectedFace, error)
	Available() bool
}

// BackendStatus reports backend connectivity for the status endpoint.
type BackendStatus func() backend.State

// Gateway wires the device services to their network surface.
type Gateway struct {
	cfg config.Config
	log zerolog.Logger

	camera     FrameProvider
	mic        Listener
	identifier Identifier
	transcribe speech.Transcriber
	analyze    speech.Analyzer
	latest     *capture.LatestTranscript
	backend    BackendStatus
	localIP    func() string

	sessions *sessionTable

	shuttingDown atomic.Bool

	streamMu      sync.Mutex
	activeStreams map[chan struct{}]struct{}
}

// Deps are the services the gateway exposes. Latest and Backend may be nil.
type Deps struct {
	Camera     FrameProvider
	Microphone Listener
	Identifier Identifier
	Transcribe speech.Transcriber
	Analyze    speech.Analyzer
	Latest     *capture.LatestTranscript
	Backend    BackendStatus
}

// New builds a gateway.
func New(cfg config.Config, deps Deps) *Gateway {
	g := &Gateway{
		cfg:           cfg,
		log:           logging.With().Str("component", "gateway").Logger(),
		camera:        deps.Camera,
		mic:           deps.Microphone,
		identifier:    deps.Identifier,
		transcribe:    deps.Transcribe,
		analyze:       deps.Analyze,
		latest:        deps.Latest,
		backend:       deps.Backend,
		localIP:       backend.LocalIP,
		sessions:      newSessionTable(),
		activeStreams: make(map[chan struct{}]struct{}),
	}
	if g.latest == nil {
		g.latest = &capture.LatestTranscript{}
	}
	return g
}

// registerStream tracks an active video stream and returns its stop channel.
func (g *Gateway) registerStream() chan struct{} {
	stop := make(chan struct{})
	g.streamMu.Lock()
	g.activeStreams[stop] = struct{}{}
	n := len(g.activeStreams)
	g.streamMu.Unlock()
	setVideoStreamsActive(n)
	return stop
}

func (g *Gateway) unregisterStream(stop chan struct{}) {
	g.streamMu.Lock()
	delete(g.activeStreams, stop)
	n := len(g.activeStreams)
	g.streamMu.Unlock()
	setVideoStreamsActive(n)
}

// ActiveStreams reports the number of open video feeds.
func (g *Gateway) ActiveStreams() int {
	g.streamMu.Lock()
	defer g.streamMu.Unlock()
	return len(g.activeStreams)
}

// closeStreams signals every active video stream to end.
func (g *Gateway) closeStreams() {
	g.streamMu.Lock()
	for stop := range g.activeStreams {
		close(stop)
	}
	g.activeStreams = make(map[chan struct{}]struct{})
	g.streamMu.Unlock()
	setVideoStreamsActive(0)
}
