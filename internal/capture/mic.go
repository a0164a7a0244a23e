// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package capture

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deon-george/auramodule/internal/config"
	"github.com/deon-george/auramodule/internal/logging"
	"github.com/deon-george/auramodule/internal/metrics"
)

const (
	// silenceThreshold is the mean absolute PCM amplitude below which a
	// chunk counts as silence.
	silenceThreshold = 500.0

	// silenceDuration of continuous silence ends an utterance segment.
	silenceDuration = 2 * time.Second

	// maxBufferedSegments bounds the segment FIFO; oldest entries drop.
	maxBufferedSegments = 100

	// micChunkDuration is the PCM read granularity.
	micChunkDuration = 100 * time.Millisecond
)

// Microphone captures silence-segmented utterances on demand. Each segment
// is WAV-encoded and queued for the websocket listening flow.
type Microphone struct {
	cfg  config.AudioConfig
	demo bool
	log  zerolog.Logger

	mu       sync.Mutex
	segments [][]byte
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

// NewMicrophone creates a burst microphone. Start begins segmentation.
func NewMicrophone(cfg config.AudioConfig, demo bool) *Microphone {
	return &Microphone{
		cfg:  cfg,
		demo: demo,
		log:  logging.With().Str("component", "microphone").Logger(),
	}
}

func (m *Microphone) openSource() (AudioSource, error) {
	if m.demo {
		return openDemoMicrophone(m.cfg), nil
	}
	return openFFmpegMicrophone(m.cfg)
}

// Start opens the audio device and begins utterance segmentation. Starting
// an already-running microphone is a no-op.
func (m *Microphone) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	source, err := m.openSource()
	if err != nil {
		m.mu.Lock()
		m.running = false
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.segmentLoop(source)
	m.log.Info().Msg("listening started")
	return nil
}

// segmentLoop accumulates voiced chunks into a segment and finalizes it
// after silenceDuration of quiet.
func (m *Microphone) segmentLoop(source AudioSource) {
	defer close(m.done)
	defer func() {
		if err := source.Close(); err != nil {
			m.log.Debug().Err(err).Msg("closing audio source")
		}
	}()

	chunkBytes := m.cfg.SampleRate * m.cfg.Channels * 2 *
		int(micChunkDuration/time.Millisecond) / 1000
	buf := make([]byte, chunkBytes)

	var (
		segment      []byte
		voiced       bool
		silenceSince time.Time
	)
	errorCount := 0

	for {
		select {
		case <-m.stop:
			if voiced && len(segment) > 0 {
				m.enqueueSegment(segment)
			}
			m.log.Info().Msg("listening loop ended")
			return
		default:
		}

		n, err := source.ReadChunk(buf)
		if err != nil {
			metrics.CaptureErrors.WithLabelValues("microphone").Inc()
			errorCount++
			if errorCount >= maxConsecutiveCameraErrors {
				m.log.Error().Int("errors", errorCount).Msg("too many consecutive audio read errors, stopping")
				m.mu.Lock()
				m.running = false
				m.mu.Unlock()
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		errorCount = 0
		chunk := buf[:n]

		if meanAmplitude(chunk) >= silenceThreshold {
			voiced = true
			silenceSince = time.Time{}
			segment = append(segment, chunk...)
			continue
		}

		if !voiced {
			continue
		}

		// Quiet tail of an utterance. Keep accumulating until the
		// silence window elapses, then finalize.
		segment = append(segment, chunk...)
		if silenceSince.IsZero() {
			silenceSince = time.Now()
		}
		if time.Since(silenceSince) >= silenceDuration {
			m.enqueueSegment(segment)
			segment = nil
			voiced = false
			silenceSince = time.Time{}
		}
	}
}

func (m *Microphone) enqueueSegment(pcm []byte) {
	wav := EncodeWAV(pcm, m.cfg.SampleRate, m.cfg.Channels)
	m.mu.Lock()
	m.segments = append(m.segments, wav)
	if len(m.segments) > maxBufferedSegments {
		m.segments = m.segments[1:]
	}
	n := len(m.segments)
	m.mu.Unlock()
	m.log.Debug().Int("bytes", len(wav)).Int("buffered", n).Msg("utterance segment captured")
}

// Running reports whether the segmentation loop is active.
func (m *Microphone) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LatestChunk pops the oldest buffered WAV segment, or nil when empty.
func (m *Microphone) LatestChunk() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.segments) == 0 {
		return nil
	}
	wav := m.segments[0]
	m.segments = m.segments[1:]
	return wav
}

// BufferSize reports the number of queued segments.
func (m *Microphone) BufferSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.segments)
}

// ClearBuffer discards all queued segments.
func (m *Microphone) ClearBuffer() {
	m.mu.Lock()
	m.segments = nil
	m.mu.Unlock()
}

// Stop ends the segmentation loop and joins it with a bounded timeout.
func (m *Microphone) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop := m.stop
	done := m.done
	m.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		m.log.Warn().Msg("listening loop did not stop within timeout")
	}
	m.log.Info().Msg("listening stopped")
}
