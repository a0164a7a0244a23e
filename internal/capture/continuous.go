// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package capture

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deon-george/auramodule/internal/config"
	"github.com/deon-george/auramodule/internal/logging"
	"github.com/deon-george/auramodule/internal/speech"
)

const (
	// transcribeBatchSize is how many raw chunks are drained per
	// transcription call.
	transcribeBatchSize = 10

	// workQueueCap bounds the recording-to-transcription handoff. A full
	// queue drops the newest chunk rather than blocking capture.
	workQueueCap = 100

	// rawBufferSeconds bounds the rolling raw-audio buffer. Overflow drops
	// the oldest audio; the buffer is cleared on every summarization flush.
	rawBufferSeconds = 60
)

// SummaryBatch is the payload handed to the summarization callback when the
// rolling transcript is flushed.
type SummaryBatch struct {
	Text    string
	Entries []TranscriptEntry
}

// SummaryFunc consumes a flushed transcript batch. It runs on a dedicated
// dispatch goroutine, never on a capture loop.
type SummaryFunc func(ctx context.Context, batch SummaryBatch)

// ContinuousMicrophone records ambient audio, transcribes it in batches and
// periodically flushes the accumulated transcript to a summarization
// callback.
type ContinuousMicrophone struct {
	cfg         config.AudioConfig
	demo        bool
	transcriber speech.Transcriber
	onSummary   SummaryFunc
	log         zerolog.Logger

	transcripts *TranscriptLog
	latest      *LatestTranscript

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	// transcribing is fixed at Start; without the capability the record
	// loop still fills the raw buffer but skips the work queue.
	transcribing bool

	rawMu       sync.Mutex
	raw         []byte
	maxRawBytes int

	work      chan []byte
	summaries chan SummaryBatch
}

// NewContinuousMicrophone wires the ambient listening pipeline. onSummary
// may be nil; flushed batches are then discarded.
func NewContinuousMicrophone(cfg config.AudioConfig, demo bool, transcriber speech.Transcriber, onSummary SummaryFunc) *ContinuousMicrophone {
	return &ContinuousMicrophone{
		cfg:         cfg,
		demo:        demo,
		transcriber: transcriber,
		onSummary:   onSummary,
		log:         logging.With().Str("component", "continuous_mic").Logger(),
		transcripts: NewTranscriptLog(),
		latest:      &LatestTranscript{},
	}
}

// Transcripts exposes the rolling transcript buffer.
func (m *ContinuousMicrophone) Transcripts() *TranscriptLog { return m.transcripts }

// Latest exposes the most recent transcription result holder.
func (m *ContinuousMicrophone) Latest() *LatestTranscript { return m.latest }

// Start launches the recording, transcription, summarization and dispatch
// goroutines. Raw audio is recorded whether or not a transcription
// capability is present; without one the transcription stage stays idle
// but the summarization timer still runs, so downstream consumers observe
// (empty) batches on schedule.
func (m *ContinuousMicrophone) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.stop = make(chan struct{})
	m.work = make(chan []byte, workQueueCap)
	m.summaries = make(chan SummaryBatch, 4)
	m.transcribing = m.transcriber != nil && m.transcriber.Available()
	m.maxRawBytes = m.cfg.SampleRate * m.cfg.Channels * 2 * rawBufferSeconds
	m.mu.Unlock()

	source, err := m.openSource()
	if err != nil {
		m.log.Warn().Err(err).Msg("ambient audio device unavailable, summarization timer only")
	} else {
		m.wg.Add(1)
		go m.recordLoop(source)
		if m.transcribing {
			m.wg.Add(1)
			go m.transcribeLoop()
		} else {
			m.log.Info().Msg("no transcription capability, recording raw audio only")
		}
	}

	m.wg.Add(2)
	go m.summarizeLoop()
	go m.dispatchLoop()

	m.log.Info().Bool("transcription", m.transcribing).Msg("continuous listening started")
	return nil
}

func (m *ContinuousMicrophone) openSource() (AudioSource, error) {
	if m.demo {
		return openDemoMicrophone(m.cfg), nil
	}
	return openFFmpegMicrophone(m.cfg)
}

func (m *ContinuousMicrophone) recordLoop(source AudioSource) {
	defer m.wg.Done()
	defer func() {
		if err := source.Close(); err != nil {
			m.log.Debug().Err(err).Msg("closing ambient audio source")
		}
	}()

	chunkBytes := m.cfg.SampleRate * m.cfg.Channels * 2 / 2 // 500 ms per chunk
	errorCount := 0

	for {
		select {
		case <-m.stop:
			return
		default:
		}

		buf := make([]byte, chunkBytes)
		n, err := source.ReadChunk(buf)
		if err != nil {
			errorCount++
			if errorCount >= maxConsecutiveCameraErrors {
				m.log.Error().Int("errors", errorCount).Msg("too many consecutive ambient read errors, recording stopped")
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		errorCount = 0

		m.appendRaw(buf[:n])
		if !m.transcribing {
			continue
		}
		select {
		case m.work <- buf[:n]:
		default:
			m.log.Debug().Msg("transcription queue full, dropping chunk")
		}
	}
}

// appendRaw grows the rolling raw-audio buffer, discarding the oldest
// audio once the bound is reached.
func (m *ContinuousMicrophone) appendRaw(chunk []byte) {
	m.rawMu.Lock()
	defer m.rawMu.Unlock()
	m.raw = append(m.raw, chunk...)
	if over := len(m.raw) - m.maxRawBytes; over > 0 {
		m.raw = append(m.raw[:0], m.raw[over:]...)
	}
}

// RawAudio returns a copy of the raw PCM recorded since the last
// summarization flush.
func (m *ContinuousMicrophone) RawAudio() []byte {
	m.rawMu.Lock()
	defer m.rawMu.Unlock()
	out := make([]byte, len(m.raw))
	copy(out, m.raw)
	return out
}

func (m *ContinuousMicrophone) clearRaw() {
	m.rawMu.Lock()
	m.raw = m.raw[:0]
	m.rawMu.Unlock()
}

// transcribeLoop drains fixed-size batches off the work queue and appends
// recognized text to the rolling transcript.
func (m *ContinuousMicrophone) transcribeLoop() {
	defer m.wg.Done()

	batch := make([][]byte, 0, transcribeBatchSize)
	for {
		select {
		case <-m.stop:
			return
		case chunk := <-m.work:
			batch = append(batch, chunk)
			if len(batch) < transcribeBatchSize {
				continue
			}
			m.transcribeBatch(batch)
			batch = batch[:0]
		}
	}
}

func (m *ContinuousMicrophone) transcribeBatch(batch [][]byte) {
	var pcm []byte
	for _, c := range batch {
		pcm = append(pcm, c...)
	}
	samples := PCMToFloat32(pcm)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	text, err := m.transcriber.Transcribe(ctx, samples, m.cfg.SampleRate)
	if err != nil {
		m.log.Warn().Err(err).Msg("transcription failed")
		return
	}
	if text == "" {
		return
	}

	now := time.Now()
	m.transcripts.Append(text, now)
	m.latest.Set(text, nil, now)
	m.log.Debug().Str("text", text).Msg("transcribed")
}

// summarizeLoop flushes the transcript and the raw-audio buffer on a fixed
// interval and hands the batch to the dispatch goroutine. It fires even
// when the batch is empty.
func (m *ContinuousMicrophone) summarizeLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SummarizeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			entries := m.transcripts.Flush()
			m.clearRaw()
			batch := SummaryBatch{Text: JoinText(entries), Entries: entries}
			select {
			case m.summaries <- batch:
			default:
				m.log.Warn().Msg("summary dispatch queue full, dropping batch")
			}
		}
	}
}

func (m *ContinuousMicrophone) dispatchLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stop:
			return
		case batch := <-m.summaries:
			if m.onSummary == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			m.onSummary(ctx, batch)
			cancel()
		}
	}
}

// Running reports whether the pipeline is active.
func (m *ContinuousMicrophone) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Stop shuts down all pipeline goroutines with a bounded join.
func (m *ContinuousMicrophone) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		m.log.Warn().Msg("continuous listening loops did not stop within timeout")
	}
	m.log.Info().Msg("continuous listening stopped")
}
