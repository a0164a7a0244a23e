// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/deon-george/auramodule/internal/config"
	"github.com/deon-george/auramodule/internal/logging"
	"github.com/deon-george/auramodule/internal/metrics"
)

// Client talks to a whisper-compatible transcription server and, when
// configured, a conversation analysis endpoint. It implements both
// Transcriber and Analyzer.
type Client struct {
	cfg  config.SpeechConfig
	http *http.Client
	log  zerolog.Logger
}

// NewClient builds a speech client. An empty ServiceURL yields a client
// whose Available() is false and whose calls return ErrUnavailable.
func NewClient(cfg config.SpeechConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 60 * time.Second},
		log:  logging.With().Str("component", "speech").Logger(),
	}
}

// Available reports whether a transcription service is configured.
func (c *Client) Available() bool {
	return c.cfg.ServiceURL != ""
}

// Transcribe converts normalized mono float32 samples to text. The samples
// are re-quantized to 16-bit PCM for the wire format.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if !c.Available() {
		return "", ErrUnavailable
	}
	return c.TranscribeWAV(ctx, float32ToWAV(samples, sampleRate))
}

// TranscribeWAV uploads a complete WAV payload and returns the recognized
// text, trimmed of surrounding whitespace.
func (c *Client) TranscribeWAV(ctx context.Context, wav []byte) (string, error) {
	if !c.Available() {
		return "", ErrUnavailable
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if c.cfg.Model != "" {
		if err := writer.WriteField("model", c.cfg.Model); err != nil {
			return "", err
		}
	}
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wav); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ServiceURL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling transcription service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription service error (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parsing transcription response: %w", err)
	}

	metrics.AudioChunksTranscribed.Inc()
	return strings.TrimSpace(result.Text), nil
}

// Analyze posts conversation text to the analysis endpoint and returns its
// structured result.
func (c *Client) Analyze(ctx context.Context, text string) (map[string]any, error) {
	if c.cfg.AnalyzeURL == "" {
		return nil, ErrUnavailable
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AnalyzeURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling analysis service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis service error (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing analysis response: %w", err)
	}
	return result, nil
}

// float32ToWAV re-quantizes normalized samples to a 16-bit mono WAV file.
func float32ToWAV(samples []float32, sampleRate int) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(s*32767)))
	}

	const bitsPerSample = 16
	byteRate := sampleRate * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
