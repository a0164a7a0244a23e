// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package identify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/deon-george/auramodule/internal/config"
	"github.com/deon-george/auramodule/internal/logging"
	"github.com/deon-george/auramodule/internal/metrics"
)

// ErrUnavailable is returned when no inference sidecar is configured.
var ErrUnavailable = errors.New("face inference sidecar not configured")

// Inference is the face model capability: locate faces in a frame and
// embed aligned crops.
type Inference interface {
	// DetectFaces returns bounding boxes in frame pixel coordinates.
	DetectFaces(ctx context.Context, frame image.Image) ([]BoundingBox, error)

	// Embed produces a normalized embedding for an aligned face crop.
	Embed(ctx context.Context, crop image.Image) ([]float32, error)

	// Available reports whether the capability is configured.
	Available() bool
}

// SidecarClient calls an HTTP inference sidecar that runs the face
// detection and embedding models off-process.
type SidecarClient struct {
	url  string
	http *http.Client
	log  zerolog.Logger
}

// NewSidecarClient builds a client for the configured sidecar. An empty URL
// yields an unavailable client.
func NewSidecarClient(cfg config.IdentifyConfig) *SidecarClient {
	return &SidecarClient{
		url:  cfg.SidecarURL,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  logging.With().Str("component", "face_inference").Logger(),
	}
}

// Available reports whether a sidecar is configured.
func (c *SidecarClient) Available() bool { return c.url != "" }

// DetectFaces posts the frame as JPEG to /detect and parses the returned
// boxes.
func (c *SidecarClient) DetectFaces(ctx context.Context, frame image.Image) ([]BoundingBox, error) {
	var parsed struct {
		Faces []struct {
			X      int `json:"x"`
			Y      int `json:"y"`
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"faces"`
	}
	if err := c.postJPEG(ctx, "/detect", frame, &parsed); err != nil {
		return nil, err
	}

	boxes := make([]BoundingBox, 0, len(parsed.Faces))
	for _, f := range parsed.Faces {
		boxes = append(boxes, BoundingBox{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height})
	}
	metrics.FacesDetected.Add(float64(len(boxes)))
	return boxes, nil
}

// Embed posts an aligned crop to /embed and returns the normalized vector.
func (c *SidecarClient) Embed(ctx context.Context, crop image.Image) ([]float32, error) {
	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := c.postJPEG(ctx, "/embed", crop, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Embedding) != EmbeddingDim {
		return nil, fmt.Errorf("sidecar returned %d-dim embedding, want %d", len(parsed.Embedding), EmbeddingDim)
	}
	return normalize(parsed.Embedding), nil
}

func (c *SidecarClient) postJPEG(ctx context.Context, path string, img image.Image, out any) error {
	if !c.Available() {
		return ErrUnavailable
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling inference sidecar: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("reading sidecar response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference sidecar error (HTTP %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing sidecar response: %w", err)
	}
	return nil
}
