// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package gateway

import (
	"errors"
	"fmt"
	"image/jpeg"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/deon-george/auramodule/internal/capture"
)

// streamFrameRate paces the MJPEG feed.
const streamFrameRate = 30

// maxNoFrameWait is how many empty polls a stream tolerates before giving
// up on the camera.
const maxNoFrameWait = 100

const jpegQuality = 85

// handleVideoFeed streams the camera as multipart/x-mixed-replace JPEG
// until the client disconnects or the gateway shuts down.
func (g *Gateway) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "streaming_unsupported"})
		return
	}

	g.log.Info().Str("remote", r.RemoteAddr).Msg("video client connected")
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	noCache(w)
	w.WriteHeader(http.StatusOK)

	stop := g.registerStream()
	defer g.unregisterStream(stop)

	limiter := rate.NewLimiter(rate.Limit(streamFrameRate), 1)
	frameCount := 0
	noFrameCount := 0

	defer func() {
		g.log.Info().Str("remote", r.RemoteAddr).Int("frames", frameCount).Msg("video client disconnected")
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-stop:
			return
		default:
		}
		if g.shuttingDown.Load() {
			return
		}

		frame, err := g.camera.Frame()
		if err != nil {
			if errors.Is(err, capture.ErrNoFrame) {
				noFrameCount++
				if noFrameCount == 1 {
					g.log.Warn().Msg("no frame available for stream, waiting")
				}
				if noFrameCount >= maxNoFrameWait {
					g.log.Error().Msg("camera produced no frames, closing stream")
					return
				}
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return
		}
		if noFrameCount > 0 {
			g.log.Info().Msg("camera frames available again")
			noFrameCount = 0
		}

		if err := writeMJPEGPart(w, frame); err != nil {
			return
		}
		flusher.Flush()
		frameCount++

		if err := limiter.Wait(r.Context()); err != nil {
			return
		}
	}
}

func writeMJPEGPart(w http.ResponseWriter, frame *capture.Frame) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n"); err != nil {
		return err
	}
	if err := jpeg.Encode(w, frame.Image, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\r\n")
	return err
}

// handleSnapshot returns a single JPEG of the current frame.
func (g *Gateway) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	frame, err := g.camera.Frame()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "No frame available"})
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	noCache(w)
	if err := jpeg.Encode(w, frame.Image, &jpeg.Options{Quality: jpegQuality}); err != nil {
		g.log.Warn().Err(err).Msg("snapshot encode failed")
	}
}
