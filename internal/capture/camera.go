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

// maxConsecutiveCameraErrors is the consecutive read-failure count after
// which the capture loop self-terminates and releases the device. The
// process keeps running; callers see ErrNoFrame.
const maxConsecutiveCameraErrors = 10

// stopJoinTimeout bounds how long Stop waits for a loop to exit.
const stopJoinTimeout = 3 * time.Second

// CameraInfo describes the opened device for status endpoints.
type CameraInfo struct {
	Resolution string  `json:"resolution"`
	FPS        float64 `json:"fps"`
	Backend    string  `json:"backend"`
	Format     string  `json:"format"`
	Index      int     `json:"index"`
	DemoMode   bool    `json:"demo_mode"`
	ErrorCount int     `json:"error_count"`
}

// Camera owns the physical (or simulated) camera and the latest frame.
// One capture loop writes the frame; any number of readers copy it.
type Camera struct {
	cfg  config.CameraConfig
	demo bool
	log  zerolog.Logger

	mu         sync.Mutex
	frame      *Frame
	running    bool
	stop       chan struct{}
	done       chan struct{}
	info       CameraInfo
	errorCount int

	frameCount  int
	fps         float64
	lastFPSTime time.Time
}

// NewCamera creates a camera service. Start must be called to begin capture.
func NewCamera(cfg config.CameraConfig, demo bool) *Camera {
	return &Camera{
		cfg:  cfg,
		demo: demo,
		log:  logging.With().Str("component", "camera").Logger(),
	}
}

// Start opens the device and launches the capture loop. An unopenable
// camera is logged and leaves the service idle rather than failing the
// process.
func (c *Camera) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.log.Warn().Msg("camera already running")
		return
	}
	c.running = true
	c.errorCount = 0
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.lastFPSTime = time.Now()
	c.mu.Unlock()

	if c.demo {
		c.setInfo(CameraInfo{
			Resolution: resolutionString(c.cfg.Width, c.cfg.Height),
			FPS:        float64(c.cfg.FPS),
			Backend:    "demo",
			Format:     "simulated",
			Index:      -1,
			DemoMode:   true,
		})
		go c.captureLoop(openDemoCamera(c.cfg), "demo", true)
		c.log.Info().Msg("demo capture loop started")
		return
	}

	source, backend := c.openCamera()
	if source == nil {
		c.mu.Lock()
		c.running = false
		close(c.done)
		c.mu.Unlock()
		c.log.Error().Int("index", c.cfg.Index).Msg("failed to open camera with any backend")
		return
	}

	c.setInfo(CameraInfo{
		Resolution: resolutionString(c.cfg.Width, c.cfg.Height),
		FPS:        float64(c.cfg.FPS),
		Backend:    backend,
		Format:     "mjpeg",
		Index:      c.cfg.Index,
	})
	go c.captureLoop(source, backend, false)
	c.log.Info().Str("backend", backend).Msg("capture loop started")
}

// openCamera tries platform-appropriate backends in order.
func (c *Camera) openCamera() (FrameSource, string) {
	for _, b := range cameraBackends() {
		c.log.Info().Str("backend", b.name).Int("index", c.cfg.Index).Msg("trying camera backend")
		source, err := b.open(c.cfg)
		if err != nil {
			c.log.Warn().Err(err).Str("backend", b.name).Msg("camera backend failed")
			continue
		}
		c.log.Info().Str("backend", b.name).Msg("camera opened")
		return source, b.name
	}
	return nil, ""
}

func (c *Camera) captureLoop(source FrameSource, backend string, simulated bool) {
	defer close(c.done)
	defer func() {
		if err := source.Close(); err != nil {
			c.log.Debug().Err(err).Msg("closing capture source")
		}
	}()

	metricSource := backend
	if simulated {
		metricSource = "demo"
	}

	for {
		select {
		case <-c.stop:
			c.log.Info().Msg("capture loop ended")
			return
		default:
		}

		img, err := source.ReadFrame()
		if err != nil {
			metrics.CaptureErrors.WithLabelValues("camera").Inc()
			c.mu.Lock()
			c.errorCount++
			c.info.ErrorCount = c.errorCount
			count := c.errorCount
			c.mu.Unlock()
			if count >= maxConsecutiveCameraErrors {
				c.log.Error().Int("errors", count).Msg("too many consecutive read errors, stopping capture")
				c.mu.Lock()
				c.running = false
				c.mu.Unlock()
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		frame := &Frame{
			Image:      toRGBA(img),
			CapturedAt: time.Now(),
			Source: SourceInfo{
				Resolution: resolutionString(img.Bounds().Dx(), img.Bounds().Dy()),
				Format:     c.info.Format,
				Backend:    backend,
				Simulated:  simulated,
			},
		}

		c.mu.Lock()
		c.errorCount = 0
		c.info.ErrorCount = 0
		c.frame = frame
		c.frameCount++
		if elapsed := time.Since(c.lastFPSTime); elapsed >= time.Second {
			c.fps = float64(c.frameCount) / elapsed.Seconds()
			c.info.FPS = c.fps
			c.frameCount = 0
			c.lastFPSTime = time.Now()
		}
		c.mu.Unlock()

		metrics.FramesCaptured.WithLabelValues(metricSource).Inc()
	}
}

// Frame returns a copy of the current frame, or ErrNoFrame when the camera
// has not produced one (not opened, not started, or self-stopped).
func (c *Camera) Frame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame == nil {
		return nil, ErrNoFrame
	}
	return c.frame.Clone(), nil
}

// Running reports whether the capture loop is active.
func (c *Camera) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Info returns device metadata for status endpoints.
func (c *Camera) Info() CameraInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

func (c *Camera) setInfo(info CameraInfo) {
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
}

// Stop signals the capture loop and joins it with a bounded timeout. A loop
// that fails to exit in time is logged and abandoned; teardown proceeds.
func (c *Camera) Stop() {
	c.mu.Lock()
	if !c.running && c.done == nil {
		c.mu.Unlock()
		return
	}
	c.running = false
	stop := c.stop
	done := c.done
	c.mu.Unlock()

	if stop != nil {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(stopJoinTimeout):
			c.log.Warn().Msg("capture loop did not stop within timeout")
		}
	}
	c.log.Info().Msg("camera stopped")
}
