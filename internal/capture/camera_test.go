// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package capture

import (
	"errors"
	"testing"
	"time"

	"github.com/deon-george/auramodule/internal/config"
)

func testCameraConfig() config.CameraConfig {
	return config.CameraConfig{Width: 640, Height: 480, FPS: 30}
}

func TestCameraFrameBeforeStart(t *testing.T) {
	cam := NewCamera(testCameraConfig(), true)
	if _, err := cam.Frame(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame, got %v", err)
	}
}

func TestCameraDemoProducesFrames(t *testing.T) {
	cam := NewCamera(testCameraConfig(), true)
	cam.Start()
	defer cam.Stop()

	var frame *Frame
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame, err = cam.Frame()
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("no frame within deadline: %v", err)
	}
	if frame.Width() != 640 || frame.Height() != 480 {
		t.Errorf("frame size = %dx%d", frame.Width(), frame.Height())
	}
	if !frame.Source.Simulated {
		t.Error("expected simulated source")
	}

	info := cam.Info()
	if !info.DemoMode {
		t.Error("expected demo mode in info")
	}
	if info.Resolution != "640x480" {
		t.Errorf("resolution = %q", info.Resolution)
	}
}

func TestCameraFrameIsACopy(t *testing.T) {
	cam := NewCamera(testCameraConfig(), true)
	cam.Start()
	defer cam.Stop()

	var a *Frame
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a, err = cam.Frame(); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("no frame within deadline: %v", err)
	}

	// Mutating the returned frame must not affect later reads.
	for i := range a.Image.Pix {
		a.Image.Pix[i] = 0xFF
	}
	b, err := cam.Frame()
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}
	allWhite := true
	for _, p := range b.Image.Pix {
		if p != 0xFF {
			allWhite = false
			break
		}
	}
	if allWhite {
		t.Error("frame buffer shared between readers")
	}
}

func TestCameraStopIsIdempotent(t *testing.T) {
	cam := NewCamera(testCameraConfig(), true)
	cam.Start()
	cam.Stop()
	cam.Stop()
	if cam.Running() {
		t.Error("camera still running after Stop")
	}
}
