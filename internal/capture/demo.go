// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package capture

import (
	"image"
	"image/color"
	"image/draw"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/deon-george/auramodule/internal/config"
)

// demoCamera generates a synthetic frame with a visible wall-clock timestamp
// so the feed is demonstrably live without any hardware attached.
type demoCamera struct {
	width  int
	height int
	fps    int
	last   time.Time
}

func openDemoCamera(cfg config.CameraConfig) FrameSource {
	return &demoCamera{width: cfg.Width, height: cfg.Height, fps: cfg.FPS}
}

func (d *demoCamera) ReadFrame() (image.Image, error) {
	// Pace to the configured frame rate.
	interval := time.Second / time.Duration(d.fps)
	if elapsed := time.Since(d.last); elapsed < interval {
		time.Sleep(interval - elapsed)
	}
	d.last = time.Now()

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	draw.Draw(img, img.Rect, image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)

	// Inner panel
	panel := image.Rect(50, 50, d.width-50, d.height-50)
	draw.Draw(img, panel, image.NewUniform(color.RGBA{R: 70, G: 70, B: 70, A: 255}), image.Point{}, draw.Src)

	drawLabel(img, d.width/2-40, d.height/2-20, "DEMO MODE", color.RGBA{R: 200, G: 200, B: 200, A: 255})
	drawLabel(img, d.width/2-32, d.height/2+20, time.Now().Format("15:04:05"), color.RGBA{R: 150, G: 150, B: 150, A: 255})

	return img, nil
}

func (d *demoCamera) Close() error { return nil }

// drawLabel renders text at (x, y) using the fixed 7x13 face.
func drawLabel(img *image.RGBA, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// demoMicrophone emits silent PCM at the real-time rate, keeping the
// downstream pipeline's timing behavior intact without a device.
type demoMicrophone struct {
	sampleRate int
	channels   int
}

func openDemoMicrophone(cfg config.AudioConfig) AudioSource {
	return &demoMicrophone{sampleRate: cfg.SampleRate, channels: cfg.Channels}
}

func (m *demoMicrophone) ReadChunk(buf []byte) (int, error) {
	// Sleep for the real-time duration this many samples would take.
	samples := len(buf) / 2 / m.channels
	time.Sleep(time.Duration(samples) * time.Second / time.Duration(m.sampleRate))
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}

func (m *demoMicrophone) Close() error { return nil }
