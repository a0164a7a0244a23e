// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package capture

import (
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrNoFrame is returned when no frame has been captured yet, or the camera
// loop has stopped. Callers must treat this as a normal condition: the
// process keeps running in a no-frame state when the camera is absent.
var ErrNoFrame = errors.New("no frame available")

// SourceInfo describes where a frame came from.
type SourceInfo struct {
	Resolution string `json:"resolution"`
	Format     string `json:"format"`
	Backend    string `json:"backend"`
	Simulated  bool   `json:"simulated"`
}

// Frame is the latest decoded image plus capture metadata. The capture loop
// owns the canonical frame; readers always receive a deep copy.
type Frame struct {
	Image      *image.RGBA
	CapturedAt time.Time
	Source     SourceInfo
}

// Clone returns a deep copy of the frame. The pixel buffer is copied so the
// capture loop can overwrite its frame without racing readers.
func (f *Frame) Clone() *Frame {
	img := image.NewRGBA(f.Image.Rect)
	copy(img.Pix, f.Image.Pix)
	return &Frame{
		Image:      img,
		CapturedAt: f.CapturedAt,
		Source:     f.Source,
	}
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Image.Rect.Dx() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Image.Rect.Dy() }

// toRGBA normalizes any decoded image to RGBA. Grayscale sources (IR
// cameras) come out of the JPEG decoder as *image.Gray; the rest of the
// pipeline expects three channels.
func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x-b.Min.X, y-b.Min.Y, src.At(x, y))
		}
	}
	return dst
}

func resolutionString(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}
