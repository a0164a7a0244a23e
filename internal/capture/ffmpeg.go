// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"runtime"

	"github.com/deon-george/auramodule/internal/config"
)

// FrameSource produces decoded frames from a capture device.
type FrameSource interface {
	// ReadFrame blocks until the next frame is available.
	ReadFrame() (image.Image, error)
	Close() error
}

// AudioSource produces raw PCM from an input device.
type AudioSource interface {
	// ReadChunk fills buf with PCM bytes and returns the count read.
	ReadChunk(buf []byte) (int, error)
	Close() error
}

// cameraBackend is one way of opening the camera. Backends are tried in
// platform order until one succeeds, matching how capture stacks probe
// device APIs.
type cameraBackend struct {
	name string
	open func(cfg config.CameraConfig) (FrameSource, error)
}

// cameraBackends returns the platform-appropriate backend chain.
func cameraBackends() []cameraBackend {
	switch runtime.GOOS {
	case "linux":
		return []cameraBackend{
			{name: "v4l2", open: openFFmpegCamera("v4l2")},
			{name: "auto", open: openFFmpegCamera("")},
		}
	case "darwin":
		return []cameraBackend{
			{name: "avfoundation", open: openFFmpegCamera("avfoundation")},
			{name: "auto", open: openFFmpegCamera("")},
		}
	default:
		return []cameraBackend{
			{name: "auto", open: openFFmpegCamera("")},
		}
	}
}

// ffmpegCamera reads an MJPEG stream from an ffmpeg child process and
// splits it into individual JPEG frames.
type ffmpegCamera struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	buf    bytes.Buffer
}

func openFFmpegCamera(inputFormat string) func(cfg config.CameraConfig) (FrameSource, error) {
	return func(cfg config.CameraConfig) (FrameSource, error) {
		if _, err := exec.LookPath("ffmpeg"); err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}

		device := cfg.Device
		if device == "" {
			switch inputFormat {
			case "avfoundation":
				device = fmt.Sprintf("%d", cfg.Index)
			default:
				device = fmt.Sprintf("/dev/video%d", cfg.Index)
			}
		}

		args := []string{"-hide_banner", "-loglevel", "error"}
		if inputFormat != "" {
			args = append(args, "-f", inputFormat)
		}
		args = append(args,
			"-framerate", fmt.Sprintf("%d", cfg.FPS),
			"-video_size", resolutionString(cfg.Width, cfg.Height),
			"-i", device,
			"-f", "mjpeg",
			"-q:v", "5",
			"-",
		)

		cmd := exec.Command("ffmpeg", args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("starting ffmpeg for %s: %w", device, err)
		}

		return &ffmpegCamera{
			cmd:    cmd,
			stdout: stdout,
			reader: bufio.NewReaderSize(stdout, 1<<16),
		}, nil
	}
}

// jpeg start-of-image and end-of-image markers
var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// ReadFrame scans the MJPEG stream for the next complete JPEG and decodes it.
func (c *ffmpegCamera) ReadFrame() (image.Image, error) {
	chunk := make([]byte, 4096)
	for {
		if frame := c.extractFrame(); frame != nil {
			img, err := jpeg.Decode(bytes.NewReader(frame))
			if err != nil {
				return nil, fmt.Errorf("decoding mjpeg frame: %w", err)
			}
			return img, nil
		}

		n, err := c.reader.Read(chunk)
		if n > 0 {
			c.buf.Write(chunk[:n])
		}
		if err != nil {
			return nil, fmt.Errorf("reading mjpeg stream: %w", err)
		}
	}
}

// extractFrame pops one complete SOI..EOI span from the stream buffer,
// discarding any garbage before the SOI marker.
func (c *ffmpegCamera) extractFrame() []byte {
	data := c.buf.Bytes()
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		c.buf.Reset()
		return nil
	}
	end := bytes.Index(data[start:], jpegEOI)
	if end < 0 {
		if start > 0 {
			c.buf.Next(start)
		}
		return nil
	}
	end += start + len(jpegEOI)
	frame := make([]byte, end-start)
	copy(frame, data[start:end])
	c.buf.Next(end)
	return frame
}

func (c *ffmpegCamera) Close() error {
	_ = c.stdout.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	return c.cmd.Wait()
}

// ffmpegMicrophone reads raw s16le PCM from an ffmpeg child process.
type ffmpegMicrophone struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

// openFFmpegMicrophone opens the default input device at the configured
// sample rate and channel count.
func openFFmpegMicrophone(cfg config.AudioConfig) (AudioSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	var inputArgs []string
	switch runtime.GOOS {
	case "darwin":
		inputArgs = []string{"-f", "avfoundation", "-i", ":default"}
	default:
		inputArgs = []string{"-f", "alsa", "-i", "default"}
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, inputArgs...)
	args = append(args,
		"-ac", fmt.Sprintf("%d", cfg.Channels),
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-f", "s16le",
		"-",
	)

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg audio capture: %w", err)
	}

	return &ffmpegMicrophone{cmd: cmd, stdout: stdout}, nil
}

func (m *ffmpegMicrophone) ReadChunk(buf []byte) (int, error) {
	return io.ReadFull(m.stdout, buf)
}

func (m *ffmpegMicrophone) Close() error {
	_ = m.stdout.Close()
	if m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
	}
	return m.cmd.Wait()
}
