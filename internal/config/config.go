// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

// Package config provides layered configuration loading for AuraModule.
//
// Configuration is resolved in priority order: built-in defaults, then an
// optional YAML config file, then environment variables. Validation failures
// are startup failures; the device never runs with a bad backend URL or an
// out-of-range confidence threshold.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the device runtime.
type Config struct {
	Camera     CameraConfig   `koanf:"camera"`
	Audio      AudioConfig    `koanf:"audio"`
	Server     ServerConfig   `koanf:"server"`
	Backend    BackendConfig  `koanf:"backend"`
	Speech     SpeechConfig   `koanf:"speech"`
	Identify   IdentifyConfig `koanf:"identify"`
	Logging    LoggingConfig  `koanf:"logging"`
	DemoMode   bool           `koanf:"demo_mode"`
	PatientUID string         `koanf:"patient_uid" validate:"required"`
}

// CameraConfig controls the camera capture loop.
type CameraConfig struct {
	// Index is the capture device index (e.g. 0 for /dev/video0).
	Index int `koanf:"index" validate:"min=0"`

	// Device overrides the derived device path when set.
	Device string `koanf:"device"`

	Width  int `koanf:"width" validate:"min=16"`
	Height int `koanf:"height" validate:"min=16"`
	FPS    int `koanf:"fps" validate:"min=1,max=120"`
}

// AudioConfig controls microphone capture and transcript accumulation.
type AudioConfig struct {
	SampleRate int `koanf:"sample_rate" validate:"min=8000"`
	Channels   int `koanf:"channels" validate:"min=1,max=2"`

	// SummarizeInterval is how often the continuous transcript buffer is
	// flushed to the summarization callback.
	SummarizeInterval time.Duration `koanf:"summarize_interval"`
}

// ServerConfig controls the local streaming gateway.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`

	// SessionTimeout is the idle cutoff after which the reaper closes a
	// websocket session.
	SessionTimeout time.Duration `koanf:"session_timeout"`

	ShutdownGrace time.Duration `koanf:"shutdown_grace"`
}

// BackendConfig controls connectivity to the remote coordination service.
type BackendConfig struct {
	URL       string `koanf:"url" validate:"required"`
	AuthToken string `koanf:"auth_token"`

	Timeout           time.Duration `koanf:"timeout"`
	MaxRetries        int           `koanf:"max_retries" validate:"min=1"`
	RetryBaseDelay    time.Duration `koanf:"retry_base_delay"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
}

// SpeechConfig points at the speech-to-text capability.
type SpeechConfig struct {
	// ServiceURL is the transcription endpoint. Empty disables transcription;
	// the capture path then runs in degraded mode (raw audio only).
	ServiceURL string `koanf:"service_url"`
	Model      string `koanf:"model"`
	// AnalyzeURL is the conversation-analysis endpoint. Optional.
	AnalyzeURL string `koanf:"analyze_url"`
}

// IdentifyConfig controls the face identification pipeline.
type IdentifyConfig struct {
	// SidecarURL is the face detection/embedding inference endpoint.
	// Empty disables identification.
	SidecarURL string `koanf:"sidecar_url"`

	ConfidenceThreshold float64 `koanf:"confidence_threshold" validate:"min=0,max=1"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Default returns a Config with all default values applied.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Index:  0,
			Width:  640,
			Height: 480,
			FPS:    30,
		},
		Audio: AudioConfig{
			SampleRate:        16000,
			Channels:          1,
			SummarizeInterval: 600 * time.Second,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8001,
			SessionTimeout: 300 * time.Second,
			ShutdownGrace:  2 * time.Second,
		},
		Backend: BackendConfig{
			URL:               "http://localhost:8000",
			Timeout:           10 * time.Second,
			MaxRetries:        10,
			RetryBaseDelay:    5 * time.Second,
			HeartbeatInterval: 40 * time.Second,
		},
		Speech: SpeechConfig{
			Model: "base",
		},
		Identify: IdentifyConfig{
			ConfidenceThreshold: 0.4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration and returns the first problem found.
// Any error here is a startup failure.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return translateValidationError(err)
	}

	if err := validateServiceURL("backend.url", c.Backend.URL); err != nil {
		return err
	}
	if c.Speech.ServiceURL != "" {
		if err := validateServiceURL("speech.service_url", c.Speech.ServiceURL); err != nil {
			return err
		}
	}
	if c.Identify.SidecarURL != "" {
		if err := validateServiceURL("identify.sidecar_url", c.Identify.SidecarURL); err != nil {
			return err
		}
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive, got %s", c.Backend.Timeout)
	}
	if c.Backend.RetryBaseDelay <= 0 {
		return fmt.Errorf("backend.retry_base_delay must be positive, got %s", c.Backend.RetryBaseDelay)
	}
	if c.Backend.HeartbeatInterval <= 0 {
		return fmt.Errorf("backend.heartbeat_interval must be positive, got %s", c.Backend.HeartbeatInterval)
	}
	if c.Server.SessionTimeout <= 0 {
		return fmt.Errorf("server.session_timeout must be positive, got %s", c.Server.SessionTimeout)
	}
	if c.Audio.SummarizeInterval <= 0 {
		return fmt.Errorf("audio.summarize_interval must be positive, got %s", c.Audio.SummarizeInterval)
	}

	return nil
}

// validateServiceURL rejects URLs that are not absolute http(s).
func validateServiceURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: URL must use http or https scheme, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: URL missing host: %q", field, raw)
	}
	return nil
}

// BackendURL returns the backend base URL with any trailing slash removed.
func (c *Config) BackendURL() string {
	return strings.TrimRight(c.Backend.URL, "/")
}

func translateValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !asValidationErrors(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required but not set", koanfPath(fe))
	case "min", "max":
		return fmt.Errorf("%s out of range (%s=%s, got %v)", koanfPath(fe), fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Errorf("%s failed %q validation", koanfPath(fe), fe.Tag())
	}
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	v, ok := err.(validator.ValidationErrors)
	if ok {
		*target = v
	}
	return ok
}

// koanfPath renders a validator namespace like "Config.Backend.MaxRetries"
// as the user-facing "backend.max_retries" seen in config files.
func koanfPath(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:] // drop the root "Config"
	}
	for i, p := range parts {
		parts[i] = camelToSnake(p)
	}
	return strings.Join(parts, ".")
}

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
