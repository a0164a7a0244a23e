// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/auramodule/config.yaml",
	"/etc/auramodule/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load resolves configuration from three layers:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
//
// The returned config is validated; an error here means the process must
// not start.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to config paths.
// Unmapped variables are skipped so random environment noise cannot
// pollute the configuration.
func envTransformFunc(key string) string {
	mappings := map[string]string{
		"PATIENT_UID": "patient_uid",
		"DEMO_MODE":   "demo_mode",

		"CAMERA_INDEX":  "camera.index",
		"CAMERA_DEVICE": "camera.device",
		"CAMERA_WIDTH":  "camera.width",
		"CAMERA_HEIGHT": "camera.height",
		"CAMERA_FPS":    "camera.fps",

		"AUDIO_SAMPLE_RATE":  "audio.sample_rate",
		"AUDIO_CHANNELS":     "audio.channels",
		"SUMMARIZE_INTERVAL": "audio.summarize_interval",

		"HTTP_HOST":       "server.host",
		"HTTP_PORT":       "server.port",
		"SESSION_TIMEOUT": "server.session_timeout",
		"SHUTDOWN_GRACE":  "server.shutdown_grace",

		"BACKEND_URL":         "backend.url",
		"BACKEND_AUTH_TOKEN":  "backend.auth_token",
		"BACKEND_TIMEOUT":     "backend.timeout",
		"BACKEND_MAX_RETRIES": "backend.max_retries",
		"BACKEND_RETRY_DELAY": "backend.retry_base_delay",
		"HEARTBEAT_INTERVAL":  "backend.heartbeat_interval",

		"SPEECH_SERVICE_URL": "speech.service_url",
		"SPEECH_MODEL":       "speech.model",
		"SPEECH_ANALYZE_URL": "speech.analyze_url",

		"IDENTIFY_SIDECAR_URL":      "identify.sidecar_url",
		"FACE_CONFIDENCE_THRESHOLD": "identify.confidence_threshold",

		"LOG_LEVEL":  "logging.level",
		"LOG_FORMAT": "logging.format",
		"LOG_CALLER": "logging.caller",
	}

	if mapped, ok := mappings[strings.ToUpper(key)]; ok {
		return mapped
	}
	return ""
}
