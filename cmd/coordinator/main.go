// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

// Package main is the entry point for the AURA coordinator.
//
// The coordinator is the remote service the hubs register against. It
// tracks device liveness through heartbeats, stores event logs, and
// proxies caregiver identification requests to the right device behind
// a per-patient circuit breaker.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 from environment variables with
// built-in defaults:
//
//	COORDINATOR_HOST        listen host (default 0.0.0.0)
//	COORDINATOR_PORT        listen port (default 8000)
//	COORDINATOR_AUTH_TOKEN  bearer token for the authenticated endpoints
//	LOG_LEVEL, LOG_FORMAT   logging controls
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/deon-george/auramodule/internal/coordinator"
	"github.com/deon-george/auramodule/internal/logging"
	"github.com/deon-george/auramodule/internal/supervisor"
	"github.com/deon-george/auramodule/internal/supervisor/services"
)

type serverConfig struct {
	Host      string `koanf:"host"`
	Port      int    `koanf:"port"`
	AuthToken string `koanf:"auth_token"`
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

func loadConfig() (*serverConfig, error) {
	defaults := serverConfig{
		Host:      "0.0.0.0",
		Port:      8000,
		LogLevel:  "info",
		LogFormat: "console",
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(env.Provider("", ".", coordinatorEnv), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &serverConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

func coordinatorEnv(key string) string {
	mappings := map[string]string{
		"COORDINATOR_HOST":       "host",
		"COORDINATOR_PORT":       "port",
		"COORDINATOR_AUTH_TOKEN": "auth_token",
		"LOG_LEVEL":              "log_level",
		"LOG_FORMAT":             "log_format",
	}
	if mapped, ok := mappings[strings.ToUpper(key)]; ok {
		return mapped
	}
	return ""
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	if cfg.AuthToken == "" {
		logging.Warn().Msg("No auth token configured; authenticated endpoints are disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord := coordinator.New(coordinator.Config{AuthToken: cfg.AuthToken})
	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     coord.Router(),
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	tree := supervisor.NewTree(logging.Slog(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(services.NewHTTPServerService("coordinator-api", server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting coordinator")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	logging.Info().Msg("Coordinator stopped gracefully")
}
