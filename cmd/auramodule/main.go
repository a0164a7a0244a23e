// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

// Package main is the entry point for the AuraModule device runtime.
//
// AuraModule runs on the assistive hub placed in a patient's home. It
// captures camera frames and microphone audio, identifies known
// relatives on device, streams live video to caregivers, and keeps the
// hub registered with the remote AURA coordinator.
//
// # Application Architecture
//
// The runtime initializes components in the following order:
//
//  1. Configuration: environment variables and config file (Koanf v2)
//  2. Capture: camera and continuous microphone loops
//  3. Speech: transcription and conversation-analysis clients
//  4. Identification: face detection sidecar plus relative matching
//  5. Backend: registration, heartbeat and event logging
//  6. Gateway: HTTP + WebSocket surface for caregiver apps
//
// All long-running loops are supervised by a suture tree with three
// layers (capture, connectivity, api) so a crashing capture loop does
// not take the caregiver-facing API down with it.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (config.yaml),
// built-in defaults. The only required settings are PATIENT_UID and
// BACKEND_URL.
//
// # Demo Mode
//
// With DEMO_MODE=true the runtime substitutes synthetic camera
// frames and silent audio for real hardware, which keeps the full
// pipeline exercisable on machines without a camera or microphone.
//
// # Signal Handling
//
// The runtime handles graceful shutdown on SIGINT and SIGTERM: open
// websocket sessions receive a shutdown frame, video streams are
// drained, and capture loops are joined before exit.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deon-george/auramodule/internal/backend"
	"github.com/deon-george/auramodule/internal/capture"
	"github.com/deon-george/auramodule/internal/config"
	"github.com/deon-george/auramodule/internal/gateway"
	"github.com/deon-george/auramodule/internal/identify"
	"github.com/deon-george/auramodule/internal/logging"
	"github.com/deon-george/auramodule/internal/speech"
	"github.com/deon-george/auramodule/internal/supervisor"
	"github.com/deon-george/auramodule/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("patient_uid", cfg.PatientUID).
		Str("backend_url", cfg.BackendURL()).
		Bool("demo_mode", cfg.DemoMode).
		Msg("Starting AuraModule")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === CAPTURE ===

	camera := capture.NewCamera(cfg.Camera, cfg.DemoMode)

	speechClient := speech.NewClient(cfg.Speech)
	if !speechClient.Available() {
		logging.Info().Msg("Transcription disabled (no speech service URL); audio runs in degraded mode")
	}

	// === BACKEND CONNECTIVITY ===

	client := backend.NewClient(backend.Config{
		BaseURL:        cfg.BackendURL(),
		AuthToken:      cfg.Backend.AuthToken,
		PatientUID:     cfg.PatientUID,
		Port:           cfg.Server.Port,
		Timeout:        cfg.Backend.Timeout,
		MaxRetries:     cfg.Backend.MaxRetries,
		RetryBaseDelay: cfg.Backend.RetryBaseDelay,
		Interval:       cfg.Backend.HeartbeatInterval,
	})
	client.SetReconnectCallback(func() {
		logging.Info().Msg("Backend connectivity restored")
	})

	// The burst microphone records on caregiver demand over the websocket;
	// the continuous microphone feeds the ambient transcript buffer.
	burstMic := capture.NewMicrophone(cfg.Audio, cfg.DemoMode)

	// Periodic transcript summaries are logged to the backend as
	// conversation events.
	mic := capture.NewContinuousMicrophone(cfg.Audio, cfg.DemoMode, speechClient,
		func(ctx context.Context, batch capture.SummaryBatch) {
			if batch.Text == "" {
				return
			}
			client.LogEvent(ctx, "conversation_summary", map[string]any{
				"summary":          batch.Text,
				"transcript_count": len(batch.Entries),
				"timestamp":        time.Now().UTC().Format(time.RFC3339),
			})
		})

	// === IDENTIFICATION ===

	sidecar := identify.NewSidecarClient(cfg.Identify)
	if !sidecar.Available() {
		logging.Info().Msg("Face identification disabled (no sidecar URL)")
	}
	relatives := identify.NewBackendRelativeSource(cfg.BackendURL(), cfg.Backend.Timeout)
	pipeline := identify.NewPipeline(sidecar, relatives, cfg.Identify)

	// === GATEWAY ===

	gw := gateway.New(*cfg, gateway.Deps{
		Camera:     camera,
		Microphone: burstMic,
		Identifier: pipeline,
		Transcribe: speechClient,
		Analyze:    speechClient,
		Latest:     mic.Latest(),
		Backend:    client.Status,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gw.Router(),
		ReadTimeout:  30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// === SUPERVISOR TREE ===

	tree := supervisor.NewTree(logging.Slog(), supervisor.DefaultTreeConfig())

	tree.AddCaptureService(services.NewCaptureService("camera",
		services.WrapStartStop(camera.Start, camera.Stop)))
	tree.AddCaptureService(services.NewCaptureService("ambient-microphone", mic))

	tree.AddConnectivityService(services.NewLoopService("heartbeat", client.RunHeartbeat))

	tree.AddAPIService(services.NewHTTPServerService("device-api", server, cfg.Server.ShutdownGrace))
	tree.AddAPIService(services.NewLoopService("session-reaper", gw.RunReaper))

	// Initial registration runs outside the tree; RunHeartbeat keeps the
	// registration alive afterwards.
	go func() {
		if client.Register(ctx, backend.LocalIP()) {
			logging.Info().Msg("Registered with backend")
		}
	}()

	// === SIGNAL HANDLING ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

		// Announce shutdown on open sessions before the supervisor tears
		// the HTTP server down.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		gw.Shutdown(shutdownCtx)
		shutdownCancel()
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
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

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("AuraModule stopped gracefully")
}
