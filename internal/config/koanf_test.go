// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package config

import "testing"

func TestEnvTransformMapsDocumentedVariables(t *testing.T) {
	tests := []struct {
		env  string
		path string
	}{
		{"PATIENT_UID", "patient_uid"},
		{"DEMO_MODE", "demo_mode"},
		{"BACKEND_URL", "backend.url"},
		{"HTTP_PORT", "server.port"},
		{"SPEECH_SERVICE_URL", "speech.service_url"},
		{"LOG_LEVEL", "logging.level"},
	}
	for _, tc := range tests {
		if got := envTransformFunc(tc.env); got != tc.path {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tc.env, got, tc.path)
		}
	}
}

func TestEnvTransformIgnoresUnmappedVariables(t *testing.T) {
	for _, env := range []string{"AURA_PATIENT_UID", "PATH", "HOME", "RANDOM_NOISE"} {
		if got := envTransformFunc(env); got != "" {
			t.Errorf("envTransformFunc(%q) = %q, want skipped", env, got)
		}
	}
}
