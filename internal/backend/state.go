// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

// Package backend maintains the device's registration with the remote
// coordination service: initial registration with exponential backoff, a
// sequential heartbeat loop with automatic re-registration, and best-effort
// event logging.
package backend

import "time"

// State is a point-in-time snapshot of backend connectivity.
type State struct {
	Registered        bool      `json:"registered"`
	Reconnecting      bool      `json:"is_reconnecting"`
	HeartbeatFailures int       `json:"heartbeat_failures"`
	LastHeartbeat     time.Time `json:"last_heartbeat"`
}
