// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package breaker

import (
	"sync"
	"time"
)

// Registry owns one breaker per device identifier. Breakers are created
// lazily on first use and retained for the process lifetime. The registry
// is injectable so tests get fresh state instead of sharing a process-wide
// singleton.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker

	failureThreshold int
	recoveryTimeout  time.Duration
}

// NewRegistry creates a registry whose breakers use the given parameters.
// Zero values select the package defaults.
func NewRegistry(failureThreshold int, recoveryTimeout time.Duration) *Registry {
	return &Registry{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// Get returns the breaker for the given device, creating it if needed.
func (r *Registry) Get(deviceID string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[deviceID]
	if !ok {
		b = New(r.failureThreshold, r.recoveryTimeout)
		r.breakers[deviceID] = b
	}
	return b
}

// Snapshots returns the state of every known breaker keyed by device.
func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Snapshot, len(r.breakers))
	for id, b := range r.breakers {
		out[id] = b.Snapshot()
	}
	return out
}
