// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

// Package breaker implements the per-device circuit breaker that protects
// the coordination service from repeatedly calling an unreachable device.
//
// Each breaker tracks consecutive failures and moves through the classic
// closed/open/half-open states. A failure may carry a fallback payload;
// while the breaker refuses calls, callers can serve that cached payload
// instead of timing out against a dead device.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// DefaultFailureThreshold is the consecutive-failure count that opens a breaker.
const DefaultFailureThreshold = 5

// DefaultRecoveryTimeout is how long an open breaker refuses calls before
// allowing a half-open trial.
const DefaultRecoveryTimeout = 30 * time.Second

// Breaker guards calls to one device.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration

	failures        int
	lastFailureTime time.Time
	state           State
	cachedResponse  map[string]any

	now func() time.Time
}

// New creates a closed breaker with the given threshold and recovery timeout.
// Zero values select the defaults.
func New(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultRecoveryTimeout
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            StateClosed,
		now:              time.Now,
	}
}

// CanExecute reports whether a call may proceed. An open breaker transitions
// to half-open and admits exactly one trial call once the recovery timeout
// has elapsed since the last failure.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailureTime) >= b.recoveryTimeout {
			b.state = StateHalfOpen
			return true
		}
		return false
	default: // half-open: the trial call is already in flight
		return true
	}
}

// RecordSuccess resets the breaker to closed and drops any cached fallback.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = StateClosed
	b.cachedResponse = nil
}

// RecordFailure counts a failure, opens the breaker once the threshold is
// reached, and stores the fallback payload (if non-nil) for later refusals.
func (b *Breaker) RecordFailure(fallback map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureTime = b.now()
	if fallback != nil {
		b.cachedResponse = fallback
	}
	if b.failures >= b.failureThreshold {
		b.state = StateOpen
	}
}

// CachedResponse returns the stored fallback payload, or nil.
func (b *Breaker) CachedResponse() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cachedResponse
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot describes the breaker for status endpoints.
type Snapshot struct {
	State            State     `json:"state"`
	Failures         int       `json:"failures"`
	FailureThreshold int       `json:"failure_threshold"`
	RecoveryTimeout  float64   `json:"recovery_timeout"`
	LastFailureTime  time.Time `json:"last_failure_time"`
}

// Snapshot returns a point-in-time view of the breaker.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:            b.state,
		Failures:         b.failures,
		FailureThreshold: b.failureThreshold,
		RecoveryTimeout:  b.recoveryTimeout.Seconds(),
		LastFailureTime:  b.lastFailureTime,
	}
}
