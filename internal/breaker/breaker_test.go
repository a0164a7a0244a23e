// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package breaker

import (
	"testing"
	"time"
)

// fakeClock lets tests advance breaker time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, recovery time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := New(threshold, recovery)
	b.now = clock.now
	return b, clock
}

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(5, 30*time.Second)

	if b.State() != StateClosed {
		t.Fatalf("new breaker state = %s, want closed", b.State())
	}
	if !b.CanExecute() {
		t.Fatal("closed breaker should allow execution")
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(5, 30*time.Second)

	for i := 0; i < 4; i++ {
		b.RecordFailure(nil)
		if b.State() != StateClosed {
			t.Fatalf("after %d failures state = %s, want closed", i+1, b.State())
		}
		if !b.CanExecute() {
			t.Fatalf("breaker refused execution after only %d failures", i+1)
		}
	}

	b.RecordFailure(nil)
	if b.State() != StateOpen {
		t.Fatalf("after threshold failures state = %s, want open", b.State())
	}
	if b.CanExecute() {
		t.Fatal("open breaker should refuse execution before recovery timeout")
	}
}

func TestBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	b, clock := newTestBreaker(5, 30*time.Second)

	for i := 0; i < 5; i++ {
		b.RecordFailure(nil)
	}

	clock.advance(29 * time.Second)
	if b.CanExecute() {
		t.Fatal("breaker allowed execution 1s before recovery timeout")
	}

	clock.advance(1 * time.Second)
	if !b.CanExecute() {
		t.Fatal("breaker refused execution after recovery timeout elapsed")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state after trial admission = %s, want half-open", b.State())
	}

	// The half-open trial remains admitted until its outcome is recorded.
	if !b.CanExecute() {
		t.Fatal("half-open breaker should not refuse the in-flight trial")
	}

	// Trial failure re-opens the breaker immediately.
	b.RecordFailure(nil)
	if b.State() != StateOpen {
		t.Fatalf("state after failed trial = %s, want open", b.State())
	}
	if b.CanExecute() {
		t.Fatal("breaker should refuse execution after failed trial")
	}
}

func TestBreaker_SuccessResets(t *testing.T) {
	b, clock := newTestBreaker(5, 30*time.Second)

	for i := 0; i < 5; i++ {
		b.RecordFailure(map[string]any{"success": false})
	}
	clock.advance(30 * time.Second)
	if !b.CanExecute() {
		t.Fatal("expected half-open trial admission")
	}

	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("state after success = %s, want closed", b.State())
	}
	if got := b.Snapshot().Failures; got != 0 {
		t.Fatalf("failures after success = %d, want 0", got)
	}
	if b.CachedResponse() != nil {
		t.Fatal("cached response should be cleared on success")
	}
}

func TestBreaker_CachesFallbackPayload(t *testing.T) {
	b, _ := newTestBreaker(2, 30*time.Second)

	b.RecordFailure(map[string]any{"message": "connection failed"})
	b.RecordFailure(nil) // nil must not erase the earlier fallback

	cached := b.CachedResponse()
	if cached == nil {
		t.Fatal("expected cached fallback payload")
	}
	if cached["message"] != "connection failed" {
		t.Fatalf("cached payload = %v, want earlier fallback", cached)
	}
}

func TestRegistry_LazyPerDevice(t *testing.T) {
	r := NewRegistry(0, 0)

	a := r.Get("patient-a")
	b := r.Get("patient-b")
	if a == b {
		t.Fatal("distinct devices must get distinct breakers")
	}
	if r.Get("patient-a") != a {
		t.Fatal("repeated Get must return the same breaker")
	}

	a.RecordFailure(nil)
	if b.Snapshot().Failures != 0 {
		t.Fatal("failure on one device leaked into another device's breaker")
	}
}
