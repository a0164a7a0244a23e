// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

type mockLoop struct {
	startErr   error
	startCount atomic.Int32
	stopCount  atomic.Int32
}

func (m *mockLoop) Start() error {
	m.startCount.Add(1)
	return m.startErr
}

func (m *mockLoop) Stop() {
	m.stopCount.Add(1)
}

func TestCaptureServiceInterface(t *testing.T) {
	var _ suture.Service = (*CaptureService)(nil)
	var _ suture.Service = (*LoopService)(nil)
}

func TestCaptureServiceStartStopLifecycle(t *testing.T) {
	loop := &mockLoop{}
	svc := NewCaptureService("camera", loop)
	if svc.String() != "camera" {
		t.Errorf("name = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if loop.startCount.Load() != 1 || loop.stopCount.Load() != 1 {
		t.Errorf("start=%d stop=%d, want 1/1", loop.startCount.Load(), loop.stopCount.Load())
	}
}

func TestCaptureServiceStartFailurePropagates(t *testing.T) {
	loop := &mockLoop{startErr: errors.New("no such device")}
	svc := NewCaptureService("microphone", loop)

	err := svc.Serve(context.Background())
	if !errors.Is(err, loop.startErr) {
		t.Fatalf("Serve returned %v, want start error", err)
	}
	if loop.stopCount.Load() != 0 {
		t.Error("Stop should not run when Start fails")
	}
}

func TestWrapStartStop(t *testing.T) {
	var started, stopped atomic.Int32
	loop := WrapStartStop(func() { started.Add(1) }, func() { stopped.Add(1) })

	if err := loop.Start(); err != nil {
		t.Fatalf("Start returned %v", err)
	}
	loop.Stop()
	if started.Load() != 1 || stopped.Load() != 1 {
		t.Errorf("started=%d stopped=%d", started.Load(), stopped.Load())
	}
}

func TestLoopServiceRunsUntilCanceled(t *testing.T) {
	var entered, exited atomic.Int32
	svc := NewLoopService("heartbeat", func(ctx context.Context) {
		entered.Add(1)
		<-ctx.Done()
		exited.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if entered.Load() != 1 || exited.Load() != 1 {
		t.Errorf("entered=%d exited=%d", entered.Load(), exited.Load())
	}
}
