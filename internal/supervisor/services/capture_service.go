// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package services

import (
	"context"
)

// CaptureLoop matches the start/stop lifecycle shared by the camera and
// the continuous microphone.
//
// Start is allowed to fail (a microphone that cannot open its device);
// Stop must be idempotent.
type CaptureLoop interface {
	Start() error
	Stop()
}

// CaptureService wraps a capture loop as a supervised service. The loop
// manages its own goroutines; this wrapper starts it, parks until the
// context is canceled, and stops it on the way out. A Start failure is
// returned to the supervisor so the restart/backoff policy applies.
type CaptureService struct {
	loop CaptureLoop
	name string
}

// NewCaptureService creates a supervised wrapper around a capture loop.
func NewCaptureService(name string, loop CaptureLoop) *CaptureService {
	return &CaptureService{loop: loop, name: name}
}

// Serve implements suture.Service.
func (s *CaptureService) Serve(ctx context.Context) error {
	if err := s.loop.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.loop.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (s *CaptureService) String() string {
	return s.name
}

// startFunc adapts a no-error Start method to CaptureLoop.
type startStopLoop struct {
	start func()
	stop  func()
}

func (l startStopLoop) Start() error {
	l.start()
	return nil
}

func (l startStopLoop) Stop() { l.stop() }

// WrapStartStop adapts a loop whose Start cannot fail (the camera, which
// degrades to an idle state instead of erroring) into a CaptureLoop.
func WrapStartStop(start, stop func()) CaptureLoop {
	return startStopLoop{start: start, stop: stop}
}
