// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package services

import (
	"context"
)

// LoopService wraps a blocking context-aware loop as a supervised
// service. It suits run-until-canceled functions like the backend
// heartbeat and the session reaper, which already follow the
// suture.Service pattern apart from the error return.
type LoopService struct {
	run  func(ctx context.Context)
	name string
}

// NewLoopService creates a supervised wrapper around a blocking loop.
// run must return promptly when its context is canceled.
func NewLoopService(name string, run func(ctx context.Context)) *LoopService {
	return &LoopService{run: run, name: name}
}

// Serve implements suture.Service.
func (s *LoopService) Serve(ctx context.Context) error {
	s.run(ctx)
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (s *LoopService) String() string {
	return s.name
}
