// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package identify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/deon-george/auramodule/internal/logging"
)

// RelativeSource provides the registered relatives for a patient. Results
// are fetched per request, never cached, so enrollment changes take effect
// immediately.
type RelativeSource interface {
	Relatives(ctx context.Context, patientUID, authToken string) ([]Relative, error)
}

// BackendRelativeSource fetches relatives from the coordination backend.
// Calls run through a circuit breaker so a dead backend fails fast instead
// of stalling every identification request.
type BackendRelativeSource struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]Relative]
	log     zerolog.Logger
}

// NewBackendRelativeSource builds a source against the backend base URL
// (no trailing slash).
func NewBackendRelativeSource(baseURL string, timeout time.Duration) *BackendRelativeSource {
	s := &BackendRelativeSource{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     logging.With().Str("component", "relative_source").Logger(),
	}
	s.breaker = gobreaker.NewCircuitBreaker[[]Relative](gobreaker.Settings{
		Name:    "relatives-fetch",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("relatives fetch breaker state changed")
		},
	})
	return s
}

// Relatives fetches the patient's registered relatives. An open breaker
// returns gobreaker.ErrOpenState immediately.
func (s *BackendRelativeSource) Relatives(ctx context.Context, patientUID, authToken string) ([]Relative, error) {
	return s.breaker.Execute(func() ([]Relative, error) {
		return s.fetch(ctx, patientUID, authToken)
	})
}

func (s *BackendRelativeSource) fetch(ctx context.Context, patientUID, authToken string) ([]Relative, error) {
	url := fmt.Sprintf("%s/relatives/?patient_uid=%s", s.baseURL, patientUID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching relatives: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading relatives response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relatives endpoint error (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var relatives []Relative
	if err := json.Unmarshal(body, &relatives); err != nil {
		return nil, fmt.Errorf("parsing relatives response: %w", err)
	}

	// Matching assumes unit-length embeddings; enrollment data from
	// older records may not be normalized.
	for i := range relatives {
		for j, e := range relatives[i].Embeddings {
			relatives[i].Embeddings[j] = normalize(e)
		}
	}
	return relatives, nil
}
