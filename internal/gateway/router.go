// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the gateway's HTTP surface.
//
// Media endpoints carry permissive CORS so caregiver web apps on other
// origins can embed the stream. The identification endpoints are rate
// limited; they fan out to the inference sidecar and the backend.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	mediaCORS := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	r.Group(func(r chi.Router) {
		r.Use(mediaCORS)
		r.Get("/health", g.handleHealth)
		r.Get("/status", g.handleStatus)
		r.Get("/latest_transcript", g.handleLatestTranscript)
		r.Get("/video_feed", g.handleVideoFeed)
		r.Get("/snapshot", g.handleSnapshot)
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Post("/extract_face", g.handleExtractFace)
		r.Post("/identify_person", g.handleIdentifyPerson)
	})

	r.Get("/ws", g.HandleWS)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
