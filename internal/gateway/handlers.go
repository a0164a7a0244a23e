// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package gateway

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	_ "image/jpeg" // frame decoders for posted images
	_ "image/png"
	"net/http"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/deon-george/auramodule/internal/identify"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"internal_error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// handleHealth reports liveness and basic service facts.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	writeJSON(w, http.StatusOK, map[string]any{
		"service":           "AURA_MODULE",
		"status":            "alive",
		"ip":                g.localIP(),
		"hostname":          hostname,
		"http_port":         g.cfg.Server.Port,
		"version":           Version,
		"camera":            g.camera.Running(),
		"mic":               g.mic.Running(),
		"connected_clients": g.sessions.count(),
	})
}

// handleStatus reports the full device status including backend
// connectivity.
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := g.camera.Info()
	status := map[string]any{
		"service": "AURA_MODULE",
		"version": Version,
		"camera": map[string]any{
			"running":    g.camera.Running(),
			"resolution": info.Resolution,
			"fps":        info.FPS,
			"backend":    info.Backend,
			"format":     info.Format,
			"demo_mode":  info.DemoMode,
		},
		"microphone":        map[string]any{"running": g.mic.Running()},
		"connected_clients": g.sessions.count(),
		"identify_ready":    g.identifier.Available(),
		"speech_ready":      g.transcribe != nil && g.transcribe.Available(),
		"backend_url":       g.cfg.BackendURL(),
	}
	if g.backend != nil {
		status["backend"] = g.backend()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleLatestTranscript returns the most recent transcription result.
func (g *Gateway) handleLatestTranscript(w http.ResponseWriter, r *http.Request) {
	text, analysis, at, ok := g.latest.Get()
	if analysis == nil {
		analysis = map[string]any{}
	}
	var ts any
	if ok {
		ts = at.Unix()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":      text,
		"timestamp": ts,
		"analysis":  analysis,
	})
}

// decodeFrameRequest reads a base64 image from the request body under the
// given key.
func decodeFrameRequest(r *http.Request, key string) (image.Image, string) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		return nil, "invalid_json"
	}
	b64, _ := fields[key].(string)
	if b64 == "" {
		return nil, "missing_image"
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "invalid_base64"
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "invalid_image"
	}
	return img, ""
}

// handleExtractFace detects faces in a posted image and returns their
// embeddings.
func (g *Gateway) handleExtractFace(w http.ResponseWriter, r *http.Request) {
	img, errCode := decodeFrameRequest(r, "image_b64")
	if errCode != "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": errCode})
		return
	}

	faces, err := g.identifier.Detect(r.Context(), img)
	if err != nil {
		if errors.Is(err, identify.ErrUnavailable) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "face_detection_unavailable"})
			return
		}
		g.log.Error().Err(err).Msg("face detection failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "face_detection_failed"})
		return
	}
	if len(faces) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no_faces_detected"})
		return
	}

	embeddings := make([][]float32, 0, len(faces))
	for _, f := range faces {
		embeddings = append(embeddings, f.Embedding)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"embeddings":     embeddings,
		"faces_detected": len(embeddings),
	})
}

// identifyRequest is the POST /identify_person payload. The image is
// optional; without it the live camera frame is used.
type identifyRequest struct {
	PatientUID  string `json:"patient_uid"`
	ImageBase64 string `json:"image_base64"`
	AuthToken   string `json:"auth_token"`
}

// handleIdentifyPerson runs the identification pipeline against a posted
// image or the live frame.
func (g *Gateway) handleIdentifyPerson(w http.ResponseWriter, r *http.Request) {
	var req identifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid_json"})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(req.AuthToken, "Bearer "), "bearer "))

	var frame image.Image
	if req.ImageBase64 == "" {
		f, err := g.camera.Frame()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "no_camera_frame"})
			return
		}
		frame = f.Image
	} else {
		raw, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid_base64"})
			return
		}
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid_image"})
			return
		}
		frame = img
	}

	result, err := g.identifier.Identify(r.Context(), frame, req.PatientUID, token)
	if err != nil {
		g.log.Error().Err(err).Msg("identification failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false, "error": "identification_failed", "message": err.Error(),
		})
		return
	}

	if result.FaceCount == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":          false,
			"error":            "no_face_detected",
			"identified_faces": []identify.Match{},
		})
		return
	}

	// A fetch failure taints every face with the same error; report the
	// partial result with an upstream status.
	for _, f := range result.Faces {
		if f.Error != "" && f.Error != "matching_error" {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"success":          false,
				"error":            "relatives_fetch_failed",
				"message":          f.Error,
				"identified_faces": result.Faces,
				"num_faces":        result.FaceCount,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"identified_faces": result.Faces,
		"num_faces":        result.FaceCount,
	})
}

// noCache sets headers that keep intermediaries from retaining media
// responses.
func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}
