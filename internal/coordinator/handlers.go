// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package coordinator

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/deon-george/auramodule/internal/breaker"
	"github.com/deon-george/auramodule/internal/logging"
	"github.com/deon-george/auramodule/internal/metrics"
)

// forwardTimeout bounds an identification proxy call to the device.
const forwardTimeout = 30 * time.Second

// Config controls the coordinator service.
type Config struct {
	// AuthToken, when set, is required as a bearer token on the
	// authenticated (non-/device) endpoints.
	AuthToken string
}

// Coordinator serves the device-facing and caregiver-facing HTTP API.
type Coordinator struct {
	cfg      Config
	devices  *DeviceTable
	events   *EventLog
	breakers *breaker.Registry
	http     *http.Client
	log      zerolog.Logger
}

// New builds a coordinator with an empty device table.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		devices:  NewDeviceTable(),
		events:   NewEventLog(),
		breakers: breaker.NewRegistry(breaker.DefaultFailureThreshold, breaker.DefaultRecoveryTimeout),
		http:     &http.Client{Timeout: forwardTimeout},
		log:      logging.With().Str("component", "coordinator").Logger(),
	}
}

func (c *Coordinator) writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"detail":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func (c *Coordinator) writeError(w http.ResponseWriter, status int, detail string) {
	c.writeJSON(w, status, map[string]any{"detail": detail})
}

// requireAuth guards the caregiver-facing endpoints with the configured
// bearer token.
func (c *Coordinator) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.cfg.AuthToken == "" {
			c.writeError(w, http.StatusNotImplemented, "authenticated endpoints require a configured token")
			return
		}
		header := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" || token != c.cfg.AuthToken {
			c.writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next(w, r)
	}
}

// Router builds the coordinator's HTTP surface. Device endpoints are open
// (devices authenticate by knowing their patient uid on a trusted network);
// the mirrored endpoints without the /device prefix require the bearer
// token.
func (c *Coordinator) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Post("/device/register", c.handleRegister)
	r.Post("/device/heartbeat", c.handleHeartbeat)
	r.Post("/device/log_event", c.handleLogEvent)

	r.Post("/register", c.requireAuth(c.handleRegister))
	r.Post("/heartbeat", c.requireAuth(c.handleHeartbeat))
	r.Post("/log_event", c.requireAuth(c.handleLogEvent))

	r.Get("/discover", c.handleDiscover)
	r.Get("/module/{patient_uid}", c.handleGetModule)
	r.Patch("/module/{patient_uid}", c.handleRenameModule)
	r.Get("/circuit_breakers", c.handleBreakerList)
	r.Get("/circuit_breaker/{patient_uid}", c.handleBreakerState)
	r.Post("/identify_person", c.handleIdentifyPerson)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		c.writeJSON(w, http.StatusOK, map[string]any{"status": "alive", "devices": len(c.devices.List(""))})
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

type registerRequest struct {
	PatientUID   string            `json:"patient_uid"`
	IP           string            `json:"ip"`
	Port         int               `json:"port"`
	HardwareInfo map[string]string `json:"hardware_info"`
}

func (c *Coordinator) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PatientUID == "" || req.IP == "" {
		c.writeError(w, http.StatusBadRequest, "patient_uid and ip are required")
		return
	}
	if req.Port == 0 {
		req.Port = 8001
	}

	device := c.devices.Upsert(req.PatientUID, req.IP, req.Port, req.HardwareInfo)
	c.log.Info().Str("patient_uid", req.PatientUID).Str("ip", req.IP).Int("port", req.Port).Msg("device registered")
	c.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "registered",
		"module":  device,
		"message": fmt.Sprintf("Module registered for patient %s", req.PatientUID),
	})
}

type heartbeatRequest struct {
	PatientUID string `json:"patient_uid"`
}

func (c *Coordinator) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !c.devices.Heartbeat(req.PatientUID) {
		c.writeError(w, http.StatusNotFound,
			fmt.Sprintf("Module not found for patient %s. Please register first.", req.PatientUID))
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": "Heartbeat updated"})
}

type eventLogRequest struct {
	PatientUID string         `json:"patient_uid"`
	EventType  string         `json:"event_type"`
	Data       map[string]any `json:"data"`
}

func (c *Coordinator) handleLogEvent(w http.ResponseWriter, r *http.Request) {
	var req eventLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	if err := validateEventPayload(req.EventType, req.Data); err != nil {
		c.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := c.devices.Get(req.PatientUID); !ok {
		c.writeError(w, http.StatusNotFound,
			fmt.Sprintf("Module not found for patient %s", req.PatientUID))
		return
	}

	id := c.events.Append(req.PatientUID, req.EventType, req.Data)
	c.log.Debug().Str("patient_uid", req.PatientUID).Str("event_type", req.EventType).Msg("event logged")
	c.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "logged",
		"event_id":   id,
		"event_type": req.EventType,
	})
}

func (c *Coordinator) handleDiscover(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "online"
	}

	devices := c.devices.List(status)
	now := c.devices.now()
	modules := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		modules = append(modules, deviceJSON(d, now))
	}
	c.writeJSON(w, http.StatusOK, map[string]any{"modules": modules, "count": len(modules)})
}

func (c *Coordinator) handleGetModule(w http.ResponseWriter, r *http.Request) {
	patientUID := chi.URLParam(r, "patient_uid")
	d, ok := c.devices.Get(patientUID)
	if !ok {
		c.writeError(w, http.StatusNotFound, fmt.Sprintf("No module found for patient %s", patientUID))
		return
	}
	c.writeJSON(w, http.StatusOK, deviceJSON(d, c.devices.now()))
}

type renameRequest struct {
	Name string `json:"name"`
}

func (c *Coordinator) handleRenameModule(w http.ResponseWriter, r *http.Request) {
	patientUID := chi.URLParam(r, "patient_uid")
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		c.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !c.devices.SetName(patientUID, req.Name) {
		c.writeError(w, http.StatusNotFound, fmt.Sprintf("No module found for patient %s", patientUID))
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "name": req.Name})
}

// handleBreakerList reports the state of every breaker the registry has
// created, keyed by patient uid.
func (c *Coordinator) handleBreakerList(w http.ResponseWriter, _ *http.Request) {
	snaps := c.breakers.Snapshots()
	c.writeJSON(w, http.StatusOK, map[string]any{
		"circuit_breakers": snaps,
		"count":            len(snaps),
	})
}

func (c *Coordinator) handleBreakerState(w http.ResponseWriter, r *http.Request) {
	patientUID := chi.URLParam(r, "patient_uid")
	cb := c.breakers.Get(patientUID)
	snap := cb.Snapshot()
	c.writeJSON(w, http.StatusOK, map[string]any{
		"patient_uid":           patientUID,
		"circuit_breaker_state": snap.State,
		"failure_count":         snap.Failures,
		"failure_threshold":     snap.FailureThreshold,
		"has_cached_response":   cb.CachedResponse() != nil,
	})
}

type identifyProxyRequest struct {
	PatientUID  string `json:"patient_uid"`
	ImageBase64 string `json:"image_base64"`
}

// handleIdentifyPerson forwards an identification request to the patient's
// device, guarded by the per-patient circuit breaker. An open breaker
// serves the cached fallback when one exists, otherwise 503.
func (c *Coordinator) handleIdentifyPerson(w http.ResponseWriter, r *http.Request) {
	var req identifyProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PatientUID == "" {
		c.writeError(w, http.StatusBadRequest, "patient_uid is required")
		return
	}

	cb := c.breakers.Get(req.PatientUID)
	metrics.BreakerState.WithLabelValues(req.PatientUID).Set(breakerStateValue(cb.State()))

	if !cb.CanExecute() {
		if cached := cb.CachedResponse(); cached != nil {
			c.log.Info().Str("patient_uid", truncateUID(req.PatientUID)).Msg("serving cached identify response, circuit open")
			merged := make(map[string]any, len(cached)+2)
			for k, v := range cached {
				merged[k] = v
			}
			merged["from_cache"] = true
			merged["circuit_breaker_state"] = cb.State()
			c.writeJSON(w, http.StatusOK, merged)
			return
		}
		c.writeError(w, http.StatusServiceUnavailable,
			"AuraModule is currently unavailable (circuit open). Please try again later.")
		return
	}

	device, ok := c.devices.Get(req.PatientUID)
	if !ok {
		c.writeError(w, http.StatusNotFound,
			"No module registered for this patient. Please ensure AuraModule is running and registered.")
		return
	}
	if device.Status(c.devices.now()) != "online" {
		c.writeError(w, http.StatusServiceUnavailable,
			"AuraModule is currently offline. Please check the module connection.")
		return
	}

	payload := map[string]any{"patient_uid": req.PatientUID}
	if req.ImageBase64 != "" {
		payload["image_base64"] = req.ImageBase64
	}
	if header := r.Header.Get("Authorization"); header != "" {
		payload["auth_token"] = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}

	deviceURL := fmt.Sprintf("http://%s:%d/identify_person", device.IP, device.Port)
	body, _ := json.Marshal(payload)
	forwardReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, deviceURL, bytes.NewReader(body))
	if err != nil {
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	forwardReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(forwardReq)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			cb.RecordFailure(map[string]any{
				"success": false, "message": "Request timed out", "identified_faces": []any{},
			})
			c.log.Warn().Str("device_url", deviceURL).Msg("device identify request timed out")
			c.writeError(w, http.StatusGatewayTimeout,
				"AuraModule request timed out. The module may be processing or unresponsive.")
			return
		}
		cb.RecordFailure(map[string]any{
			"success": false, "message": "Connection failed", "identified_faces": []any{},
		})
		c.log.Warn().Err(err).Str("device_url", deviceURL).Msg("cannot reach device")
		c.writeError(w, http.StatusBadGateway,
			fmt.Sprintf("Cannot reach AuraModule at %s:%d", device.IP, device.Port))
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		cb.RecordFailure(nil)
		c.writeError(w, http.StatusBadGateway, "error reading device response")
		return
	}
	if resp.StatusCode != http.StatusOK {
		cb.RecordFailure(nil)
		c.writeError(w, resp.StatusCode, fmt.Sprintf("AuraModule returned error: %s", string(respBody)))
		return
	}

	cb.RecordSuccess()
	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		c.writeError(w, http.StatusBadGateway, "invalid device response")
		return
	}
	result["circuit_breaker_state"] = cb.State()
	c.writeJSON(w, http.StatusOK, result)
}

func deviceJSON(d Device, now time.Time) map[string]any {
	return map[string]any{
		"patient_uid":   d.PatientUID,
		"ip":            d.IP,
		"port":          d.Port,
		"status":        d.Status(now),
		"name":          d.Name,
		"hardware_info": d.HardwareInfo,
		"registered_at": d.RegisteredAt,
		"last_seen":     d.LastSeen,
	}
}

func breakerStateValue(s breaker.State) float64 {
	switch s {
	case breaker.StateOpen:
		return 1
	case breaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func truncateUID(uid string) string {
	if len(uid) <= 8 {
		return uid
	}
	return uid[:8] + "..."
}
