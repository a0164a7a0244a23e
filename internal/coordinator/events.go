// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxStoredEvents bounds the in-memory event log per process.
const maxStoredEvents = 10000

// Event is one logged device event.
type Event struct {
	ID         string         `json:"id"`
	PatientUID string         `json:"patient_uid"`
	Type       string         `json:"event_type"`
	Data       map[string]any `json:"data"`
	At         time.Time      `json:"at"`
}

// validateEventPayload enforces the per-type required fields.
func validateEventPayload(eventType string, data map[string]any) error {
	switch eventType {
	case "face_detection":
		if _, ok := data["detected_faces"]; !ok {
			return fmt.Errorf("missing required keys in data: [detected_faces]")
		}
	case "conversation":
		for _, k := range []string{"transcript", "extracted_events", "mood"} {
			if _, ok := data[k]; ok {
				return nil
			}
		}
		return fmt.Errorf("conversation events require at least one of: transcript, extracted_events, mood")
	case "conversation_summary":
		if _, ok := data["summary"]; !ok {
			return fmt.Errorf("missing required keys in data: [summary]")
		}
	default:
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	return nil
}

// EventLog is a bounded in-memory store of device events.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

// NewEventLog returns an empty log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Append stores an event and returns its id.
func (l *EventLog) Append(patientUID, eventType string, data map[string]any) string {
	e := Event{
		ID:         uuid.NewString(),
		PatientUID: patientUID,
		Type:       eventType,
		Data:       data,
		At:         time.Now(),
	}
	l.mu.Lock()
	l.events = append(l.events, e)
	if len(l.events) > maxStoredEvents {
		l.events = l.events[len(l.events)-maxStoredEvents:]
	}
	l.mu.Unlock()
	return e.ID
}

// ForPatient returns the newest events for a patient, most recent last.
func (l *EventLog) ForPatient(patientUID string, limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, 0, limit)
	for _, e := range l.events {
		if e.PatientUID == patientUID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
