// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

// Package coordinator is the remote-side gateway that devices register
// against: it tracks device liveness, accepts event logs, and proxies
// identification requests to the device behind a per-patient circuit
// breaker.
package coordinator

import (
	"sync"
	"time"
)

// staleTimeout after the last heartbeat marks a device offline.
const staleTimeout = 120 * time.Second

// Device is one registered AuraModule.
type Device struct {
	PatientUID   string            `json:"patient_uid"`
	IP           string            `json:"ip"`
	Port         int               `json:"port"`
	HardwareInfo map[string]string `json:"hardware_info,omitempty"`
	Name         string            `json:"name,omitempty"`
	RegisteredAt time.Time         `json:"registered_at"`
	LastSeen     time.Time         `json:"last_seen"`
}

// Status derives online/offline from heartbeat age.
func (d *Device) Status(now time.Time) string {
	if now.Sub(d.LastSeen) > staleTimeout {
		return "offline"
	}
	return "online"
}

// DeviceTable is an in-memory registry of devices keyed by patient uid.
type DeviceTable struct {
	mu      sync.Mutex
	devices map[string]*Device
	now     func() time.Time
}

// NewDeviceTable returns an empty table.
func NewDeviceTable() *DeviceTable {
	return &DeviceTable{
		devices: make(map[string]*Device),
		now:     time.Now,
	}
}

// Upsert registers or refreshes a device and returns a copy of the record.
func (t *DeviceTable) Upsert(patientUID, ip string, port int, hardware map[string]string) Device {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	d, ok := t.devices[patientUID]
	if !ok {
		d = &Device{PatientUID: patientUID, RegisteredAt: now}
		t.devices[patientUID] = d
	}
	d.IP = ip
	d.Port = port
	if hardware != nil {
		d.HardwareInfo = hardware
	}
	d.LastSeen = now
	return *d
}

// Heartbeat refreshes the device's liveness. Returns false for an unknown
// device.
func (t *DeviceTable) Heartbeat(patientUID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.devices[patientUID]
	if !ok {
		return false
	}
	d.LastSeen = t.now()
	return true
}

// Get returns a copy of the device record.
func (t *DeviceTable) Get(patientUID string) (Device, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.devices[patientUID]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// SetName updates a device's display name. Returns false for an unknown
// device.
func (t *DeviceTable) SetName(patientUID, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.devices[patientUID]
	if !ok {
		return false
	}
	d.Name = name
	return true
}

// List returns copies of all devices, optionally filtered by status.
func (t *DeviceTable) List(status string) []Device {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	out := make([]Device, 0, len(t.devices))
	for _, d := range t.devices {
		if status != "" && d.Status(now) != status {
			continue
		}
		out = append(out, *d)
	}
	return out
}
