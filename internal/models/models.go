// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

// Package models defines the shared data model for IoT Sentinel:
// devices, observations, threats, mitigation actions, decoys, and the
// versioned snapshot served to dashboard and WebSocket consumers.
package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel buckets a risk score into operator-facing severity bands.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// DeviceStatus is the operational state of a fleet device.
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "ONLINE"
	DeviceStatusOffline DeviceStatus = "OFFLINE"
	DeviceStatusBlocked DeviceStatus = "BLOCKED"
)

// Device is a discovered network-attached device. Devices are created on
// discovery and never deleted; a device leaving the fleet is retained
// with a terminal status for audit.
type Device struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Address         string       `json:"ip"`
	HardwareAddress string       `json:"mac"`
	Type            string       `json:"type"`
	Vendor          string       `json:"vendor"`
	Firmware        string       `json:"firmware"`
	Vulnerabilities []string     `json:"vulnerabilities,omitempty"`
	RiskScore       float64      `json:"risk_score"`
	RiskLevel       RiskLevel    `json:"risk_level"`
	Status          DeviceStatus `json:"status"`
	DiscoveredAt    time.Time    `json:"discovered_at"`
	LastSeenAt      time.Time    `json:"last_seen_at"`
}

// Observation is an immutable traffic record consumed by the anomaly
// detector and retained only in the bounded audit ring.
type Observation struct {
	ID          uuid.UUID `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	SourceID    string    `json:"source_id"`
	SourceAddr  string    `json:"source_addr"`
	DestID      string    `json:"dest_id,omitempty"`
	DestAddr    string    `json:"dest_addr,omitempty"`
	Protocol    string    `json:"protocol"`
	Port        int       `json:"port"`
	PacketRate  float64   `json:"packet_rate"` // packets per minute
	ByteRate    float64   `json:"byte_rate"`   // bytes per minute
	Bytes       int64     `json:"bytes"`
	Suspicious  bool      `json:"suspicious,omitempty"`
}

// Severity is the operator-facing severity of a threat.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ThreatState is a state in the threat lifecycle machine.
type ThreatState string

const (
	ThreatStateDetected      ThreatState = "DETECTED"
	ThreatStateTriaged       ThreatState = "TRIAGED"
	ThreatStateMitigating    ThreatState = "MITIGATING"
	ThreatStateMitigated     ThreatState = "MITIGATED"
	ThreatStateEscalated     ThreatState = "ESCALATED"
	ThreatStateFalsePositive ThreatState = "FALSE_POSITIVE"
)

// Terminal reports whether the state admits no further transitions
// (other than the idempotent FALSE_POSITIVE self-loop).
func (s ThreatState) Terminal() bool {
	return s == ThreatStateMitigated || s == ThreatStateFalsePositive
}

// CategoryHoneypotInteraction is the threat category synthesized by the
// deception subsystem. Any contact with a decoy is unambiguous signal.
const CategoryHoneypotInteraction = "honeypot interaction"

// DetectionContext is the immutable snapshot of detection input attached
// to a threat at creation time.
type DetectionContext struct {
	ObservationID uuid.UUID `json:"observation_id,omitempty"`
	Deviation     float64   `json:"deviation"`
	Port          int       `json:"port,omitempty"`
	Hour          int       `json:"hour"`
	Detail        string    `json:"detail,omitempty"`
}

// Transition records a single state change in a threat's history.
type Transition struct {
	From ThreatState `json:"from"`
	To   ThreatState `json:"to"`
	At   time.Time   `json:"at"`
}

// Threat is a detected security event moving through the lifecycle
// machine. Threats are never deleted; the transition history is the
// audit trail.
type Threat struct {
	ID         uuid.UUID        `json:"id"`
	Category   string           `json:"category"`
	Severity   Severity         `json:"severity"`
	SourceAddr string           `json:"source"`
	TargetID   string           `json:"target_id,omitempty"`
	TargetAddr string           `json:"target"`
	Confidence float64          `json:"confidence"`
	State      ThreatState      `json:"state"`
	Context    DetectionContext `json:"context"`
	History    []Transition     `json:"history"`
	ActionID   *uuid.UUID       `json:"action_id,omitempty"`
	DetectedAt time.Time        `json:"detected_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// ActionKind enumerates mitigation action kinds.
type ActionKind string

const (
	ActionKindBlock ActionKind = "BLOCK"
	ActionKindLog   ActionKind = "LOG"
)

// ActionOutcome is the result of applying an action.
type ActionOutcome string

const (
	ActionOutcomeApplied   ActionOutcome = "APPLIED"
	ActionOutcomeRedundant ActionOutcome = "REDUNDANT"
)

// Action is an immutable, append-only record of a mitigation applied to
// a threat or a device.
type Action struct {
	ID        uuid.UUID     `json:"id"`
	Kind      ActionKind    `json:"kind"`
	ThreatID  *uuid.UUID    `json:"threat_id,omitempty"`
	Target    string        `json:"target"`
	Reason    string        `json:"reason"`
	Outcome   ActionOutcome `json:"outcome"`
	AppliedAt time.Time     `json:"applied_at"`
}

// Interaction is one append-only entry in a honeypot's interaction log.
type Interaction struct {
	AttackerAddr string    `json:"attacker"`
	ActionKind   string    `json:"action"`
	At           time.Time `json:"at"`
}

// Honeypot is a static decoy device. Identity, address, and ports are
// assigned once at deployment and never reselected; only the interaction
// counter and log mutate, both monotonically.
type Honeypot struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Address      string        `json:"ip"`
	Ports        []int         `json:"ports"`
	DeployedAt   time.Time     `json:"deployed_at"`
	Interactions int           `json:"interactions"`
	Log          []Interaction `json:"log,omitempty"`
}

// Honeytoken is a decoy artifact (a file name whose only legitimate use
// is to be touched by an intruder).
type Honeytoken struct {
	Name         string `json:"name"`
	Interactions int    `json:"interactions"`
}

// DeceptionStatus summarizes the deception subsystem for snapshots.
type DeceptionStatus struct {
	Honeypots         []Honeypot   `json:"honeypots"`
	Honeytokens       []Honeytoken `json:"honeytokens"`
	TotalInteractions int          `json:"total_interactions"`
}

// DefenseStatus summarizes the defense engine for snapshots.
type DefenseStatus struct {
	BlockedAddresses map[string]string `json:"blocked_addresses"` // address -> reason
	TotalActions     int               `json:"total_actions"`
}

// DeviceSummary is the risk rollup across the fleet.
type DeviceSummary struct {
	Total    int `json:"total"`
	Online   int `json:"online"`
	Blocked  int `json:"blocked"`
	High     int `json:"high_risk"`
	Medium   int `json:"medium_risk"`
	Low      int `json:"low_risk"`
}

// Snapshot is a consistent point-in-time view of engine state. Version
// increases monotonically with every mutation batch, so pollers can
// detect staleness without comparing payloads.
type Snapshot struct {
	Version   uint64          `json:"version"`
	TakenAt   time.Time       `json:"taken_at"`
	Summary   DeviceSummary   `json:"summary"`
	Devices   []Device        `json:"devices"`
	Threats   []Threat        `json:"threats"`
	Actions   []Action        `json:"actions"`
	Deception DeceptionStatus `json:"deception"`
	Defense   DefenseStatus   `json:"defense"`
}
