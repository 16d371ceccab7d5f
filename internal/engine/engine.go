// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

// Package engine composes the analysis pipeline: observations flow
// through baseline deviation, anomaly detection, risk re-scoring, threat
// creation, and automated defense, with every state change fanned out to
// event subscribers and folded into the versioned snapshot.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vadubey78945-spec/iot-sentinel/internal/baseline"
	"github.com/vadubey78945-spec/iot-sentinel/internal/deception"
	"github.com/vadubey78945-spec/iot-sentinel/internal/defense"
	"github.com/vadubey78945-spec/iot-sentinel/internal/detection"
	"github.com/vadubey78945-spec/iot-sentinel/internal/logging"
	"github.com/vadubey78945-spec/iot-sentinel/internal/metrics"
	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
	"github.com/vadubey78945-spec/iot-sentinel/internal/risk"
	"github.com/vadubey78945-spec/iot-sentinel/internal/threat"
)

var (
	// ErrDeviceNotFound is returned for operations on unknown devices.
	ErrDeviceNotFound = errors.New("engine: device not found")

	// ErrDeviceBlocked is returned when an observation arrives from a
	// blocked device; blocked traffic is dropped, not analyzed.
	ErrDeviceBlocked = errors.New("engine: device is blocked")
)

// Broadcaster receives engine events for fan-out to subscribers.
// Implementations must not block; the websocket hub satisfies this with
// bounded drop-oldest queues.
type Broadcaster interface {
	BroadcastThreatDetected(t models.Threat)
	BroadcastThreatMitigated(t models.Threat, action models.Action)
	BroadcastThreatResolved(t models.Threat)
	BroadcastDeviceStatus(d models.Device)
	BroadcastHoneypotInteraction(honeypotID, attackerAddr, actionKind string)
	BroadcastSnapshot(s models.Snapshot)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastThreatDetected(models.Threat)                 {}
func (nopBroadcaster) BroadcastThreatMitigated(models.Threat, models.Action) {}
func (nopBroadcaster) BroadcastThreatResolved(models.Threat)                 {}
func (nopBroadcaster) BroadcastDeviceStatus(models.Device)                   {}
func (nopBroadcaster) BroadcastHoneypotInteraction(string, string, string)   {}
func (nopBroadcaster) BroadcastSnapshot(models.Snapshot)                     {}

// Config tunes the engine composition.
type Config struct {
	// ObservationBuffer caps the audit ring of recent observations.
	ObservationBuffer int

	// RecentThreats is the number of threats included in a snapshot.
	RecentThreats int

	// OfflineAfter is how long a device may stay silent before a scan
	// sweep marks it OFFLINE.
	OfflineAfter time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ObservationBuffer: 512,
		RecentThreats:     10,
		OfflineAfter:      2 * time.Minute,
	}
}

// Deps are the collaborators the engine orchestrates.
type Deps struct {
	Baselines *baseline.Store
	Detector  *detection.Detector
	Scorer    *risk.Scorer
	Threats   *threat.Manager
	Defense   *defense.Engine
}

// Engine is the single owner of the device registry and the
// orchestrator of the analysis pipeline.
type Engine struct {
	cfg       Config
	baselines *baseline.Store
	detector  *detection.Detector
	scorer    *risk.Scorer
	threats   *threat.Manager
	defense   *defense.Engine
	deception *deception.Registry
	broadcast Broadcaster

	mu      sync.RWMutex
	devices map[string]*models.Device
	order   []string // discovery order
	recent  *ring[models.Observation]

	version atomic.Uint64
}

// New creates an engine. Zero-value config fields fall back to defaults.
func New(cfg Config, deps Deps) *Engine {
	def := DefaultConfig()
	if cfg.ObservationBuffer < 1 {
		cfg.ObservationBuffer = def.ObservationBuffer
	}
	if cfg.RecentThreats < 1 {
		cfg.RecentThreats = def.RecentThreats
	}
	if cfg.OfflineAfter <= 0 {
		cfg.OfflineAfter = def.OfflineAfter
	}

	return &Engine{
		cfg:       cfg,
		baselines: deps.Baselines,
		detector:  deps.Detector,
		scorer:    deps.Scorer,
		threats:   deps.Threats,
		defense:   deps.Defense,
		broadcast: nopBroadcaster{},
		devices:   make(map[string]*models.Device),
		recent:    newRing[models.Observation](cfg.ObservationBuffer),
	}
}

// SetBroadcaster wires the event fan-out. Must be called before traffic
// flows; a nil broadcaster keeps the no-op default.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	if b != nil {
		e.broadcast = b
	}
}

// SetDeception wires the decoy registry so snapshots include deception
// state. The registry's threat sink points back at this engine.
func (e *Engine) SetDeception(r *deception.Registry) {
	e.deception = r
}

// SubmitDiscovery registers a device or refreshes a known one. Devices
// are never deleted; re-discovery of a BLOCKED device does not unblock
// it. Returns a copy of the stored device.
func (e *Engine) SubmitDiscovery(d models.Device) models.Device {
	now := time.Now().UTC()

	e.mu.Lock()
	stored, known := e.devices[d.ID]
	if known {
		stored.Address = d.Address
		stored.Firmware = d.Firmware
		stored.Vulnerabilities = append([]string(nil), d.Vulnerabilities...)
		stored.LastSeenAt = now
		if stored.Status == models.DeviceStatusOffline {
			stored.Status = models.DeviceStatusOnline
		}
	} else {
		d.DiscoveredAt = now
		d.LastSeenAt = now
		if d.Status == "" {
			d.Status = models.DeviceStatusOnline
		}
		stored = &d
		e.devices[d.ID] = stored
		e.order = append(e.order, d.ID)
	}

	// Static posture score; the deviation term joins once the baseline
	// warms up.
	assessment := e.scorer.Score(stored, 0, true)
	stored.RiskScore = assessment.Score
	stored.RiskLevel = assessment.Level

	out := *stored
	total := len(e.devices)
	e.mu.Unlock()

	metrics.DevicesTracked.Set(float64(total))
	if !known {
		logging.Info().
			Str("device_id", out.ID).
			Str("type", out.Type).
			Str("risk_level", string(out.RiskLevel)).
			Msg("device discovered")
	}
	e.broadcast.BroadcastDeviceStatus(out)
	e.bumpVersion()
	return out
}

// Device returns a copy of one device.
func (e *Engine) Device(id string) (models.Device, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, ok := e.devices[id]
	if !ok {
		return models.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return *d, nil
}

// Devices returns copies of all devices in discovery order.
func (e *Engine) Devices() []models.Device {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.Device, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.devices[id])
	}
	return out
}

// SubmitObservation runs one observation through the full pipeline:
// detector verdict, baseline update, risk re-score, and, for anomalous
// verdicts, threat creation and automated response.
func (e *Engine) SubmitObservation(obs models.Observation) (detection.Verdict, error) {
	e.mu.Lock()
	device, ok := e.devices[obs.SourceID]
	if !ok {
		e.mu.Unlock()
		metrics.ObservationsFailed.WithLabelValues("unknown_device").Inc()
		return detection.Verdict{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, obs.SourceID)
	}
	if device.Status == models.DeviceStatusBlocked {
		e.mu.Unlock()
		metrics.ObservationsFailed.WithLabelValues("device_blocked").Inc()
		return detection.Verdict{}, fmt.Errorf("%w: %s", ErrDeviceBlocked, obs.SourceID)
	}

	if obs.ID == uuid.Nil {
		obs.ID = uuid.New()
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now().UTC()
	}
	if obs.SourceAddr == "" {
		obs.SourceAddr = device.Address
	}

	// Evaluate against the baseline as it was, then fold the observation
	// in; an attack burst must not become its own baseline first.
	verdict := e.detector.Evaluate(device, &obs)
	e.baselines.Observe(device.ID, baseline.Metrics{
		PacketRate: obs.PacketRate,
		ByteRate:   obs.ByteRate,
		Port:       obs.Port,
		Timestamp:  obs.Timestamp,
	})

	assessment := e.scorer.Score(device, verdict.Deviation, verdict.ColdStart)
	device.RiskScore = assessment.Score
	device.RiskLevel = assessment.Level
	device.LastSeenAt = obs.Timestamp
	cameOnline := device.Status == models.DeviceStatusOffline
	if cameOnline {
		device.Status = models.DeviceStatusOnline
	}

	e.recent.push(obs)
	deviceCopy := *device
	e.mu.Unlock()

	metrics.ObservationsIngested.Inc()
	if cameOnline {
		e.broadcast.BroadcastDeviceStatus(deviceCopy)
	}

	if verdict.IsAnomaly {
		e.raiseThreat(deviceCopy, obs, verdict)
	}

	e.bumpVersion()
	return verdict, nil
}

// raiseThreat records an anomalous verdict as a threat and hands it to
// the defense engine.
func (e *Engine) raiseThreat(device models.Device, obs models.Observation, v detection.Verdict) {
	metrics.AnomaliesDetected.WithLabelValues(v.Category).Inc()

	created := e.threats.Create(threat.CreateParams{
		Category:   v.Category,
		Severity:   detection.SeverityFor(v),
		SourceAddr: device.Address,
		TargetID:   obs.DestID,
		TargetAddr: obs.DestAddr,
		Confidence: v.Confidence,
		Context: models.DetectionContext{
			ObservationID: obs.ID,
			Deviation:     v.Deviation,
			Port:          obs.Port,
			Hour:          obs.Timestamp.Hour(),
		},
	})
	metrics.ThreatTransitions.WithLabelValues(string(created.State)).Inc()
	e.broadcast.BroadcastThreatDetected(created)

	logging.Warn().
		Str("threat_id", created.ID.String()).
		Str("device_id", device.ID).
		Str("category", v.Category).
		Float64("confidence", v.Confidence).
		Msg("anomaly detected")

	e.respond(created)
}

// SubmitDeceptionThreat implements deception.ThreatSink: any decoy
// contact becomes a maximum-confidence threat against the attacker.
func (e *Engine) SubmitDeceptionThreat(honeypotID, attackerAddr, actionKind string) {
	metrics.HoneypotInteractions.WithLabelValues(honeypotID).Inc()
	e.broadcast.BroadcastHoneypotInteraction(honeypotID, attackerAddr, actionKind)

	targetAddr := ""
	if e.deception != nil {
		targetAddr = e.deception.Address(honeypotID)
	}

	created := e.threats.Create(threat.CreateParams{
		Category:   models.CategoryHoneypotInteraction,
		Severity:   models.SeverityHigh,
		SourceAddr: attackerAddr,
		TargetID:   honeypotID,
		TargetAddr: targetAddr,
		Confidence: 1.0,
		Context:    models.DetectionContext{Detail: actionKind},
	})
	metrics.ThreatTransitions.WithLabelValues(string(created.State)).Inc()
	e.broadcast.BroadcastThreatDetected(created)

	e.respond(created)
	e.bumpVersion()
}

// respond delegates to the defense engine and fans out the result.
func (e *Engine) respond(t models.Threat) {
	action, err := e.defense.Respond(t)
	if err != nil {
		logging.Warn().Err(err).Str("threat_id", t.ID.String()).Msg("automated response failed")
		return
	}
	metrics.DefenseActions.WithLabelValues(string(action.Kind), string(action.Outcome)).Inc()

	if action.Kind != models.ActionKindBlock {
		return
	}

	mitigated, err := e.threats.Get(t.ID)
	if err == nil && mitigated.State == models.ThreatStateMitigated {
		metrics.ThreatTransitions.WithLabelValues(string(mitigated.State)).Inc()
		e.broadcast.BroadcastThreatMitigated(mitigated, action)
	}
	e.markBlockedByAddr(action.Target)
}

// markBlockedByAddr flips a fleet device to BLOCKED when its address
// lands in the blocked set. Foreign attacker addresses match nothing.
func (e *Engine) markBlockedByAddr(addr string) {
	e.mu.Lock()
	var blocked *models.Device
	for _, id := range e.order {
		d := e.devices[id]
		if d.Address == addr && d.Status != models.DeviceStatusBlocked {
			d.Status = models.DeviceStatusBlocked
			blocked = d
			break
		}
	}
	var out models.Device
	if blocked != nil {
		out = *blocked
	}
	e.mu.Unlock()

	if blocked != nil {
		e.broadcast.BroadcastDeviceStatus(out)
	}
}

// Block manually blocks a device's address. Idempotent: re-blocking an
// already-blocked device reports applied=false with no new action.
func (e *Engine) Block(deviceID string) (models.Action, bool, error) {
	e.mu.Lock()
	device, ok := e.devices[deviceID]
	if !ok {
		e.mu.Unlock()
		return models.Action{}, false, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	addr := device.Address
	e.mu.Unlock()

	action, applied := e.defense.BlockAddress(addr, "manual block")
	if applied {
		metrics.DefenseActions.WithLabelValues(string(action.Kind), string(action.Outcome)).Inc()
	}
	e.markBlockedByAddr(addr)
	e.bumpVersion()
	return action, applied, nil
}

// Resolve marks a threat as a false positive. Resolving an already
// closed threat is a no-op success.
func (e *Engine) Resolve(threatID uuid.UUID) (models.Threat, bool, error) {
	resolved, changed, err := e.threats.Resolve(threatID)
	if err != nil {
		return resolved, changed, err
	}
	if changed {
		metrics.ThreatTransitions.WithLabelValues(string(resolved.State)).Inc()
		e.broadcast.BroadcastThreatResolved(resolved)
		e.bumpVersion()
	}
	return resolved, changed, nil
}

// TriggerScan sweeps the fleet: devices silent past the offline window
// go OFFLINE, and the resulting snapshot is broadcast and returned.
func (e *Engine) TriggerScan() models.Snapshot {
	cutoff := time.Now().UTC().Add(-e.cfg.OfflineAfter)

	e.mu.Lock()
	var wentOffline []models.Device
	for _, id := range e.order {
		d := e.devices[id]
		if d.Status == models.DeviceStatusOnline && d.LastSeenAt.Before(cutoff) {
			d.Status = models.DeviceStatusOffline
			wentOffline = append(wentOffline, *d)
		}
	}
	e.mu.Unlock()

	for _, d := range wentOffline {
		e.broadcast.BroadcastDeviceStatus(d)
	}
	if len(wentOffline) > 0 {
		logging.Info().Int("offline", len(wentOffline)).Msg("scan sweep marked silent devices offline")
	}

	e.bumpVersion()
	snapshot := e.Snapshot()
	e.broadcast.BroadcastSnapshot(snapshot)
	return snapshot
}

// RecentObservations returns the audit ring contents, oldest first.
func (e *Engine) RecentObservations() []models.Observation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.recent.items()
}

// Snapshot assembles a consistent point-in-time view of engine state.
func (e *Engine) Snapshot() models.Snapshot {
	e.mu.RLock()
	devices := make([]models.Device, 0, len(e.order))
	summary := models.DeviceSummary{Total: len(e.order)}
	for _, id := range e.order {
		d := *e.devices[id]
		devices = append(devices, d)
		switch d.Status {
		case models.DeviceStatusOnline:
			summary.Online++
		case models.DeviceStatusBlocked:
			summary.Blocked++
		}
		switch d.RiskLevel {
		case models.RiskLevelCritical, models.RiskLevelHigh:
			summary.High++
		case models.RiskLevelMedium:
			summary.Medium++
		default:
			summary.Low++
		}
	}
	e.mu.RUnlock()

	s := models.Snapshot{
		Version: e.version.Load(),
		TakenAt: time.Now().UTC(),
		Summary: summary,
		Devices: devices,
		Threats: e.threats.List(threat.Filter{Limit: e.cfg.RecentThreats}),
		Actions: e.defense.Actions(),
		Defense: e.defense.Status(),
	}
	if e.deception != nil {
		s.Deception = e.deception.Status()
	}
	metrics.SnapshotVersion.Set(float64(s.Version))
	return s
}

// Threat returns a copy of one threat.
func (e *Engine) Threat(id uuid.UUID) (models.Threat, error) {
	return e.threats.Get(id)
}

// Threats lists threats, optionally filtered by state and capped to the
// most recent limit.
func (e *Engine) Threats(state models.ThreatState, limit int) []models.Threat {
	return e.threats.List(threat.Filter{State: state, Limit: limit})
}

// Actions returns the append-only defense action log.
func (e *Engine) Actions() []models.Action {
	return e.defense.Actions()
}

// DefenseStatus returns the blocked set and action count.
func (e *Engine) DefenseStatus() models.DefenseStatus {
	return e.defense.Status()
}

// DeceptionStatus returns decoy state, empty when no registry is wired.
func (e *Engine) DeceptionStatus() models.DeceptionStatus {
	if e.deception == nil {
		return models.DeceptionStatus{}
	}
	return e.deception.Status()
}

// Version returns the current snapshot version.
func (e *Engine) Version() uint64 {
	return e.version.Load()
}

func (e *Engine) bumpVersion() {
	e.version.Add(1)
}
