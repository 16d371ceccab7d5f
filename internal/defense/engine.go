// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

// Package defense decides and applies mitigations for detected threats.
// Mitigation is at-most-once per threat: concurrent responders agree on
// a single action, and the blocked-address set is first-block-wins.
package defense

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vadubey78945-spec/iot-sentinel/internal/logging"
	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
	"github.com/vadubey78945-spec/iot-sentinel/internal/threat"
)

// Config tunes the defense engine.
type Config struct {
	// MitigationThreshold is the threat confidence at or above which a
	// BLOCK rule is installed instead of a LOG-only action.
	MitigationThreshold float64

	// HostileCIDRs lists source ranges always blocked regardless of
	// confidence.
	HostileCIDRs []string
}

// DefaultConfig matches the platform's long-standing mitigation threshold.
func DefaultConfig() Config {
	return Config{MitigationThreshold: 0.6}
}

// Engine consumes threats and produces actions.
type Engine struct {
	cfg     Config
	hostile []netip.Prefix
	threats *threat.Manager

	mu       sync.Mutex
	blocked  map[string]string           // address -> reason, first block wins
	actions  []models.Action             // append-only
	inFlight map[uuid.UUID]models.Action // threat id -> its single mitigation action
}

// NewEngine creates a defense engine. Invalid CIDR entries are skipped
// with a warning; config validation catches them before this point in
// normal startup.
func NewEngine(cfg Config, threats *threat.Manager) *Engine {
	if cfg.MitigationThreshold <= 0 || cfg.MitigationThreshold > 1 {
		cfg.MitigationThreshold = DefaultConfig().MitigationThreshold
	}

	hostile := make([]netip.Prefix, 0, len(cfg.HostileCIDRs))
	for _, cidr := range cfg.HostileCIDRs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			logging.Warn().Str("cidr", cidr).Err(err).Msg("skipping unparseable hostile range")
			continue
		}
		hostile = append(hostile, prefix)
	}

	return &Engine{
		cfg:      cfg,
		hostile:  hostile,
		threats:  threats,
		blocked:  make(map[string]string),
		inFlight: make(map[uuid.UUID]models.Action),
	}
}

// Respond decides and applies the mitigation for a threat.
//
// Policy: a hostile source or confidence at or above the threshold gets a
// BLOCK rule and moves the threat to MITIGATED; anything else gets a
// LOG-only action and the threat stays TRIAGED.
//
// Respond is idempotent under concurrency: the claim on the threat admits
// one winner, and losers receive the winner's action, never a duplicate.
func (e *Engine) Respond(t models.Threat) (models.Action, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if action, ok := e.inFlight[t.ID]; ok {
		return action, nil
	}

	claimed, err := e.threats.Claim(t.ID)
	if err != nil {
		// Lost a claim race that finished before we took the engine
		// lock, or the threat is already resolved.
		if action, ok := e.inFlight[claimed.ID]; ok {
			return action, nil
		}
		return models.Action{}, fmt.Errorf("respond to %s: %w", t.ID, err)
	}

	if e.isHostile(claimed.SourceAddr) || claimed.Confidence >= e.cfg.MitigationThreshold {
		return e.blockLocked(claimed)
	}
	return e.logOnlyLocked(claimed)
}

// blockLocked installs a BLOCK rule for the threat source and completes
// the mitigation. Caller holds e.mu.
func (e *Engine) blockLocked(t models.Threat) (models.Action, error) {
	outcome := models.ActionOutcomeApplied
	if _, already := e.blocked[t.SourceAddr]; already {
		outcome = models.ActionOutcomeRedundant
	} else {
		e.blocked[t.SourceAddr] = t.Category
	}

	action := models.Action{
		ID:        uuid.New(),
		Kind:      models.ActionKindBlock,
		ThreatID:  &t.ID,
		Target:    t.SourceAddr,
		Reason:    t.Category,
		Outcome:   outcome,
		AppliedAt: time.Now().UTC(),
	}
	e.actions = append(e.actions, action)
	e.inFlight[t.ID] = action

	if _, err := e.threats.CompleteMitigation(t.ID, action.ID); err != nil {
		return action, fmt.Errorf("complete mitigation for %s: %w", t.ID, err)
	}

	logging.Info().
		Str("threat_id", t.ID.String()).
		Str("source", t.SourceAddr).
		Str("reason", t.Category).
		Msg("installed block rule")
	return action, nil
}

// logOnlyLocked records a LOG action and releases the claim so the
// threat stays TRIAGED. Caller holds e.mu.
func (e *Engine) logOnlyLocked(t models.Threat) (models.Action, error) {
	action := models.Action{
		ID:        uuid.New(),
		Kind:      models.ActionKindLog,
		ThreatID:  &t.ID,
		Target:    t.SourceAddr,
		Reason:    t.Category,
		Outcome:   models.ActionOutcomeApplied,
		AppliedAt: time.Now().UTC(),
	}
	e.actions = append(e.actions, action)

	if err := e.threats.Release(t.ID); err != nil {
		return action, fmt.Errorf("release claim on %s: %w", t.ID, err)
	}

	logging.Debug().
		Str("threat_id", t.ID.String()).
		Str("source", t.SourceAddr).
		Msg("threat below mitigation threshold, logged only")
	return action, nil
}

// BlockAddress adds an address to the blocked set with the given reason.
// First block wins; re-blocking is a no-op that reports applied=false.
// An Action is recorded either way so the audit trail shows the attempt.
func (e *Engine) BlockAddress(addr, reason string) (models.Action, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	applied := false
	outcome := models.ActionOutcomeRedundant
	if _, already := e.blocked[addr]; !already {
		e.blocked[addr] = reason
		applied = true
		outcome = models.ActionOutcomeApplied
	}

	action := models.Action{
		ID:        uuid.New(),
		Kind:      models.ActionKindBlock,
		Target:    addr,
		Reason:    reason,
		Outcome:   outcome,
		AppliedAt: time.Now().UTC(),
	}
	if applied {
		e.actions = append(e.actions, action)
	}
	return action, applied
}

// IsBlocked reports whether an address is in the blocked set.
func (e *Engine) IsBlocked(addr string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.blocked[addr]
	return ok
}

// isHostile reports whether the address falls in a configured hostile
// range. Unparseable addresses are not hostile.
func (e *Engine) isHostile(addr string) bool {
	parsed, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	for _, prefix := range e.hostile {
		if prefix.Contains(parsed) {
			return true
		}
	}
	return false
}

// Actions returns a copy of the append-only action log, oldest first.
func (e *Engine) Actions() []models.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Action, len(e.actions))
	copy(out, e.actions)
	return out
}

// Status returns a snapshot of the blocked set and action count.
func (e *Engine) Status() models.DefenseStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	blocked := make(map[string]string, len(e.blocked))
	for addr, reason := range e.blocked {
		blocked[addr] = reason
	}
	return models.DefenseStatus{
		BlockedAddresses: blocked,
		TotalActions:     len(e.actions),
	}
}
