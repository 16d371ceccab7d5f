// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

// Package threat owns the authoritative threat set and its lifecycle
// state machine:
//
//	DETECTED -> TRIAGED -> MITIGATING -> MITIGATED
//	                   \-> ESCALATED -> MITIGATING
//	DETECTED/TRIAGED/ESCALATED -> FALSE_POSITIVE (manual, idempotent)
//
// Threats never leave the store and never return to DETECTED; the
// per-threat transition history is the audit trail.
package threat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
)

var (
	// ErrNotFound is returned for an unknown threat id.
	ErrNotFound = errors.New("threat: not found")

	// ErrInvalidTransition is returned for a state-machine rule violation.
	ErrInvalidTransition = errors.New("threat: invalid transition")

	// ErrAlreadyClaimed is returned to the loser of a concurrent
	// mitigation claim.
	ErrAlreadyClaimed = errors.New("threat: already claimed")
)

// validTransitions is the full transition relation. FALSE_POSITIVE is
// handled separately because its self-loop is an idempotent no-op, not a
// transition.
var validTransitions = map[models.ThreatState][]models.ThreatState{
	models.ThreatStateDetected:   {models.ThreatStateTriaged, models.ThreatStateFalsePositive},
	models.ThreatStateTriaged:    {models.ThreatStateMitigating, models.ThreatStateEscalated, models.ThreatStateFalsePositive},
	models.ThreatStateEscalated:  {models.ThreatStateMitigating, models.ThreatStateFalsePositive},
	models.ThreatStateMitigating: {models.ThreatStateMitigated, models.ThreatStateTriaged},
}

// Manager is the single writer for threat state. All mutations happen
// under its lock, which is what makes the claim operation an atomic
// compare-and-swap.
type Manager struct {
	mu      sync.RWMutex
	threats map[uuid.UUID]*models.Threat
	order   []uuid.UUID // insertion order, oldest first
}

// NewManager creates an empty threat manager.
func NewManager() *Manager {
	return &Manager{threats: make(map[uuid.UUID]*models.Threat)}
}

// CreateParams describes a new threat.
type CreateParams struct {
	Category   string
	Severity   models.Severity
	SourceAddr string
	TargetID   string
	TargetAddr string
	Confidence float64
	Context    models.DetectionContext
}

// Create records a new threat. The threat enters DETECTED and, because
// severity and confidence are already final in the automated path, is
// triaged immediately. Returns a copy of the stored threat.
func (m *Manager) Create(p CreateParams) models.Threat {
	now := time.Now().UTC()
	t := &models.Threat{
		ID:         uuid.New(),
		Category:   p.Category,
		Severity:   p.Severity,
		SourceAddr: p.SourceAddr,
		TargetID:   p.TargetID,
		TargetAddr: p.TargetAddr,
		Confidence: p.Confidence,
		State:      models.ThreatStateDetected,
		Context:    p.Context,
		DetectedAt: now,
		UpdatedAt:  now,
	}
	t.History = append(t.History, models.Transition{From: t.State, To: models.ThreatStateTriaged, At: now})
	t.State = models.ThreatStateTriaged

	m.mu.Lock()
	defer m.mu.Unlock()
	m.threats[t.ID] = t
	m.order = append(m.order, t.ID)
	return *t
}

// Get returns a copy of a threat.
func (m *Manager) Get(id uuid.UUID) (models.Threat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.threats[id]
	if !ok {
		return models.Threat{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *t, nil
}

// Claim transitions a threat to MITIGATING, granting the caller the
// exclusive right to mitigate it. At most one concurrent caller wins;
// losers get ErrAlreadyClaimed together with a copy of the threat so
// they can return the in-flight action reference.
func (m *Manager) Claim(id uuid.UUID) (models.Threat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threats[id]
	if !ok {
		return models.Threat{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	switch t.State {
	case models.ThreatStateTriaged, models.ThreatStateEscalated:
		m.transitionLocked(t, models.ThreatStateMitigating)
		return *t, nil
	case models.ThreatStateMitigating, models.ThreatStateMitigated:
		return *t, fmt.Errorf("%w: %s is %s", ErrAlreadyClaimed, id, t.State)
	default:
		return *t, fmt.Errorf("%w: cannot claim %s threat %s", ErrInvalidTransition, t.State, id)
	}
}

// Release returns a claimed threat to TRIAGED. Used when the responder
// decides on a LOG-only action after claiming.
func (m *Manager) Release(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threats[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.State != models.ThreatStateMitigating {
		return fmt.Errorf("%w: cannot release %s threat %s", ErrInvalidTransition, t.State, id)
	}
	m.transitionLocked(t, models.ThreatStateTriaged)
	return nil
}

// CompleteMitigation moves a MITIGATING threat to MITIGATED and attaches
// the action that closed it out.
func (m *Manager) CompleteMitigation(id, actionID uuid.UUID) (models.Threat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threats[id]
	if !ok {
		return models.Threat{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.State != models.ThreatStateMitigating {
		return *t, fmt.Errorf("%w: cannot complete %s threat %s", ErrInvalidTransition, t.State, id)
	}
	aid := actionID
	t.ActionID = &aid
	m.transitionLocked(t, models.ThreatStateMitigated)
	return *t, nil
}

// Escalate upgrades a TRIAGED threat's severity and marks it ESCALATED.
func (m *Manager) Escalate(id uuid.UUID, severity models.Severity) (models.Threat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threats[id]
	if !ok {
		return models.Threat{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.State != models.ThreatStateTriaged {
		return *t, fmt.Errorf("%w: cannot escalate %s threat %s", ErrInvalidTransition, t.State, id)
	}
	t.Severity = severity
	m.transitionLocked(t, models.ThreatStateEscalated)
	return *t, nil
}

// Resolve marks a threat FALSE_POSITIVE (manual operator override).
// Resolving an already-resolved or already-mitigated threat is a no-op
// success, not an error; changed reports whether state actually moved.
func (m *Manager) Resolve(id uuid.UUID) (t models.Threat, changed bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.threats[id]
	if !ok {
		return models.Threat{}, false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	switch stored.State {
	case models.ThreatStateFalsePositive, models.ThreatStateMitigated:
		return *stored, false, nil
	case models.ThreatStateMitigating:
		// A resolve racing an in-flight mitigation is a true conflict:
		// the claim holder owns the threat until it completes.
		return *stored, false, fmt.Errorf("%w: threat %s is being mitigated", ErrInvalidTransition, id)
	default:
		m.transitionLocked(stored, models.ThreatStateFalsePositive)
		return *stored, true, nil
	}
}

// transitionLocked applies a transition and records it in the history.
// Callers hold the write lock and have already validated the move
// against validTransitions.
func (m *Manager) transitionLocked(t *models.Threat, to models.ThreatState) {
	now := time.Now().UTC()
	t.History = append(t.History, models.Transition{From: t.State, To: to, At: now})
	t.State = to
	t.UpdatedAt = now
}

// Filter narrows List results.
type Filter struct {
	// State restricts to one lifecycle state when non-empty.
	State models.ThreatState

	// Limit caps the result to the most recent N when positive.
	Limit int
}

// List returns copies of threats matching the filter, oldest first.
func (m *Manager) List(f Filter) []models.Threat {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Threat, 0, len(m.order))
	for _, id := range m.order {
		t := m.threats[id]
		if f.State != "" && t.State != f.State {
			continue
		}
		out = append(out, *t)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Len returns the total number of threats ever created.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.threats)
}

// ValidTransition reports whether from -> to is a legal move in the
// lifecycle machine. Exposed for tests asserting history validity.
func ValidTransition(from, to models.ThreatState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
