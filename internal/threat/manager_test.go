// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

package threat

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
)

func createThreat(m *Manager) models.Threat {
	return m.Create(CreateParams{
		Category:   "port scan",
		Severity:   models.SeverityHigh,
		SourceAddr: "10.0.0.5",
		TargetID:   "DEV1",
		TargetAddr: "192.168.1.20",
		Confidence: 0.9,
	})
}

func TestCreate_AutoTriages(t *testing.T) {
	m := NewManager()
	created := createThreat(m)

	assert.Equal(t, models.ThreatStateTriaged, created.State)
	require.Len(t, created.History, 1)
	assert.Equal(t, models.ThreatStateDetected, created.History[0].From)
	assert.Equal(t, models.ThreatStateTriaged, created.History[0].To)
}

func TestLifecycle_HappyPath(t *testing.T) {
	m := NewManager()
	created := createThreat(m)

	claimed, err := m.Claim(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreatStateMitigating, claimed.State)

	actionID := uuid.New()
	done, err := m.CompleteMitigation(created.ID, actionID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreatStateMitigated, done.State)
	require.NotNil(t, done.ActionID)
	assert.Equal(t, actionID, *done.ActionID)

	// Every recorded transition must be legal, and none may re-enter
	// DETECTED.
	for _, tr := range done.History {
		assert.True(t, ValidTransition(tr.From, tr.To), "%s -> %s", tr.From, tr.To)
		assert.NotEqual(t, models.ThreatStateDetected, tr.To)
	}
}

func TestClaim_AtMostOnce(t *testing.T) {
	m := NewManager()
	created := createThreat(m)

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	losses := 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Claim(created.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, ErrAlreadyClaimed)
				losses++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one claimant may win")
	assert.Equal(t, racers-1, losses)
}

func TestClaim_UnknownThreat(t *testing.T) {
	m := NewManager()
	_, err := m.Claim(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRelease_ReturnsToTriaged(t *testing.T) {
	m := NewManager()
	created := createThreat(m)

	_, err := m.Claim(created.ID)
	require.NoError(t, err)
	require.NoError(t, m.Release(created.ID))

	got, err := m.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreatStateTriaged, got.State)

	// Released threats can be claimed again.
	_, err = m.Claim(created.ID)
	assert.NoError(t, err)
}

func TestCompleteMitigation_RequiresClaim(t *testing.T) {
	m := NewManager()
	created := createThreat(m)

	_, err := m.CompleteMitigation(created.ID, uuid.New())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResolve_Idempotent(t *testing.T) {
	m := NewManager()
	created := createThreat(m)

	first, changed, err := m.Resolve(created.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.ThreatStateFalsePositive, first.State)

	second, changed, err := m.Resolve(created.ID)
	require.NoError(t, err)
	assert.False(t, changed, "repeat resolve is a no-op, not an error")
	assert.Equal(t, models.ThreatStateFalsePositive, second.State)
	assert.Len(t, second.History, len(first.History), "no-op must not grow the history")
}

func TestResolve_MitigatedIsNoOp(t *testing.T) {
	m := NewManager()
	created := createThreat(m)

	_, err := m.Claim(created.ID)
	require.NoError(t, err)
	_, err = m.CompleteMitigation(created.ID, uuid.New())
	require.NoError(t, err)

	got, changed, err := m.Resolve(created.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.ThreatStateMitigated, got.State)
}

func TestResolve_DuringMitigationConflicts(t *testing.T) {
	m := NewManager()
	created := createThreat(m)

	_, err := m.Claim(created.ID)
	require.NoError(t, err)

	_, _, err = m.Resolve(created.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEscalate(t *testing.T) {
	m := NewManager()
	created := createThreat(m)

	escalated, err := m.Escalate(created.ID, models.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, models.ThreatStateEscalated, escalated.State)
	assert.Equal(t, models.SeverityCritical, escalated.Severity)

	// Escalated threats remain claimable.
	_, err = m.Claim(created.ID)
	assert.NoError(t, err)
}

func TestList_FilterAndRecentN(t *testing.T) {
	m := NewManager()
	for i := 0; i < 5; i++ {
		createThreat(m)
	}
	resolved := createThreat(m)
	_, _, err := m.Resolve(resolved.ID)
	require.NoError(t, err)

	all := m.List(Filter{})
	assert.Len(t, all, 6)

	triaged := m.List(Filter{State: models.ThreatStateTriaged})
	assert.Len(t, triaged, 5)

	recent := m.List(Filter{Limit: 3})
	require.Len(t, recent, 3)
	assert.Equal(t, resolved.ID, recent[2].ID, "recent-N keeps the newest entries")
}
