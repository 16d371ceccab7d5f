// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

package deception

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadubey78945-spec/iot-sentinel/internal/logging"
)

//nolint:gochecknoinits // keep test output clean
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type recordingSink struct {
	mu    sync.Mutex
	calls []string
}

func (s *recordingSink) SubmitDeceptionThreat(honeypotID, attackerAddr, actionKind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, honeypotID+"|"+attackerAddr+"|"+actionKind)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestNewRegistry_DeterministicDeployment(t *testing.T) {
	r, err := NewRegistry(DefaultConfig(), nil)
	require.NoError(t, err)

	status := r.Status()
	require.Len(t, status.Honeypots, 3)

	// Consecutive addresses from the base, stable ids and names.
	assert.Equal(t, "HONEYPOT001", status.Honeypots[0].ID)
	assert.Equal(t, "192.168.1.150", status.Honeypots[0].Address)
	assert.Equal(t, "Fake Security Camera", status.Honeypots[0].Name)
	assert.Equal(t, "192.168.1.151", status.Honeypots[1].Address)
	assert.Equal(t, "192.168.1.152", status.Honeypots[2].Address)

	// Port sets rotate through the pool by index.
	assert.Equal(t, []int{8080, 8443}, status.Honeypots[0].Ports)
	assert.Equal(t, []int{8443, 2323}, status.Honeypots[1].Ports)
	assert.Equal(t, []int{2323, 8080}, status.Honeypots[2].Ports)

	require.Len(t, status.Honeytokens, 2)
	assert.Equal(t, "config_backup.zip", status.Honeytokens[0].Name)

	// A second registry built from the same config is identical.
	r2, err := NewRegistry(DefaultConfig(), nil)
	require.NoError(t, err)
	status2 := r2.Status()
	for i := range status.Honeypots {
		assert.Equal(t, status.Honeypots[i].ID, status2.Honeypots[i].ID)
		assert.Equal(t, status.Honeypots[i].Address, status2.Honeypots[i].Address)
		assert.Equal(t, status.Honeypots[i].Ports, status2.Honeypots[i].Ports)
	}
}

func TestNewRegistry_RejectsOversizedPortSet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PortsPerHoneypot = 5
	_, err := NewRegistry(cfg, nil)
	assert.Error(t, err)
}

func TestRecordInteraction_LogsAndSynthesizesThreat(t *testing.T) {
	sink := &recordingSink{}
	r, err := NewRegistry(DefaultConfig(), sink)
	require.NoError(t, err)

	require.NoError(t, r.RecordInteraction("HONEYPOT002", "10.0.0.66", "login attempt"))

	hp, err := r.Get("HONEYPOT002")
	require.NoError(t, err)
	assert.Equal(t, 1, hp.Interactions)
	require.Len(t, hp.Log, 1)
	assert.Equal(t, "10.0.0.66", hp.Log[0].AttackerAddr)
	assert.Equal(t, "login attempt", hp.Log[0].ActionKind)

	// Untouched decoys stay at zero.
	other, err := r.Get("HONEYPOT001")
	require.NoError(t, err)
	assert.Equal(t, 0, other.Interactions)

	// Exactly one threat synthesized per interaction.
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, []string{"HONEYPOT002|10.0.0.66|login attempt"}, sink.calls)

	assert.Equal(t, 1, r.Status().TotalInteractions)
}

func TestRecordInteraction_UnknownHoneypot(t *testing.T) {
	sink := &recordingSink{}
	r, err := NewRegistry(DefaultConfig(), sink)
	require.NoError(t, err)

	err = r.RecordInteraction("HONEYPOT099", "10.0.0.66", "port scan")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, sink.count(), "no threat for an unknown decoy")
}

func TestStatus_ReturnsCopies(t *testing.T) {
	r, err := NewRegistry(DefaultConfig(), nil)
	require.NoError(t, err)

	status := r.Status()
	status.Honeypots[0].Ports[0] = 1
	status.Honeypots[0].Interactions = 99

	fresh := r.Status()
	assert.Equal(t, 8080, fresh.Honeypots[0].Ports[0])
	assert.Equal(t, 0, fresh.Honeypots[0].Interactions)
}

func TestAddressAndIDs(t *testing.T) {
	r, err := NewRegistry(DefaultConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"HONEYPOT001", "HONEYPOT002", "HONEYPOT003"}, r.IDs())
	assert.Equal(t, "192.168.1.151", r.Address("HONEYPOT002"))
	assert.Empty(t, r.Address("HONEYPOT099"))
}
