// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

// Package deception maintains the decoy registry: honeypots and
// honeytokens deployed at startup. Decoys are static after deployment;
// only interaction counters and the append-only interaction log mutate.
// Every decoy contact synthesizes a threat, because no legitimate client
// has any reason to touch one.
package deception

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/vadubey78945-spec/iot-sentinel/internal/logging"
	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
)

// ErrNotFound is returned for an unknown honeypot id.
var ErrNotFound = errors.New("deception: honeypot not found")

// decoyNames are the device identities honeypots masquerade as.
var decoyNames = []string{
	"Fake Security Camera",
	"Fake Smart Lock",
	"Fake Thermostat",
	"Fake IoT Hub",
}

// ThreatSink receives the threat synthesized from a decoy interaction.
// Satisfied by the engine, which routes it into the lifecycle manager.
type ThreatSink interface {
	SubmitDeceptionThreat(honeypotID, attackerAddr, actionKind string)
}

// Config describes the decoy deployment.
type Config struct {
	// HoneypotCount is the number of decoys to deploy.
	HoneypotCount int

	// AddressBase is the first decoy address; later decoys take the
	// following addresses.
	AddressBase string

	// Ports is the candidate pool of decoy listen ports.
	Ports []int

	// PortsPerHoneypot is how many ports each decoy exposes.
	PortsPerHoneypot int

	// Honeytokens lists decoy file names.
	Honeytokens []string
}

// DefaultConfig mirrors the legacy deployment: three decoys on
// 192.168.1.150+ exposing two ports each from {8080, 8443, 2323}.
func DefaultConfig() Config {
	return Config{
		HoneypotCount:    3,
		AddressBase:      "192.168.1.150",
		Ports:            []int{8080, 8443, 2323},
		PortsPerHoneypot: 2,
		Honeytokens:      []string{"config_backup.zip", "admin_passwords.txt"},
	}
}

// Registry holds the deployed decoys.
type Registry struct {
	sink ThreatSink

	mu          sync.RWMutex
	honeypots   []models.Honeypot
	honeytokens []models.Honeytoken
	byID        map[string]int
}

// NewRegistry deploys the decoys described by cfg. Port sets are chosen
// deterministically from the candidate pool by registry index, so a
// restart with the same config redeploys identical decoys.
func NewRegistry(cfg Config, sink ThreatSink) (*Registry, error) {
	if cfg.PortsPerHoneypot > len(cfg.Ports) {
		return nil, fmt.Errorf("deception: %d ports per honeypot exceeds pool of %d",
			cfg.PortsPerHoneypot, len(cfg.Ports))
	}

	r := &Registry{
		sink: sink,
		byID: make(map[string]int),
	}

	addr, err := netip.ParseAddr(cfg.AddressBase)
	if cfg.HoneypotCount > 0 && err != nil {
		return nil, fmt.Errorf("deception: address base %q: %w", cfg.AddressBase, err)
	}

	now := time.Now().UTC()
	for i := 0; i < cfg.HoneypotCount; i++ {
		ports := make([]int, 0, cfg.PortsPerHoneypot)
		for j := 0; j < cfg.PortsPerHoneypot; j++ {
			ports = append(ports, cfg.Ports[(i+j)%len(cfg.Ports)])
		}

		hp := models.Honeypot{
			ID:         fmt.Sprintf("HONEYPOT%03d", i+1),
			Name:       decoyNames[i%len(decoyNames)],
			Address:    addr.String(),
			Ports:      ports,
			DeployedAt: now,
		}
		r.byID[hp.ID] = len(r.honeypots)
		r.honeypots = append(r.honeypots, hp)
		addr = addr.Next()
	}

	for _, name := range cfg.Honeytokens {
		r.honeytokens = append(r.honeytokens, models.Honeytoken{Name: name})
	}

	logging.Info().
		Int("honeypots", len(r.honeypots)).
		Int("honeytokens", len(r.honeytokens)).
		Msg("deception layer deployed")
	return r, nil
}

// RecordInteraction appends an entry to the honeypot's interaction log,
// increments its counter, and synthesizes a HIGH-severity threat with
// confidence 1.0 through the sink.
func (r *Registry) RecordInteraction(honeypotID, attackerAddr, actionKind string) error {
	r.mu.Lock()
	idx, ok := r.byID[honeypotID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, honeypotID)
	}

	hp := &r.honeypots[idx]
	hp.Interactions++
	hp.Log = append(hp.Log, models.Interaction{
		AttackerAddr: attackerAddr,
		ActionKind:   actionKind,
		At:           time.Now().UTC(),
	})
	r.mu.Unlock()

	logging.Warn().
		Str("honeypot_id", honeypotID).
		Str("attacker", attackerAddr).
		Str("action", actionKind).
		Msg("honeypot interaction")

	// Outside the lock: the sink fans out into the threat manager and
	// event bus, which must not nest under the registry lock.
	if r.sink != nil {
		r.sink.SubmitDeceptionThreat(honeypotID, attackerAddr, actionKind)
	}
	return nil
}

// Get returns a copy of one honeypot.
func (r *Registry) Get(honeypotID string) (models.Honeypot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[honeypotID]
	if !ok {
		return models.Honeypot{}, fmt.Errorf("%w: %s", ErrNotFound, honeypotID)
	}
	return copyHoneypot(r.honeypots[idx]), nil
}

// Address returns the decoy address for a honeypot id, "" when unknown.
func (r *Registry) Address(honeypotID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[honeypotID]
	if !ok {
		return ""
	}
	return r.honeypots[idx].Address
}

// IDs returns the deployed honeypot ids in deployment order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.honeypots))
	for i, hp := range r.honeypots {
		ids[i] = hp.ID
	}
	return ids
}

// Status returns a copy of the full deception state.
func (r *Registry) Status() models.DeceptionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := models.DeceptionStatus{
		Honeypots:   make([]models.Honeypot, 0, len(r.honeypots)),
		Honeytokens: make([]models.Honeytoken, len(r.honeytokens)),
	}
	for _, hp := range r.honeypots {
		status.Honeypots = append(status.Honeypots, copyHoneypot(hp))
		status.TotalInteractions += hp.Interactions
	}
	copy(status.Honeytokens, r.honeytokens)
	return status
}

// copyHoneypot deep-copies the slices so callers cannot mutate registry
// state through a returned value.
func copyHoneypot(hp models.Honeypot) models.Honeypot {
	out := hp
	out.Ports = append([]int(nil), hp.Ports...)
	out.Log = append([]models.Interaction(nil), hp.Log...)
	return out
}
