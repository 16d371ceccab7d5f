// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/vadubey78945-spec/iot-sentinel/internal/config"
	"github.com/vadubey78945-spec/iot-sentinel/internal/deception"
	"github.com/vadubey78945-spec/iot-sentinel/internal/engine"
	"github.com/vadubey78945-spec/iot-sentinel/internal/logging"
	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
)

// Event probabilities per device per sample tick.
const (
	attackProbability = 0.02
	probeProbability  = 0.01

	// bytesPerPacket approximates typical IoT payload size.
	bytesPerPacket = 50
)

// probeKinds are the honeypot interaction types the attacker simulator
// produces.
var probeKinds = []string{"port scan", "login attempt", "file access", "banner grab"}

// Sampler feeds the engine with synthetic traffic. It runs as a
// suture-supervised service in the messaging layer.
type Sampler struct {
	cfg       config.SimulationConfig
	engine    *engine.Engine
	deception *deception.Registry

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler creates a sampler. The deception registry may be nil, in
// which case no honeypot probes are simulated.
func NewSampler(cfg config.SimulationConfig, e *engine.Engine, registry *deception.Registry, seed int64) *Sampler {
	return &Sampler{
		cfg:       cfg,
		engine:    e,
		deception: registry,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Deploy generates the fleet and registers it with the engine.
func (s *Sampler) Deploy() error {
	devices, err := GenerateFleet(s.cfg.Network, s.cfg.MaxDevices, s.seed())
	if err != nil {
		return err
	}
	for _, d := range devices {
		s.engine.SubmitDiscovery(d)
	}
	logging.Info().Int("devices", len(devices)).Msg("synthetic fleet deployed")
	return nil
}

func (s *Sampler) seed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int63()
}

// Serve deploys the fleet, then emits one traffic sample per device
// every sample interval and a scan sweep every scan interval, until the
// context is canceled.
func (s *Sampler) Serve(ctx context.Context) error {
	if err := s.Deploy(); err != nil {
		return fmt.Errorf("deploy synthetic fleet: %w", err)
	}

	sampleTicker := time.NewTicker(s.cfg.SampleInterval)
	defer sampleTicker.Stop()
	scanTicker := time.NewTicker(s.cfg.ScanInterval)
	defer scanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "simulation-sampler").Msg("simulation sampler stopped")
			return ctx.Err()
		case <-sampleTicker.C:
			s.SampleOnce()
		case <-scanTicker.C:
			s.engine.TriggerScan()
		}
	}
}

// SampleOnce emits one observation per non-blocked device, with rare
// attack bursts and honeypot probes mixed in.
func (s *Sampler) SampleOnce() {
	now := time.Now().UTC()

	for _, device := range s.engine.Devices() {
		if device.Status == models.DeviceStatusBlocked {
			continue
		}

		obs := s.observationFor(device, now)
		if _, err := s.engine.SubmitObservation(obs); err != nil &&
			!errors.Is(err, engine.ErrDeviceBlocked) {
			logging.Warn().Err(err).Str("device_id", device.ID).Msg("synthetic observation rejected")
		}
	}

	s.maybeProbeHoneypot()
}

// observationFor produces one sample around the device's nominal
// traffic shape, occasionally replaced by an attack burst.
func (s *Sampler) observationFor(device models.Device, now time.Time) models.Observation {
	profile := profileFor(device.Type)

	s.mu.Lock()
	attack := s.rng.Float64() < attackProbability
	jitter := 1 + (s.rng.Float64()-0.5)*0.2 // within ±10% of nominal
	burst := 20 + s.rng.Float64()*60
	oddPort := 1024 + s.rng.Intn(60000)
	s.mu.Unlock()

	obs := models.Observation{
		Timestamp:  now,
		SourceID:   device.ID,
		SourceAddr: device.Address,
		Protocol:   "tcp",
		Port:       profile.port,
		PacketRate: profile.packetRate * jitter,
	}
	if attack {
		obs.Port = oddPort
		obs.PacketRate = profile.packetRate * burst
		obs.Suspicious = true
	}
	obs.ByteRate = obs.PacketRate * bytesPerPacket
	obs.Bytes = int64(obs.ByteRate)
	return obs
}

// maybeProbeHoneypot simulates an external attacker touching a decoy.
func (s *Sampler) maybeProbeHoneypot() {
	if s.deception == nil {
		return
	}
	ids := s.deception.IDs()
	if len(ids) == 0 {
		return
	}

	s.mu.Lock()
	probe := s.rng.Float64() < probeProbability*float64(len(ids))
	target := ids[s.rng.Intn(len(ids))]
	attacker := fmt.Sprintf("10.0.0.%d", 2+s.rng.Intn(250))
	kind := probeKinds[s.rng.Intn(len(probeKinds))]
	s.mu.Unlock()

	if !probe {
		return
	}
	if err := s.deception.RecordInteraction(target, attacker, kind); err != nil {
		logging.Warn().Err(err).Str("honeypot_id", target).Msg("simulated probe failed")
	}
}

// String names the service in supervisor logs.
func (s *Sampler) String() string {
	return "simulation-sampler"
}
