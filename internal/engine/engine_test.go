// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

package engine

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadubey78945-spec/iot-sentinel/internal/baseline"
	"github.com/vadubey78945-spec/iot-sentinel/internal/deception"
	"github.com/vadubey78945-spec/iot-sentinel/internal/defense"
	"github.com/vadubey78945-spec/iot-sentinel/internal/detection"
	"github.com/vadubey78945-spec/iot-sentinel/internal/logging"
	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
	"github.com/vadubey78945-spec/iot-sentinel/internal/risk"
	"github.com/vadubey78945-spec/iot-sentinel/internal/threat"
)

//nolint:gochecknoinits // keep test output clean
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// recorder captures broadcast events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) BroadcastThreatDetected(models.Threat) { r.record("threat_detected") }
func (r *recorder) BroadcastThreatMitigated(models.Threat, models.Action) {
	r.record("threat_mitigated")
}
func (r *recorder) BroadcastThreatResolved(models.Threat) { r.record("threat_resolved") }
func (r *recorder) BroadcastDeviceStatus(models.Device)   { r.record("device_status") }
func (r *recorder) BroadcastHoneypotInteraction(string, string, string) {
	r.record("honeypot_interaction")
}
func (r *recorder) BroadcastSnapshot(models.Snapshot) { r.record("snapshot") }

type fixture struct {
	engine  *Engine
	threats *threat.Manager
	defense *defense.Engine
	events  *recorder
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	baselines := baseline.NewStore(baseline.DefaultConfig())
	threats := threat.NewManager()
	def := defense.NewEngine(defense.Config{
		MitigationThreshold: 0.6,
		HostileCIDRs:        []string{"10.0.0.0/24"},
	}, threats)

	e := New(cfg, Deps{
		Baselines: baselines,
		Detector:  detection.NewDetector(detection.DefaultConfig(), baselines),
		Scorer:    risk.NewScorer("v4.0.0"),
		Threats:   threats,
		Defense:   def,
	})
	events := &recorder{}
	e.SetBroadcaster(events)

	return &fixture{engine: e, threats: threats, defense: def, events: events}
}

func discoverCamera(f *fixture) models.Device {
	return f.engine.SubmitDiscovery(models.Device{
		ID:       "DEV1",
		Name:     "Lobby Camera",
		Address:  "192.168.1.20",
		Type:     "Security Camera",
		Vendor:   "Hikvision",
		Firmware: "v4.0.0",
	})
}

// steadyObservation is baseline traffic: ~100 pkt/min on port 443 at a
// fixed daytime hour, with a little jitter.
func steadyObservation(i int) models.Observation {
	return models.Observation{
		SourceID:   "DEV1",
		Protocol:   "tcp",
		Port:       443,
		PacketRate: float64(100 + i%5 - 2),
		ByteRate:   float64((100 + i%5 - 2) * 50),
		Timestamp:  time.Date(2026, 3, 10, 14, 0, i, 0, time.UTC),
	}
}

func TestSubmitObservation_SteadyTrafficStaysQuiet(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	discoverCamera(f)

	for i := 0; i < 100; i++ {
		verdict, err := f.engine.SubmitObservation(steadyObservation(i))
		require.NoError(t, err)
		assert.False(t, verdict.IsAnomaly, "observation %d flagged", i)
	}
	assert.Equal(t, 0, f.threats.Len())
}

func TestSubmitObservation_SpikeDetectedAndMitigated(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	discoverCamera(f)

	for i := 0; i < 100; i++ {
		_, err := f.engine.SubmitObservation(steadyObservation(i))
		require.NoError(t, err)
	}

	// A flood on an unfamiliar port, far outside the learned envelope.
	verdict, err := f.engine.SubmitObservation(models.Observation{
		SourceID:   "DEV1",
		Protocol:   "tcp",
		Port:       6667,
		PacketRate: 5000,
		ByteRate:   250000,
		Timestamp:  time.Date(2026, 3, 10, 14, 2, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, verdict.IsAnomaly)
	assert.Equal(t, detection.CategoryUnexpectedPort, verdict.Category)

	// One threat, already mitigated by blocking the device address.
	require.Equal(t, 1, f.threats.Len())
	threats := f.threats.List(threat.Filter{})
	assert.Equal(t, models.ThreatStateMitigated, threats[0].State)
	assert.True(t, f.defense.IsBlocked("192.168.1.20"))

	device, err := f.engine.Device("DEV1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusBlocked, device.Status)

	assert.Equal(t, 1, f.events.count("threat_detected"))
	assert.Equal(t, 1, f.events.count("threat_mitigated"))
}

func TestSubmitObservation_BlockedDeviceTrafficDropped(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	discoverCamera(f)

	_, applied, err := f.engine.Block("DEV1")
	require.NoError(t, err)
	assert.True(t, applied)

	_, err = f.engine.SubmitObservation(steadyObservation(0))
	assert.ErrorIs(t, err, ErrDeviceBlocked)
}

func TestSubmitObservation_UnknownDevice(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	_, err := f.engine.SubmitObservation(steadyObservation(0))
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestSubmitDeceptionThreat_BlocksAttacker(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	registry, err := deception.NewRegistry(deception.DefaultConfig(), f.engine)
	require.NoError(t, err)
	f.engine.SetDeception(registry)

	require.NoError(t, registry.RecordInteraction("HONEYPOT002", "203.0.113.9", "login attempt"))

	// Exactly one threat, maximum confidence, already mitigated.
	require.Equal(t, 1, f.threats.Len())
	threats := f.threats.List(threat.Filter{})
	assert.Equal(t, models.CategoryHoneypotInteraction, threats[0].Category)
	assert.Equal(t, 1.0, threats[0].Confidence)
	assert.Equal(t, models.ThreatStateMitigated, threats[0].State)
	assert.True(t, f.defense.IsBlocked("203.0.113.9"))

	snapshot := f.engine.Snapshot()
	assert.Equal(t, 1, snapshot.Deception.TotalInteractions)
	assert.Equal(t, 1, f.events.count("honeypot_interaction"))
}

func TestBlock_Idempotent(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	discoverCamera(f)

	first, applied, err := f.engine.Block("DEV1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.ActionKindBlock, first.Kind)

	_, applied, err = f.engine.Block("DEV1")
	require.NoError(t, err)
	assert.False(t, applied, "second block is a no-op")

	device, err := f.engine.Device("DEV1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusBlocked, device.Status)
	assert.Equal(t, 1, f.defense.Status().TotalActions)
}

func TestBlock_UnknownDevice(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	_, _, err := f.engine.Block("DEV99")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestResolve_FanOutOnceOnly(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	created := f.threats.Create(threat.CreateParams{
		Category:   "port scan",
		Severity:   models.SeverityLow,
		SourceAddr: "192.168.1.40",
		Confidence: 0.4,
	})

	_, changed, err := f.engine.Resolve(created.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	_, changed, err = f.engine.Resolve(created.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, 1, f.events.count("threat_resolved"))
	_, _, err = f.engine.Resolve(uuid.New())
	assert.ErrorIs(t, err, threat.ErrNotFound)
}

func TestRecentObservations_BoundedFIFO(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ObservationBuffer = 8
	f := newFixture(t, cfg)
	discoverCamera(f)

	for i := 0; i < 12; i++ {
		_, err := f.engine.SubmitObservation(steadyObservation(i))
		require.NoError(t, err)
	}

	recent := f.engine.RecentObservations()
	require.Len(t, recent, 8)
	assert.Equal(t, steadyObservation(4).PacketRate, recent[0].PacketRate,
		"oldest retained observation is the fifth submitted")
	assert.Equal(t, steadyObservation(11).Timestamp, recent[7].Timestamp)
}

func TestTriggerScan_MarksSilentDevicesOffline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OfflineAfter = time.Millisecond
	f := newFixture(t, cfg)
	discoverCamera(f)

	time.Sleep(5 * time.Millisecond)
	snapshot := f.engine.TriggerScan()

	require.Len(t, snapshot.Devices, 1)
	assert.Equal(t, models.DeviceStatusOffline, snapshot.Devices[0].Status)
	assert.Equal(t, 0, snapshot.Summary.Online)
	assert.Equal(t, 1, f.events.count("snapshot"))

	// Fresh traffic brings the device back online.
	_, err := f.engine.SubmitObservation(steadyObservation(0))
	require.NoError(t, err)
	device, err := f.engine.Device("DEV1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, device.Status)
}

func TestSnapshot_VersionMonotonic(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	v0 := f.engine.Snapshot().Version
	discoverCamera(f)
	v1 := f.engine.Snapshot().Version
	assert.Greater(t, v1, v0)

	_, err := f.engine.SubmitObservation(steadyObservation(0))
	require.NoError(t, err)
	v2 := f.engine.Snapshot().Version
	assert.Greater(t, v2, v1)

	// Reading a snapshot does not advance the version.
	assert.Equal(t, v2, f.engine.Snapshot().Version)
}

func TestSnapshot_SummaryCounts(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	discoverCamera(f)
	f.engine.SubmitDiscovery(models.Device{
		ID:       "DEV2",
		Name:     "Hall Plug",
		Address:  "192.168.1.21",
		Type:     "Smart Plug",
		Firmware: "v4.0.0",
	})

	_, _, err := f.engine.Block("DEV2")
	require.NoError(t, err)

	s := f.engine.Snapshot()
	assert.Equal(t, 2, s.Summary.Total)
	assert.Equal(t, 1, s.Summary.Online)
	assert.Equal(t, 1, s.Summary.Blocked)
}

func TestRing(t *testing.T) {
	r := newRing[int](3)
	assert.Equal(t, 0, r.len())

	r.push(1)
	r.push(2)
	assert.Equal(t, []int{1, 2}, r.items())

	r.push(3)
	r.push(4)
	assert.Equal(t, 3, r.len())
	assert.Equal(t, []int{2, 3, 4}, r.items())
}
