// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadubey78945-spec/iot-sentinel/internal/baseline"
	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
)

func newTestDetector() (*Detector, *baseline.Store) {
	store := baseline.NewStore(baseline.DefaultConfig())
	return NewDetector(DefaultConfig(), store), store
}

func obsAt(hour int, packetRate, byteRate float64, port int) *models.Observation {
	return &models.Observation{
		Timestamp:  time.Date(2026, 3, 14, hour, 15, 0, 0, time.UTC),
		SourceID:   "dev1",
		Protocol:   "TCP",
		Port:       port,
		PacketRate: packetRate,
		ByteRate:   byteRate,
	}
}

func trainStable(store *baseline.Store, n int) {
	for i := 0; i < n; i++ {
		store.Observe("dev1", baseline.Metrics{
			PacketRate: 50.0 + float64(i%5) - 2.0,
			ByteRate:   5000,
			Port:       443,
			Timestamp:  time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC),
		})
	}
}

func device() *models.Device {
	return &models.Device{ID: "dev1", Type: "Security Camera"}
}

func TestEvaluate_ColdStartNeverAnomalous(t *testing.T) {
	d, _ := newTestDetector()

	v := d.Evaluate(device(), obsAt(14, 5000, 100000, 2323))
	assert.False(t, v.IsAnomaly, "no baseline means insufficient data, not an anomaly")
	assert.True(t, v.ColdStart)
	assert.Zero(t, v.Confidence)
	assert.Equal(t, CategoryInsufficient, v.Category)
}

func TestEvaluate_StableThenSpike(t *testing.T) {
	d, store := newTestDetector()

	// 100 observations at ~50 pkt/min, then one at 500 pkt/min.
	trainStable(store, 100)

	steady := d.Evaluate(device(), obsAt(14, 50, 5000, 443))
	assert.False(t, steady.IsAnomaly, "steady traffic must not alert")

	spike := d.Evaluate(device(), obsAt(14, 500, 5000, 443))
	require.True(t, spike.IsAnomaly)
	assert.Greater(t, spike.Confidence, d.Threshold())
}

func TestEvaluate_Deterministic(t *testing.T) {
	d, store := newTestDetector()
	trainStable(store, 50)

	obs := obsAt(14, 300, 5000, 443)
	first := d.Evaluate(device(), obs)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, d.Evaluate(device(), obs))
	}
}

func TestEvaluate_CategoryPriority(t *testing.T) {
	d, store := newTestDetector()
	trainStable(store, 100)

	t.Run("off-hour wins over unexpected port", func(t *testing.T) {
		v := d.Evaluate(device(), obsAt(3, 500, 5000, 2323))
		assert.Equal(t, CategoryOffHour, v.Category)
	})

	t.Run("unexpected port wins over volume spike", func(t *testing.T) {
		v := d.Evaluate(device(), obsAt(14, 500, 50000, 2323))
		assert.Equal(t, CategoryUnexpectedPort, v.Category)
	})

	t.Run("volume spike", func(t *testing.T) {
		v := d.Evaluate(device(), obsAt(14, 500, 50000, 443))
		assert.Equal(t, CategoryVolumeSpike, v.Category)
	})

	t.Run("generic fallback", func(t *testing.T) {
		v := d.Evaluate(device(), obsAt(14, 500, 5000, 443))
		assert.Equal(t, CategoryGeneric, v.Category)
	})
}

func TestEvaluate_SuspiciousTagClearsThreshold(t *testing.T) {
	d, store := newTestDetector()
	trainStable(store, 100)

	obs := obsAt(14, 51, 5000, 443)
	obs.Suspicious = true

	v := d.Evaluate(device(), obs)
	assert.True(t, v.IsAnomaly)
	assert.Greater(t, v.Confidence, d.Threshold())
}

func TestSeverityFor_Bands(t *testing.T) {
	cases := []struct {
		confidence float64
		severity   models.Severity
	}{
		{0.81, models.SeverityLow},
		{0.86, models.SeverityMedium},
		{0.91, models.SeverityHigh},
		{0.99, models.SeverityCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.severity, SeverityFor(Verdict{Confidence: tc.confidence}))
	}
}
