// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
)

func testDevice(deviceType, firmware string, vulns []string) *models.Device {
	return &models.Device{
		ID:              "DEV1",
		Type:            deviceType,
		Firmware:        firmware,
		Vulnerabilities: vulns,
	}
}

func TestScore_Deterministic(t *testing.T) {
	scorer := NewScorer("v4.0.0")
	device := testDevice("Security Camera", "v2.3", []string{"Old Firmware", "Open Port"})

	first := scorer.Score(device, 3.5, false)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, scorer.Score(device, 3.5, false),
			"identical inputs must produce identical assessments")
	}
}

func TestScore_Bounded(t *testing.T) {
	scorer := NewScorer("v4.0.0")

	cases := []struct {
		name      string
		device    *models.Device
		deviation float64
	}{
		{"benign", testDevice("Smart Plug", "v4.0", nil), 0},
		{"worst case", testDevice("Smart Lock", "v1.0", []string{"a", "b", "c", "d", "e"}), 1000},
		{"garbage firmware", testDevice("Security Camera", "???", []string{"x"}), 50},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := scorer.Score(tc.device, tc.deviation, false)
			assert.GreaterOrEqual(t, a.Score, 0.0)
			assert.LessOrEqual(t, a.Score, 1.0)
		})
	}
}

func TestScore_TypeSensitivity(t *testing.T) {
	scorer := NewScorer("v4.0.0")

	camera := scorer.Score(testDevice("Security Camera", "v4.0", nil), 0, true)
	thermostat := scorer.Score(testDevice("Thermostat", "v4.0", nil), 0, true)
	plug := scorer.Score(testDevice("Smart Plug", "v4.0", nil), 0, true)

	assert.InDelta(t, 0.3, camera.Factors.DeviceType, 1e-9)
	assert.InDelta(t, 0.2, thermostat.Factors.DeviceType, 1e-9)
	assert.InDelta(t, 0.1, plug.Factors.DeviceType, 1e-9)
}

func TestScore_FirmwareSemverOrdering(t *testing.T) {
	scorer := NewScorer("v10.0.0")

	// Lexicographically "v9.0" > "v10.0.0" but semantically it is one
	// major behind; the penalty must follow semantic ordering.
	behind := scorer.Score(testDevice("Smart Plug", "v9.0", nil), 0, true)
	current := scorer.Score(testDevice("Smart Plug", "v10.0.0", nil), 0, true)

	assert.Greater(t, behind.Factors.FirmwareAge, 0.0)
	assert.Zero(t, current.Factors.FirmwareAge)
}

func TestScore_FirmwarePenaltyCapped(t *testing.T) {
	scorer := NewScorer("v4.0.0")

	ancient := scorer.Score(testDevice("Smart Plug", "v1.0", nil), 0, true)
	assert.InDelta(t, maxFirmwarePenalty, ancient.Factors.FirmwareAge, 1e-9)

	unparseable := scorer.Score(testDevice("Smart Plug", "not-a-version", nil), 0, true)
	assert.InDelta(t, maxFirmwarePenalty, unparseable.Factors.FirmwareAge, 1e-9)
}

func TestScore_VulnerabilityPenaltyCapped(t *testing.T) {
	scorer := NewScorer("v4.0.0")

	two := scorer.Score(testDevice("Smart Plug", "v4.0", []string{"a", "b"}), 0, true)
	assert.InDelta(t, 0.30, two.Factors.Vulnerabilities, 1e-9)

	ten := scorer.Score(testDevice("Smart Plug", "v4.0", make([]string, 10)), 0, true)
	assert.InDelta(t, maxVulnerabilityPenalty, ten.Factors.Vulnerabilities, 1e-9)
}

func TestScore_DeviationMonotonicAndSaturating(t *testing.T) {
	scorer := NewScorer("v4.0.0")
	device := testDevice("Smart Plug", "v4.0", nil)

	prev := scorer.Score(device, 0, false).Factors.Deviation
	for _, d := range []float64{0.5, 1, 2, 4, 8, 16, 64} {
		cur := scorer.Score(device, d, false).Factors.Deviation
		assert.GreaterOrEqual(t, cur, prev, "deviation term must be monotonic")
		assert.LessOrEqual(t, cur, maxDeviationTerm)
		prev = cur
	}

	coldStart := scorer.Score(device, 100, true)
	assert.Zero(t, coldStart.Factors.Deviation, "cold start contributes no deviation term")
}

func TestLevelFor_Thresholds(t *testing.T) {
	cases := []struct {
		score float64
		level models.RiskLevel
	}{
		{0.0, models.RiskLevelLow},
		{ThresholdMedium - 0.001, models.RiskLevelLow},
		{ThresholdMedium, models.RiskLevelMedium},
		{ThresholdHigh, models.RiskLevelHigh},
		{ThresholdCritical, models.RiskLevelCritical},
		{1.0, models.RiskLevelCritical},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.level, LevelFor(tc.score), "score %g", tc.score)
	}
}
