// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

// Package risk scores device risk from static attributes and baseline
// deviation. Scoring is pure and deterministic: identical inputs always
// produce the identical score.
package risk

import (
	"math"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
)

// Risk level thresholds. Exported as named constants so tests and API
// consumers can assert against them instead of magic literals.
const (
	ThresholdCritical = 0.7
	ThresholdHigh     = 0.5
	ThresholdMedium   = 0.3
)

// Contribution caps. Each factor is capped independently before summing.
const (
	maxFirmwarePenalty      = 0.2
	firmwarePenaltyPerMajor = 0.1
	vulnerabilityPenalty    = 0.15
	maxVulnerabilityPenalty = 0.45
	maxDeviationTerm        = 0.3
)

// typeSensitivity maps device-type keywords to base sensitivity weight.
// Cameras and locks guard physical security; their compromise is worth
// more than a smart plug's.
var typeSensitivity = []struct {
	keyword string
	weight  float64
}{
	{"camera", 0.3},
	{"lock", 0.3},
	{"thermostat", 0.2},
	{"speaker", 0.2},
}

const defaultTypeWeight = 0.1

// Factors itemizes the contributions behind a score for explainability.
type Factors struct {
	DeviceType      float64 `json:"device_type"`
	FirmwareAge     float64 `json:"firmware_age"`
	Vulnerabilities float64 `json:"vulnerabilities"`
	Deviation       float64 `json:"deviation"`
}

// Assessment is the result of scoring one device.
type Assessment struct {
	Score   float64          `json:"score"`
	Level   models.RiskLevel `json:"level"`
	Factors Factors          `json:"factors"`
}

// Scorer computes risk assessments against a reference firmware release.
type Scorer struct {
	latestFirmware string
}

// NewScorer creates a scorer. latestFirmware is the newest known release
// in semver form ("v4.0.0"); devices behind it accrue a firmware-age
// penalty.
func NewScorer(latestFirmware string) *Scorer {
	return &Scorer{latestFirmware: canonicalVersion(latestFirmware)}
}

// Score computes the bounded risk score for a device. deviation is the
// baseline distance from the baseline store; coldStart devices contribute
// no deviation term rather than failing.
func (s *Scorer) Score(device *models.Device, deviation float64, coldStart bool) Assessment {
	f := Factors{
		DeviceType:      typeWeight(device.Type),
		FirmwareAge:     s.firmwarePenalty(device.Firmware),
		Vulnerabilities: math.Min(float64(len(device.Vulnerabilities))*vulnerabilityPenalty, maxVulnerabilityPenalty),
	}
	if !coldStart && deviation > 0 {
		// Saturates toward the cap as deviation grows.
		f.Deviation = maxDeviationTerm * (1 - math.Exp(-deviation/2))
	}

	score := f.DeviceType + f.FirmwareAge + f.Vulnerabilities + f.Deviation
	score = math.Max(0, math.Min(1, score))

	return Assessment{
		Score:   score,
		Level:   LevelFor(score),
		Factors: f,
	}
}

// LevelFor maps a score to its risk level using the named thresholds.
func LevelFor(score float64) models.RiskLevel {
	switch {
	case score >= ThresholdCritical:
		return models.RiskLevelCritical
	case score >= ThresholdHigh:
		return models.RiskLevelHigh
	case score >= ThresholdMedium:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

// typeWeight returns the sensitivity weight for a device type.
func typeWeight(deviceType string) float64 {
	lower := strings.ToLower(deviceType)
	for _, ts := range typeSensitivity {
		if strings.Contains(lower, ts.keyword) {
			return ts.weight
		}
	}
	return defaultTypeWeight
}

// firmwarePenalty computes the firmware-age penalty from true semantic
// version distance. Lexicographic comparison ("v10" < "v3") is not a
// version ordering; semver.Major does it properly.
func (s *Scorer) firmwarePenalty(firmware string) float64 {
	fw := canonicalVersion(firmware)
	if !semver.IsValid(fw) || !semver.IsValid(s.latestFirmware) {
		// Unparseable firmware is treated as maximally stale.
		return maxFirmwarePenalty
	}

	behind := majorOf(s.latestFirmware) - majorOf(fw)
	if behind <= 0 {
		return 0
	}
	return math.Min(float64(behind)*firmwarePenaltyPerMajor, maxFirmwarePenalty)
}

// canonicalVersion normalizes firmware strings like "3.1" or "v3.1" to
// semver form accepted by golang.org/x/mod/semver.
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// majorOf returns the numeric major version, -1 when unparseable.
func majorOf(v string) int {
	major := strings.TrimPrefix(semver.Major(v), "v")
	if major == "" {
		return -1
	}
	n := 0
	for _, r := range major {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
