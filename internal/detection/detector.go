// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

// Package detection evaluates traffic observations against device
// baselines. Verdicts are deterministic: confidence is a saturating
// function of baseline deviation, never a random draw.
package detection

import (
	"errors"
	"math"

	"github.com/vadubey78945-spec/iot-sentinel/internal/baseline"
	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
)

// Anomaly categories, in fixed priority order. The first matching rule
// wins: off-hour beats unexpected-port beats volume-spike.
const (
	CategoryOffHour        = "off-hour activity"
	CategoryUnexpectedPort = "unexpected port"
	CategoryVolumeSpike    = "volume spike"
	CategoryGeneric        = "behavioral anomaly"
	CategoryInsufficient   = "insufficient data"
)

// Verdict is the result of evaluating one observation.
type Verdict struct {
	IsAnomaly  bool    `json:"is_anomaly"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
	Deviation  float64 `json:"deviation"`
	ColdStart  bool    `json:"cold_start,omitempty"`
}

// Config tunes the detector.
type Config struct {
	// AnomalyThreshold is the confidence above which IsAnomaly is set.
	AnomalyThreshold float64

	// ConfidenceSlope is k in confidence = 1 - exp(-k * deviation).
	ConfidenceSlope float64

	// VolumeSpikeFactor is the multiple of the baseline byte rate above
	// which the volume-spike category applies.
	VolumeSpikeFactor float64
}

// DefaultConfig matches the platform's long-standing anomaly threshold.
func DefaultConfig() Config {
	return Config{
		AnomalyThreshold:  0.8,
		ConfidenceSlope:   0.5,
		VolumeSpikeFactor: 3.0,
	}
}

// Detector evaluates observations against the baseline store.
type Detector struct {
	cfg       Config
	baselines *baseline.Store
}

// NewDetector creates a detector backed by the given baseline store.
func NewDetector(cfg Config, baselines *baseline.Store) *Detector {
	def := DefaultConfig()
	if cfg.AnomalyThreshold <= 0 || cfg.AnomalyThreshold >= 1 {
		cfg.AnomalyThreshold = def.AnomalyThreshold
	}
	if cfg.ConfidenceSlope <= 0 {
		cfg.ConfidenceSlope = def.ConfidenceSlope
	}
	if cfg.VolumeSpikeFactor <= 1 {
		cfg.VolumeSpikeFactor = def.VolumeSpikeFactor
	}
	return &Detector{cfg: cfg, baselines: baselines}
}

// Threshold returns the configured anomaly threshold.
func (d *Detector) Threshold() float64 {
	return d.cfg.AnomalyThreshold
}

// Evaluate scores one observation for the source device. A device with
// no baseline yields a cold-start verdict: never anomalous, confidence
// zero. Evaluate does not mutate the baseline; ingestion folds the
// observation in separately after evaluation.
func (d *Detector) Evaluate(device *models.Device, obs *models.Observation) Verdict {
	m := baseline.Metrics{
		PacketRate: obs.PacketRate,
		ByteRate:   obs.ByteRate,
		Port:       obs.Port,
		Timestamp:  obs.Timestamp,
	}

	deviation, err := d.baselines.Deviation(device.ID, m)
	if errors.Is(err, baseline.ErrColdStart) {
		return Verdict{Category: CategoryInsufficient, ColdStart: true}
	}

	confidence := 1 - math.Exp(-d.cfg.ConfidenceSlope*deviation)

	// An upstream suspicious tag (honeypot probe replay, known-bad
	// signature) guarantees the verdict clears the threshold.
	if minSuspicious := (1 + d.cfg.AnomalyThreshold) / 2; obs.Suspicious && confidence < minSuspicious {
		confidence = minSuspicious
	}

	v := Verdict{
		Confidence: confidence,
		Deviation:  deviation,
		IsAnomaly:  confidence > d.cfg.AnomalyThreshold,
	}
	v.Category = d.categorize(device.ID, obs)
	return v
}

// categorize picks the anomaly category by matching observation features
// against the baseline, first match wins in fixed priority order.
func (d *Detector) categorize(deviceID string, obs *models.Observation) string {
	if !d.baselines.ActiveInHour(deviceID, obs.Timestamp.Hour()) {
		return CategoryOffHour
	}
	if obs.Port > 0 && !d.baselines.UsesPort(deviceID, obs.Port) {
		return CategoryUnexpectedPort
	}
	if _, byteRate, ok := d.baselines.Rates(deviceID); ok {
		if byteRate > 0 && obs.ByteRate > byteRate*d.cfg.VolumeSpikeFactor {
			return CategoryVolumeSpike
		}
	}
	return CategoryGeneric
}

// SeverityFor maps a verdict's confidence to a threat severity band.
func SeverityFor(v Verdict) models.Severity {
	switch {
	case v.Confidence >= 0.95:
		return models.SeverityCritical
	case v.Confidence >= 0.9:
		return models.SeverityHigh
	case v.Confidence >= 0.85:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
