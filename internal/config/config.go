// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

// Package config loads and validates IoT Sentinel configuration.
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables > YAML config file > built-in
// defaults. See Load in koanf.go.
package config

import (
	"fmt"
	"net/netip"
	"time"
)

// Config is the root configuration for the IoT Sentinel server.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Baseline    BaselineConfig    `koanf:"baseline"`
	Detection   DetectionConfig   `koanf:"detection"`
	Risk        RiskConfig        `koanf:"risk"`
	Defense     DefenseConfig     `koanf:"defense"`
	Deception   DeceptionConfig   `koanf:"deception"`
	Engine      EngineConfig      `koanf:"engine"`
	Simulation  SimulationConfig  `koanf:"simulation"`
	Persistence PersistenceConfig `koanf:"persistence"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// BaselineConfig tunes the per-device behavioral baseline store.
type BaselineConfig struct {
	// Alpha is the EWMA smoothing factor applied to rate updates.
	Alpha float64 `koanf:"alpha"`

	// MinSamples is the number of observations required before a baseline
	// produces deviations; below this the store reports cold start.
	MinSamples int `koanf:"min_samples"`

	// MinHourShare is the minimum fraction of a device's samples that must
	// fall in an hour bucket for that hour to count as normally active.
	MinHourShare float64 `koanf:"min_hour_share"`
}

// DetectionConfig tunes the anomaly detector.
type DetectionConfig struct {
	// AnomalyThreshold is the confidence above which a verdict is anomalous.
	AnomalyThreshold float64 `koanf:"anomaly_threshold"`

	// ConfidenceSlope is k in confidence = 1 - exp(-k * deviation).
	ConfidenceSlope float64 `koanf:"confidence_slope"`

	// VolumeSpikeFactor is the multiple of the baseline byte rate above
	// which an observation is categorized as a volume spike.
	VolumeSpikeFactor float64 `koanf:"volume_spike_factor"`
}

// RiskConfig tunes the risk scorer.
type RiskConfig struct {
	// LatestFirmware is the newest known firmware release, used as the
	// reference point for the firmware-age penalty (semver, e.g. "v4.0.0").
	LatestFirmware string `koanf:"latest_firmware"`
}

// DefenseConfig tunes the defense engine.
type DefenseConfig struct {
	// MitigationThreshold is the threat confidence at or above which the
	// engine installs a BLOCK rule instead of a LOG-only action.
	MitigationThreshold float64 `koanf:"mitigation_threshold"`

	// HostileCIDRs lists address ranges always treated as hostile sources.
	HostileCIDRs []string `koanf:"hostile_cidrs"`
}

// DeceptionConfig tunes the honeypot registry.
type DeceptionConfig struct {
	// HoneypotCount is the number of decoys deployed at startup.
	HoneypotCount int `koanf:"honeypot_count"`

	// AddressBase is the first decoy address; subsequent decoys take the
	// following addresses in the same /24.
	AddressBase string `koanf:"address_base"`

	// Ports is the candidate pool decoy listen ports are drawn from.
	Ports []int `koanf:"ports"`

	// PortsPerHoneypot is how many ports each decoy exposes.
	PortsPerHoneypot int `koanf:"ports_per_honeypot"`

	// Honeytokens lists decoy file names registered alongside honeypots.
	Honeytokens []string `koanf:"honeytokens"`
}

// EngineConfig tunes the core engine composition.
type EngineConfig struct {
	// ObservationBuffer caps the audit ring of recent observations.
	ObservationBuffer int `koanf:"observation_buffer"`

	// RecentThreats is the default number of threats in a snapshot.
	RecentThreats int `koanf:"recent_threats"`
}

// SimulationConfig tunes the synthetic fleet used as the ingestion source.
type SimulationConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Network        string        `koanf:"network"`
	MaxDevices     int           `koanf:"max_devices"`
	SampleInterval time.Duration `koanf:"sample_interval"`
	ScanInterval   time.Duration `koanf:"scan_interval"`
}

// PersistenceConfig tunes the optional badger-backed snapshot flusher.
// The engine is fully functional with persistence disabled.
type PersistenceConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Path          string        `koanf:"path"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// defaultConfig returns a Config with all default values. The engine
// tunables mirror the thresholds the platform has always shipped with:
// EWMA alpha 0.2, anomaly threshold 0.8, mitigation threshold 0.6.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Baseline: BaselineConfig{
			Alpha:        0.2,
			MinSamples:   5,
			MinHourShare: 0.02,
		},
		Detection: DetectionConfig{
			AnomalyThreshold:  0.8,
			ConfidenceSlope:   0.5,
			VolumeSpikeFactor: 3.0,
		},
		Risk: RiskConfig{
			LatestFirmware: "v4.0.0",
		},
		Defense: DefenseConfig{
			MitigationThreshold: 0.6,
			HostileCIDRs:        []string{"10.0.0.0/24"},
		},
		Deception: DeceptionConfig{
			HoneypotCount:    3,
			AddressBase:      "192.168.1.150",
			Ports:            []int{8080, 8443, 2323},
			PortsPerHoneypot: 2,
			Honeytokens:      []string{"config_backup.zip", "admin_passwords.txt"},
		},
		Engine: EngineConfig{
			ObservationBuffer: 512,
			RecentThreats:     10,
		},
		Simulation: SimulationConfig{
			Enabled:        true,
			Network:        "192.168.1.0/24",
			MaxDevices:     50,
			SampleInterval: 5 * time.Second,
			ScanInterval:   30 * time.Second,
		},
		Persistence: PersistenceConfig{
			Enabled:       false,
			Path:          "/data/iot-sentinel",
			FlushInterval: 30 * time.Second,
		},
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Baseline.Alpha <= 0 || c.Baseline.Alpha >= 1 {
		return fmt.Errorf("baseline.alpha must be in (0,1), got %g", c.Baseline.Alpha)
	}
	if c.Baseline.MinSamples < 1 {
		return fmt.Errorf("baseline.min_samples must be >= 1, got %d", c.Baseline.MinSamples)
	}
	if c.Detection.AnomalyThreshold <= 0 || c.Detection.AnomalyThreshold >= 1 {
		return fmt.Errorf("detection.anomaly_threshold must be in (0,1), got %g", c.Detection.AnomalyThreshold)
	}
	if c.Detection.ConfidenceSlope <= 0 {
		return fmt.Errorf("detection.confidence_slope must be > 0, got %g", c.Detection.ConfidenceSlope)
	}
	if c.Defense.MitigationThreshold <= 0 || c.Defense.MitigationThreshold > 1 {
		return fmt.Errorf("defense.mitigation_threshold must be in (0,1], got %g", c.Defense.MitigationThreshold)
	}
	for _, cidr := range c.Defense.HostileCIDRs {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("defense.hostile_cidrs entry %q: %w", cidr, err)
		}
	}
	if c.Deception.HoneypotCount < 0 {
		return fmt.Errorf("deception.honeypot_count must be >= 0, got %d", c.Deception.HoneypotCount)
	}
	if c.Deception.PortsPerHoneypot > len(c.Deception.Ports) {
		return fmt.Errorf("deception.ports_per_honeypot %d exceeds port pool size %d",
			c.Deception.PortsPerHoneypot, len(c.Deception.Ports))
	}
	if c.Deception.HoneypotCount > 0 {
		if _, err := netip.ParseAddr(c.Deception.AddressBase); err != nil {
			return fmt.Errorf("deception.address_base %q: %w", c.Deception.AddressBase, err)
		}
	}
	if c.Engine.ObservationBuffer < 1 {
		return fmt.Errorf("engine.observation_buffer must be >= 1, got %d", c.Engine.ObservationBuffer)
	}
	if c.Simulation.Enabled && c.Simulation.SampleInterval <= 0 {
		return fmt.Errorf("simulation.sample_interval must be > 0, got %s", c.Simulation.SampleInterval)
	}
	if c.Persistence.Enabled && c.Persistence.Path == "" {
		return fmt.Errorf("persistence.path must be set when persistence is enabled")
	}
	return nil
}
