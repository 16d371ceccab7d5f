// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

// Package baseline maintains rolling per-device behavioral profiles:
// exponentially weighted packet/byte rates with a running variance
// estimate, an hour-of-day activity histogram, and the set of normally
// used ports. Profiles update incrementally; no raw history is buffered.
package baseline

import (
	"errors"
	"math"
	"sync"
	"time"
)

// ErrColdStart is returned by Deviation for a device with no baseline or
// too few samples. It signals insufficient data, not a fault; callers
// degrade gracefully instead of treating the device as anomalous.
var ErrColdStart = errors.New("baseline: insufficient data for device")

// Metrics is one observation's worth of input to the baseline.
type Metrics struct {
	PacketRate float64 // packets per minute
	ByteRate   float64 // bytes per minute
	Port       int
	Timestamp  time.Time
}

// profile is the rolling statistical baseline for one device.
type profile struct {
	samples int

	// EWMA rates, smoothing factor alpha.
	packetRate float64
	byteRate   float64

	// Welford running variance over packet rates.
	mean float64
	m2   float64

	hours [24]int
	ports map[int]int
}

// variance returns the running sample variance of the packet rate.
func (p *profile) variance() float64 {
	if p.samples < 2 {
		return 0
	}
	return p.m2 / float64(p.samples-1)
}

// Config tunes the baseline store.
type Config struct {
	// Alpha is the EWMA smoothing factor.
	Alpha float64

	// MinSamples is the observation count below which Deviation reports
	// cold start.
	MinSamples int

	// MinHourShare is the minimum fraction of samples an hour bucket
	// needs before the hour counts as normally active. Keeps one stray
	// 3 AM packet from whitelisting the whole night.
	MinHourShare float64
}

// DefaultConfig returns the store defaults (alpha 0.2, 5 samples).
func DefaultConfig() Config {
	return Config{Alpha: 0.2, MinSamples: 5, MinHourShare: 0.02}
}

// Store holds baselines for the whole fleet. Observe is the only
// mutating operation; Deviation and the query helpers are pure reads.
type Store struct {
	cfg Config

	mu       sync.RWMutex
	profiles map[string]*profile
}

// NewStore creates a baseline store. Zero-value config fields fall back
// to defaults.
func NewStore(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		cfg.Alpha = def.Alpha
	}
	if cfg.MinSamples < 1 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.MinHourShare <= 0 {
		cfg.MinHourShare = def.MinHourShare
	}
	return &Store{
		cfg:      cfg,
		profiles: make(map[string]*profile),
	}
}

// Observe folds one observation into the device's baseline, creating the
// baseline on first contact.
func (s *Store) Observe(deviceID string, m Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[deviceID]
	if !ok {
		p = &profile{ports: make(map[int]int)}
		s.profiles[deviceID] = p
	}

	p.samples++
	if p.samples == 1 {
		p.packetRate = m.PacketRate
		p.byteRate = m.ByteRate
	} else {
		alpha := s.cfg.Alpha
		p.packetRate = alpha*m.PacketRate + (1-alpha)*p.packetRate
		p.byteRate = alpha*m.ByteRate + (1-alpha)*p.byteRate
	}

	// Welford's online update; avoids buffering raw history.
	delta := m.PacketRate - p.mean
	p.mean += delta / float64(p.samples)
	p.m2 += delta * (m.PacketRate - p.mean)

	p.hours[m.Timestamp.Hour()]++
	if m.Port > 0 {
		p.ports[m.Port]++
	}
}

// Deviation returns the normalized distance between the metrics and the
// device's baseline, in standard-deviation equivalents. It has no side
// effects. Unknown devices and devices below MinSamples return
// ErrColdStart.
func (s *Store) Deviation(deviceID string, m Metrics) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[deviceID]
	if !ok || p.samples < s.cfg.MinSamples {
		return 0, ErrColdStart
	}

	sd := math.Sqrt(p.variance())
	if sd < 1e-9 {
		// A perfectly flat history still needs a usable scale; fall back
		// to a fraction of the mean rate so a genuine spike registers.
		sd = math.Max(p.mean*0.1, 1e-9)
	}

	packetZ := math.Abs(m.PacketRate-p.packetRate) / sd

	byteZ := 0.0
	if p.byteRate > 0 {
		byteZ = math.Abs(m.ByteRate-p.byteRate) / math.Max(p.byteRate*0.25, 1e-9)
	}

	return math.Max(packetZ, byteZ), nil
}

// Rates returns the current EWMA packet and byte rates for a device.
// The second return is false for unknown devices.
func (s *Store) Rates(deviceID string) (packetRate, byteRate float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, found := s.profiles[deviceID]
	if !found {
		return 0, 0, false
	}
	return p.packetRate, p.byteRate, true
}

// UsesPort reports whether the port is part of the device's normal port
// set. Unknown devices report false.
func (s *Store) UsesPort(deviceID string, port int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[deviceID]
	if !ok {
		return false
	}
	return p.ports[port] > 0
}

// ActiveInHour reports whether the hour bucket holds at least
// MinHourShare of the device's samples. Unknown devices report false.
func (s *Store) ActiveInHour(deviceID string, hour int) bool {
	if hour < 0 || hour > 23 {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[deviceID]
	if !ok || p.samples == 0 {
		return false
	}
	share := float64(p.hours[hour]) / float64(p.samples)
	return share >= s.cfg.MinHourShare
}

// Samples returns the number of observations folded into a device's
// baseline, zero for unknown devices.
func (s *Store) Samples(deviceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[deviceID]
	if !ok {
		return 0
	}
	return p.samples
}
