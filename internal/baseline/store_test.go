// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

package baseline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsAt(hour int, packetRate, byteRate float64, port int) Metrics {
	return Metrics{
		PacketRate: packetRate,
		ByteRate:   byteRate,
		Port:       port,
		Timestamp:  time.Date(2026, 3, 14, hour, 30, 0, 0, time.UTC),
	}
}

func TestDeviation_ColdStart(t *testing.T) {
	store := NewStore(DefaultConfig())

	_, err := store.Deviation("unknown", metricsAt(12, 50, 5000, 443))
	require.ErrorIs(t, err, ErrColdStart)

	// Below MinSamples the device is still cold.
	store.Observe("dev1", metricsAt(12, 50, 5000, 443))
	_, err = store.Deviation("dev1", metricsAt(12, 50, 5000, 443))
	assert.True(t, errors.Is(err, ErrColdStart))
}

func TestDeviation_StableTrafficIsLow(t *testing.T) {
	store := NewStore(DefaultConfig())

	for i := 0; i < 100; i++ {
		// Small jitter around 50 pkt/min so variance is nonzero.
		rate := 50.0 + float64(i%5) - 2.0
		store.Observe("dev1", metricsAt(14, rate, 5000, 443))
	}

	dev, err := store.Deviation("dev1", metricsAt(14, 50, 5000, 443))
	require.NoError(t, err)
	assert.Less(t, dev, 2.0, "stable traffic should sit near the baseline")
}

func TestDeviation_SpikeIsHigh(t *testing.T) {
	store := NewStore(DefaultConfig())

	for i := 0; i < 100; i++ {
		rate := 50.0 + float64(i%5) - 2.0
		store.Observe("dev1", metricsAt(14, rate, 5000, 443))
	}

	dev, err := store.Deviation("dev1", metricsAt(14, 500, 5000, 443))
	require.NoError(t, err)
	assert.Greater(t, dev, 10.0, "a 10x packet spike must register far from baseline")
}

func TestDeviation_HasNoSideEffects(t *testing.T) {
	store := NewStore(DefaultConfig())
	for i := 0; i < 10; i++ {
		store.Observe("dev1", metricsAt(9, 50, 5000, 80))
	}

	before := store.Samples("dev1")
	_, err := store.Deviation("dev1", metricsAt(9, 400, 9000, 8080))
	require.NoError(t, err)
	assert.Equal(t, before, store.Samples("dev1"))
	assert.False(t, store.UsesPort("dev1", 8080), "deviation must not record the probed port")
}

func TestPortAndHourTracking(t *testing.T) {
	store := NewStore(DefaultConfig())

	for i := 0; i < 20; i++ {
		store.Observe("dev1", metricsAt(10, 50, 5000, 443))
	}
	store.Observe("dev1", metricsAt(10, 50, 5000, 80))

	assert.True(t, store.UsesPort("dev1", 443))
	assert.True(t, store.UsesPort("dev1", 80))
	assert.False(t, store.UsesPort("dev1", 2323))

	assert.True(t, store.ActiveInHour("dev1", 10))
	assert.False(t, store.ActiveInHour("dev1", 3))
	assert.False(t, store.ActiveInHour("dev1", -1))
}

func TestActiveInHour_MinShare(t *testing.T) {
	store := NewStore(Config{Alpha: 0.2, MinSamples: 5, MinHourShare: 0.05})

	for i := 0; i < 99; i++ {
		store.Observe("dev1", metricsAt(12, 50, 5000, 443))
	}
	// One stray 3 AM sample is below the 5% share and must not
	// whitelist the hour.
	store.Observe("dev1", metricsAt(3, 50, 5000, 443))

	assert.True(t, store.ActiveInHour("dev1", 12))
	assert.False(t, store.ActiveInHour("dev1", 3))
}

func TestObserve_ConcurrentDevices(t *testing.T) {
	store := NewStore(DefaultConfig())

	var wg sync.WaitGroup
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		wg.Add(1)
		go func(deviceID string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				store.Observe(deviceID, metricsAt(i%24, 50, 5000, 443))
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, 200, store.Samples(id))
	}
}
