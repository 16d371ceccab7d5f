// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

// Package metrics defines the Prometheus instrumentation for the engine
// and its interfaces. All collectors register on the default registry
// via promauto; the /metrics endpoint serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "iot_sentinel"

var (
	// ObservationsIngested counts observations accepted into the pipeline.
	ObservationsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observations_ingested_total",
		Help:      "Observations accepted into the analysis pipeline.",
	})

	// ObservationsFailed counts observations rejected before analysis.
	ObservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observations_failed_total",
		Help:      "Observations rejected before analysis, by reason.",
	}, []string{"reason"})

	// AnomaliesDetected counts detector verdicts that crossed the
	// anomaly threshold, by category.
	AnomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "anomalies_detected_total",
		Help:      "Detector verdicts above the anomaly threshold, by category.",
	}, []string{"category"})

	// ThreatTransitions counts lifecycle transitions, labelled by the
	// state entered.
	ThreatTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "threat_transitions_total",
		Help:      "Threat lifecycle transitions, by destination state.",
	}, []string{"state"})

	// DefenseActions counts defense actions, by kind and outcome.
	DefenseActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "defense_actions_total",
		Help:      "Defense actions taken, by kind and outcome.",
	}, []string{"kind", "outcome"})

	// HoneypotInteractions counts decoy contacts, by honeypot id.
	HoneypotInteractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "honeypot_interactions_total",
		Help:      "Recorded honeypot interactions, by honeypot.",
	}, []string{"honeypot_id"})

	// DevicesTracked gauges the current fleet size.
	DevicesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "devices_tracked",
		Help:      "Devices currently tracked by the engine.",
	})

	// SnapshotVersion gauges the latest published snapshot version.
	SnapshotVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_version",
		Help:      "Version of the most recently published state snapshot.",
	})

	// WebsocketClients gauges currently connected event subscribers.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Currently connected websocket subscribers.",
	})

	// WebsocketDropped counts events dropped by slow subscribers.
	WebsocketDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "websocket_dropped_events_total",
		Help:      "Events dropped because a subscriber queue was full.",
	})

	// HTTPRequests counts API requests by route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests, by route and status class.",
	}, []string{"route", "status"})

	// HTTPDuration observes API request latency by route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "API request latency, by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	// SnapshotFlushes counts persisted snapshots, by result.
	SnapshotFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_flushes_total",
		Help:      "Snapshot persistence attempts, by result.",
	}, []string{"result"})
)
