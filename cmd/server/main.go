// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

// Package main is the entry point for the IoT Sentinel server.
//
// IoT Sentinel is a streaming risk-and-response engine for IoT device
// fleets: it learns per-device behavioral baselines, scores device risk,
// detects traffic anomalies deterministically, drives detected threats
// through an auditable lifecycle, responds automatically by blocking
// hostile sources, and operates a deception layer of honeypots and
// honeytokens. State is exposed over a REST API, a WebSocket event
// stream, and Prometheus metrics.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (env > YAML > defaults)
//  2. Core engine: baseline store, detector, risk scorer, threat
//     manager, defense engine, deception registry
//  3. WebSocket hub: real-time event fan-out to dashboards
//  4. Persistence (optional): BadgerDB snapshot flusher
//  5. Simulation (optional): synthetic fleet ingestion source
//  6. HTTP server: REST API, WebSocket upgrade, /metrics
//
// All long-running components run under a suture supervision tree with
// three isolation layers (data, messaging, api).
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// listener drains in-flight requests, the hub closes its subscribers,
// and the flusher persists a final snapshot.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vadubey78945-spec/iot-sentinel/internal/api"
	"github.com/vadubey78945-spec/iot-sentinel/internal/baseline"
	"github.com/vadubey78945-spec/iot-sentinel/internal/config"
	"github.com/vadubey78945-spec/iot-sentinel/internal/deception"
	"github.com/vadubey78945-spec/iot-sentinel/internal/defense"
	"github.com/vadubey78945-spec/iot-sentinel/internal/detection"
	"github.com/vadubey78945-spec/iot-sentinel/internal/engine"
	"github.com/vadubey78945-spec/iot-sentinel/internal/logging"
	"github.com/vadubey78945-spec/iot-sentinel/internal/risk"
	"github.com/vadubey78945-spec/iot-sentinel/internal/simulation"
	"github.com/vadubey78945-spec/iot-sentinel/internal/storage"
	"github.com/vadubey78945-spec/iot-sentinel/internal/supervisor"
	"github.com/vadubey78945-spec/iot-sentinel/internal/threat"
	ws "github.com/vadubey78945-spec/iot-sentinel/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "iot-sentinel: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})
	logging.Info().
		Str("listen", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Bool("simulation", cfg.Simulation.Enabled).
		Bool("persistence", cfg.Persistence.Enabled).
		Msg("starting iot-sentinel")

	// Core engine composition.
	baselines := baseline.NewStore(baseline.Config{
		Alpha:        cfg.Baseline.Alpha,
		MinSamples:   cfg.Baseline.MinSamples,
		MinHourShare: cfg.Baseline.MinHourShare,
	})
	detector := detection.NewDetector(detection.Config{
		AnomalyThreshold:  cfg.Detection.AnomalyThreshold,
		ConfidenceSlope:   cfg.Detection.ConfidenceSlope,
		VolumeSpikeFactor: cfg.Detection.VolumeSpikeFactor,
	}, baselines)
	threats := threat.NewManager()
	defenseEngine := defense.NewEngine(defense.Config{
		MitigationThreshold: cfg.Defense.MitigationThreshold,
		HostileCIDRs:        cfg.Defense.HostileCIDRs,
	}, threats)

	core := engine.New(engine.Config{
		ObservationBuffer: cfg.Engine.ObservationBuffer,
		RecentThreats:     cfg.Engine.RecentThreats,
	}, engine.Deps{
		Baselines: baselines,
		Detector:  detector,
		Scorer:    risk.NewScorer(cfg.Risk.LatestFirmware),
		Threats:   threats,
		Defense:   defenseEngine,
	})

	registry, err := deception.NewRegistry(deception.Config{
		HoneypotCount:    cfg.Deception.HoneypotCount,
		AddressBase:      cfg.Deception.AddressBase,
		Ports:            cfg.Deception.Ports,
		PortsPerHoneypot: cfg.Deception.PortsPerHoneypot,
		Honeytokens:      cfg.Deception.Honeytokens,
	}, core)
	if err != nil {
		return fmt.Errorf("deploy deception layer: %w", err)
	}
	core.SetDeception(registry)

	hub := ws.NewHub()
	core.SetBroadcaster(hub)

	// Supervision tree: data, messaging, api layers.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	var store *storage.Store
	if cfg.Persistence.Enabled {
		store, err = storage.Open(cfg.Persistence.Path)
		if err != nil {
			return fmt.Errorf("open snapshot store: %w", err)
		}
		defer store.Close()

		if last, err := store.LatestSnapshot(); err == nil {
			logging.Info().
				Uint64("version", last.Version).
				Time("taken_at", last.TakenAt).
				Msg("previous snapshot found")
		} else if !errors.Is(err, storage.ErrNoSnapshot) {
			logging.Warn().Err(err).Msg("could not read previous snapshot")
		}
		tree.AddDataService(storage.NewFlusher(cfg.Persistence, store, core))
	}

	tree.AddMessagingService(supervisor.Wrap("websocket-hub", hub.RunWithContext))
	if cfg.Simulation.Enabled {
		tree.AddMessagingService(simulation.NewSampler(
			cfg.Simulation, core, registry, time.Now().UnixNano()))
	}

	handler := api.NewHandler(core, hub)
	router := api.NewRouter(cfg.Server, handler)
	tree.AddAPIService(api.NewServer(cfg.Server, router.Setup()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	logging.Info().Msg("iot-sentinel stopped")
	return nil
}
