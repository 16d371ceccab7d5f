// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

// Package storage persists engine snapshots to BadgerDB so a restarted
// server can show the last known fleet state while baselines re-warm.
// Persistence is optional; the engine is fully functional without it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/vadubey78945-spec/iot-sentinel/internal/config"
	"github.com/vadubey78945-spec/iot-sentinel/internal/logging"
	"github.com/vadubey78945-spec/iot-sentinel/internal/metrics"
	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
)

// ErrNoSnapshot is returned when no snapshot has been persisted yet.
var ErrNoSnapshot = errors.New("storage: no snapshot persisted")

var keyLatest = []byte("snapshot/latest")

// Store is a badger-backed snapshot store.
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logger is too chatty for our stream

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral store, used in tests.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot overwrites the latest persisted snapshot.
func (s *Store) SaveSnapshot(snapshot models.Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot v%d: %w", snapshot.Version, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyLatest, raw)
	})
	if err != nil {
		return fmt.Errorf("persist snapshot v%d: %w", snapshot.Version, err)
	}
	return nil
}

// LatestSnapshot loads the most recently persisted snapshot.
func (s *Store) LatestSnapshot() (models.Snapshot, error) {
	var snapshot models.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyLatest)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoSnapshot
		}
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			return json.Unmarshal(raw, &snapshot)
		})
	})
	if err != nil {
		return models.Snapshot{}, err
	}
	return snapshot, nil
}

// SnapshotSource provides the snapshots to persist; satisfied by the
// engine.
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

// Flusher periodically persists the engine snapshot. Runs as a
// suture-supervised service in the data layer.
type Flusher struct {
	cfg    config.PersistenceConfig
	store  *Store
	source SnapshotSource

	lastVersion uint64
}

// NewFlusher creates a flusher over an open store.
func NewFlusher(cfg config.PersistenceConfig, store *Store, source SnapshotSource) *Flusher {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	return &Flusher{cfg: cfg, store: store, source: source}
}

// Serve flushes on every interval tick until the context is canceled,
// then performs one final flush so shutdown never loses the most recent
// state.
func (f *Flusher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.flush()
			logging.Info().Str("component", "snapshot-flusher").Msg("snapshot flusher stopped")
			return ctx.Err()
		case <-ticker.C:
			f.flush()
		}
	}
}

// flush persists the current snapshot, skipping when nothing changed
// since the last write.
func (f *Flusher) flush() {
	snapshot := f.source.Snapshot()
	if snapshot.Version == f.lastVersion {
		return
	}

	if err := f.store.SaveSnapshot(snapshot); err != nil {
		metrics.SnapshotFlushes.WithLabelValues("error").Inc()
		logging.Error().Err(err).Msg("snapshot flush failed")
		return
	}
	f.lastVersion = snapshot.Version
	metrics.SnapshotFlushes.WithLabelValues("ok").Inc()
	logging.Debug().Uint64("version", snapshot.Version).Msg("snapshot persisted")
}

// String names the service in supervisor logs.
func (f *Flusher) String() string {
	return "snapshot-flusher"
}
