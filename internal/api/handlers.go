// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"

	"github.com/vadubey78945-spec/iot-sentinel/internal/engine"
	"github.com/vadubey78945-spec/iot-sentinel/internal/logging"
	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
	"github.com/vadubey78945-spec/iot-sentinel/internal/threat"
	"github.com/vadubey78945-spec/iot-sentinel/internal/websocket"
)

// Handler holds the API's collaborators.
type Handler struct {
	engine    *engine.Engine
	hub       *websocket.Hub
	upgrader  gorillaws.Upgrader
	startedAt time.Time
}

// NewHandler creates the API handler set.
func NewHandler(e *engine.Engine, hub *websocket.Hub) *Handler {
	return &Handler{
		engine: e,
		hub:    hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is same-origin in production; CORS guards the
			// REST surface and the stream carries no credentials.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		startedAt: time.Now().UTC(),
	}
}

// Health reports liveness plus coarse engine state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":           "ok",
		"uptime_seconds":   int64(time.Since(h.startedAt).Seconds()),
		"devices":          len(h.engine.Devices()),
		"snapshot_version": h.engine.Version(),
	})
}

// Dashboard serves the full versioned snapshot.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.engine.Snapshot())
}

// Devices lists the fleet in discovery order.
func (h *Handler) Devices(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.engine.Devices())
}

// Device serves one device.
func (h *Handler) Device(w http.ResponseWriter, r *http.Request) {
	device, err := h.engine.Device(chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(device)
}

// BlockDevice manually blocks a device's address. Idempotent; repeat
// blocks succeed with applied=false.
func (h *Handler) BlockDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	action, applied, err := h.engine.Block(deviceID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	logging.Info().
		Str("device_id", deviceID).
		Bool("applied", applied).
		Msg("manual block requested")
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"action":  action,
		"applied": applied,
	})
}

// Threats lists threats, newest last, filterable by ?state= and capped
// by ?limit=.
func (h *Handler) Threats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			rw.BadRequest("limit must be a non-negative integer")
			return
		}
		limit = n
	}

	state := models.ThreatState(r.URL.Query().Get("state"))
	rw.Success(h.engine.Threats(state, limit))
}

// Threat serves one threat with its full transition history.
func (h *Handler) Threat(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		NewResponseWriter(w, r).BadRequest("threat id must be a UUID")
		return
	}

	t, err := h.engine.Threat(id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(t)
}

// ResolveThreat marks a threat as a false positive. Resolving a closed
// threat is a no-op success; resolving one mid-mitigation conflicts.
func (h *Handler) ResolveThreat(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		NewResponseWriter(w, r).BadRequest("threat id must be a UUID")
		return
	}

	resolved, changed, err := h.engine.Resolve(id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"threat":  resolved,
		"changed": changed,
	})
}

// Actions serves the append-only defense action log.
func (h *Handler) Actions(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.engine.Actions())
}

// Deception serves honeypot and honeytoken state.
func (h *Handler) Deception(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.engine.DeceptionStatus())
}

// Defense serves the blocked-address set and action count.
func (h *Handler) Defense(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.engine.DefenseStatus())
}

// Observations serves the bounded audit ring, oldest first.
func (h *Handler) Observations(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.engine.RecentObservations())
}

// Scan triggers a fleet sweep and returns the resulting snapshot.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.engine.TriggerScan())
}

// WebSocket upgrades the connection and subscribes it to the event
// stream, seeding it with a fresh snapshot so the client starts from a
// consistent view.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	client.Send(websocket.Message{
		Type: websocket.MessageTypeSnapshot,
		Data: h.engine.Snapshot(),
	})
	h.hub.Register <- client
	client.Start()
}

// writeEngineError maps engine and lifecycle errors to HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	rw := NewResponseWriter(w, r)
	switch {
	case errors.Is(err, engine.ErrDeviceNotFound), errors.Is(err, threat.ErrNotFound):
		rw.NotFound(err.Error())
	case errors.Is(err, threat.ErrInvalidTransition), errors.Is(err, threat.ErrAlreadyClaimed):
		rw.Conflict(err.Error())
	default:
		logging.Error().Err(err).Msg("request failed")
		rw.InternalError("internal error")
	}
}
