// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

// Package websocket fans engine events out to dashboard subscribers.
//
// Delivery is best-effort: each subscriber has a bounded queue and a
// slow subscriber loses its oldest undelivered events first, never the
// connection. The snapshot API is the recovery path for anything missed.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/vadubey78945-spec/iot-sentinel/internal/logging"
	"github.com/vadubey78945-spec/iot-sentinel/internal/metrics"
	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
)

// Message types pushed to subscribers.
const (
	MessageTypeThreatDetected      = "threat_detected"
	MessageTypeThreatMitigated     = "threat_mitigated"
	MessageTypeThreatResolved      = "threat_resolved"
	MessageTypeDeviceStatus        = "device_status"
	MessageTypeHoneypotInteraction = "honeypot_interaction"
	MessageTypeSnapshot            = "snapshot"
	MessageTypePing                = "ping"
	MessageTypePong                = "pong"
)

// Message is the wire envelope for every event pushed to subscribers.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active subscribers and broadcasts events to
// them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub event loop until the context is canceled,
// then closes every subscriber and returns ctx.Err(). Designed for
// suture supervision.
//
// Channel selection is priority-ordered (shutdown, then lifecycle, then
// broadcast) so client state is consistent before messages are fanned
// out; Go's select picks randomly among ready channels otherwise.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: shutdown.
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		// Priority 2: lifecycle events.
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Priority 3: broadcast, or block until anything arrives.
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// broadcastToClients delivers one message to every subscriber in client
// id order, so delivery order is reproducible across runs.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		client.enqueue(message)
	}
}

// shutdown closes every subscriber, in id order.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WebsocketClients.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}

// publish queues a message for broadcast. The hub's own intake channel
// also drops oldest-first under pressure, keeping publishers non-blocking.
func (h *Hub) publish(message Message) {
	for {
		select {
		case h.broadcast <- message:
			return
		default:
		}
		select {
		case <-h.broadcast:
			metrics.WebsocketDropped.Inc()
			logging.Warn().Str("message_type", message.Type).Msg("broadcast backlog full, dropped oldest event")
		default:
		}
	}
}

// BroadcastThreatDetected pushes a newly created threat.
func (h *Hub) BroadcastThreatDetected(t models.Threat) {
	h.publish(Message{Type: MessageTypeThreatDetected, Data: t})
}

// BroadcastThreatMitigated pushes a threat that reached MITIGATED,
// together with the action that closed it.
func (h *Hub) BroadcastThreatMitigated(t models.Threat, action models.Action) {
	h.publish(Message{Type: MessageTypeThreatMitigated, Data: map[string]interface{}{
		"threat": t,
		"action": action,
	}})
}

// BroadcastThreatResolved pushes a manual FALSE_POSITIVE resolution.
func (h *Hub) BroadcastThreatResolved(t models.Threat) {
	h.publish(Message{Type: MessageTypeThreatResolved, Data: t})
}

// BroadcastDeviceStatus pushes a device state change (discovery, risk
// re-score, block).
func (h *Hub) BroadcastDeviceStatus(d models.Device) {
	h.publish(Message{Type: MessageTypeDeviceStatus, Data: d})
}

// HoneypotInteractionData is the payload for honeypot_interaction.
type HoneypotInteractionData struct {
	HoneypotID   string `json:"honeypot_id"`
	AttackerAddr string `json:"attacker_addr"`
	ActionKind   string `json:"action_kind"`
	Timestamp    string `json:"timestamp"`
}

// BroadcastHoneypotInteraction pushes a decoy contact.
func (h *Hub) BroadcastHoneypotInteraction(honeypotID, attackerAddr, actionKind string) {
	h.publish(Message{Type: MessageTypeHoneypotInteraction, Data: HoneypotInteractionData{
		HoneypotID:   honeypotID,
		AttackerAddr: attackerAddr,
		ActionKind:   actionKind,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}})
}

// BroadcastSnapshot pushes a full state snapshot, sent to new
// subscribers and after scan sweeps.
func (h *Hub) BroadcastSnapshot(s models.Snapshot) {
	h.publish(Message{Type: MessageTypeSnapshot, Data: s})
}

// GetClientCount returns the number of connected subscribers.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
