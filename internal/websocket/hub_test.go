// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

package websocket

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadubey78945-spec/iot-sentinel/internal/logging"
	"github.com/vadubey78945-spec/iot-sentinel/internal/models"
)

//nolint:gochecknoinits // keep test output clean
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// startHub runs the hub loop and returns a cancel that waits for exit.
func startHub(t *testing.T) (*Hub, func()) {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := hub.RunWithContext(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	}()

	return hub, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("hub did not stop")
		}
	}
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count never reached %d, have %d", want, hub.GetClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_RegisterBroadcastUnregister(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	client := NewClient(hub, nil)
	hub.Register <- client
	waitForClients(t, hub, 1)

	hub.BroadcastDeviceStatus(models.Device{ID: "DEV1", Status: models.DeviceStatusOnline})

	select {
	case msg := <-client.send:
		assert.Equal(t, MessageTypeDeviceStatus, msg.Type)
		device, ok := msg.Data.(models.Device)
		require.True(t, ok)
		assert.Equal(t, "DEV1", device.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast never delivered")
	}

	hub.Unregister <- client
	waitForClients(t, hub, 0)

	// Unregister closes the client's queue.
	_, open := <-client.send
	assert.False(t, open)
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = NewClient(hub, nil)
		hub.Register <- clients[i]
	}
	waitForClients(t, hub, 3)

	hub.BroadcastHoneypotInteraction("HONEYPOT001", "10.0.0.66", "port scan")

	for i, client := range clients {
		select {
		case msg := <-client.send:
			assert.Equal(t, MessageTypeHoneypotInteraction, msg.Type, "client %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("client %d never received the event", i)
		}
	}
}

func TestClient_EnqueueDropsOldestWhenFull(t *testing.T) {
	client := NewClient(NewHub(), nil)

	for i := 0; i < queueSize+10; i++ {
		client.enqueue(Message{Type: MessageTypeDeviceStatus, Data: i})
	}

	// Queue holds exactly queueSize entries, and the oldest ten are gone.
	require.Len(t, client.send, queueSize)
	first := <-client.send
	assert.Equal(t, 10, first.Data, "oldest events are discarded first")

	// Drain and check the newest event survived.
	last := first
	for len(client.send) > 0 {
		last = <-client.send
	}
	assert.Equal(t, queueSize+9, last.Data)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, stop := startHub(t)

	client := NewClient(hub, nil)
	hub.Register <- client
	waitForClients(t, hub, 1)

	stop()

	_, open := <-client.send
	assert.False(t, open, "shutdown must close subscriber queues")
	assert.Equal(t, 0, hub.GetClientCount())
}

func TestMarshalMessage(t *testing.T) {
	raw, err := MarshalMessage(Message{
		Type: MessageTypeThreatResolved,
		Data: map[string]string{"id": "abc"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"threat_resolved","data":{"id":"abc"}}`, string(raw))
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	// No running loop: the intake channel fills, then drops oldest.
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 600; i++ {
			hub.BroadcastThreatDetected(models.Threat{Category: fmt.Sprintf("t%d", i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked with no consumer")
	}
	assert.Len(t, hub.broadcast, 256)
}
