/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus relays events between wavecast instances so a dashboard
// attached to any node sees now-playing and listener changes from all of them.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/wavecast/internal/events"
)

// Bus is the event bus used by the server. Local subscribers always see
// local events; distributed implementations add events from peers.
type Bus interface {
	events.Publisher
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Close() error
}

// Memory is the single-instance bus.
type Memory struct {
	*events.Bus
}

// NewMemory wraps a fresh in-process bus.
func NewMemory() *Memory {
	return &Memory{Bus: events.NewBus()}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// message is the wire envelope shared by the Redis and NATS buses.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalMessage(data []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	if msg.EventType == "" {
		return nil, fmt.Errorf("unmarshal event message: missing event_type")
	}
	return &msg, nil
}

// relay republishes peer messages on the local bus.
type relay struct {
	nodeID string
	local  *events.Bus
	logger zerolog.Logger
}

// handle reports whether data was delivered locally. Messages from this node
// were already delivered when they were published and are ignored.
func (r *relay) handle(data []byte) bool {
	msg, err := unmarshalMessage(data)
	if err != nil {
		r.logger.Error().Err(err).Msg("dropping malformed event message")
		return false
	}
	if msg.NodeID == r.nodeID {
		return false
	}
	if msg.Payload == nil {
		msg.Payload = events.Payload{}
	}
	msg.Payload["source_node"] = msg.NodeID
	r.local.Publish(msg.EventType, msg.Payload)
	return true
}

// NodeID returns id, or hostname plus a random suffix when id is empty.
func NodeID(id string) string {
	if id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "wavecast"
	}
	return host + "-" + uuid.NewString()[:8]
}
