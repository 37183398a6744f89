// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package live is the WebSocket live-subscriber broadcaster: an
// eventbus sink that fans SampleProcessedEvent, ControlLimitsUpdatedEvent,
// ViolationCreatedEvent and ViolationAcknowledgedEvent out to connected
// clients, each subscribed to a set of characteristic ids via a small
// subscribe/unsubscribe/ping protocol.
package live

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openspc/openspc/pkg/log"
	"github.com/openspc/openspc/pkg/schema"
)

// connection is one live-subscriber socket and its subscription set.
type connection struct {
	id       int64
	conn     *websocket.Conn
	writeMu  sync.Mutex
	mu       sync.Mutex
	subs     map[int64]bool
	lastPing time.Time
}

func (c *connection) subscribes(charID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[charID]
}

func (c *connection) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Broadcaster owns the registry of live-subscriber connections and
// acts as an eventbus sink through Dispatch. It does not implement
// alertmanager.AlertNotifier.
type Broadcaster struct {
	mu          sync.RWMutex
	connections map[int64]*connection
	nextID      int64

	heartbeatTimeout time.Duration
	logger           *log.ComponentLogger
}

// NewBroadcaster builds an empty broadcaster. heartbeatTimeout <= 0
// falls back to 60s.
func NewBroadcaster(heartbeatTimeout time.Duration) *Broadcaster {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = 60 * time.Second
	}
	return &Broadcaster{
		connections:      map[int64]*connection{},
		heartbeatTimeout: heartbeatTimeout,
		logger:           log.Component("LIVE"),
	}
}

// Register adds a new connection to the registry and returns its
// assigned id, used to remove it again later.
func (b *Broadcaster) Register(conn *websocket.Conn) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.connections[id] = &connection{
		id:       id,
		conn:     conn,
		subs:     map[int64]bool{},
		lastPing: time.Now(),
	}
	return id
}

// Remove tears down one connection's subscriptions and drops it from
// the registry.
func (b *Broadcaster) Remove(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.connections, id)
}

// Subscribe adds charID to id's subscription set.
func (b *Broadcaster) Subscribe(id int64, charID int64) {
	b.mu.RLock()
	c, ok := b.connections[id]
	b.mu.RUnlock()
	if !ok {
		return
	}
	c.mu.Lock()
	c.subs[charID] = true
	c.mu.Unlock()
}

// Unsubscribe removes charID from id's subscription set.
func (b *Broadcaster) Unsubscribe(id int64, charID int64) {
	b.mu.RLock()
	c, ok := b.connections[id]
	b.mu.RUnlock()
	if !ok {
		return
	}
	c.mu.Lock()
	delete(c.subs, charID)
	c.mu.Unlock()
}

// Ping records a heartbeat for id.
func (b *Broadcaster) Ping(id int64) {
	b.mu.RLock()
	c, ok := b.connections[id]
	b.mu.RUnlock()
	if !ok {
		return
	}
	c.mu.Lock()
	c.lastPing = time.Now()
	c.mu.Unlock()
}

// ConnectionCount reports how many live subscribers are registered.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.connections)
}

// EvictStale removes every connection whose last ping is older than
// the configured heartbeat timeout. Intended to be run periodically by
// a dedicated heartbeat-monitor goroutine.
func (b *Broadcaster) EvictStale(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, c := range b.connections {
		c.mu.Lock()
		stale := now.Sub(c.lastPing) > b.heartbeatTimeout
		c.mu.Unlock()
		if stale {
			c.conn.Close()
			delete(b.connections, id)
		}
	}
}

// broadcast snapshots the current connection set under the read lock
// and sends outside of it, so a slow subscriber never blocks the
// registry.
func (b *Broadcaster) broadcast(payload wirePayload, filter func(*connection) bool) {
	b.mu.RLock()
	targets := make([]*connection, 0, len(b.connections))
	for _, c := range b.connections {
		if filter == nil || filter(c) {
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(payload); err != nil {
			b.logger.Warnf("connection %d: send failed, removing: %v", c.id, err)
			b.Remove(c.id)
		}
	}
}

// wirePayload is the compact JSON envelope sent to every subscriber.
type wirePayload struct {
	Event            string          `json:"event"`
	CharacteristicID int64           `json:"characteristic_id,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	Data             json.RawMessage `json:"data"`
}

// Dispatch implements the eventbus.Handler signature, making the
// broadcaster directly subscribable on the bus for all four event
// classes.
func (b *Broadcaster) Dispatch(e schema.Event) error {
	switch evt := e.(type) {
	case schema.SampleProcessedEvent:
		return b.onSampleProcessed(evt)
	case schema.ControlLimitsUpdatedEvent:
		return b.onControlLimitsUpdated(evt)
	case schema.ViolationCreatedEvent:
		return b.onViolationCreated(evt)
	case schema.ViolationAcknowledgedEvent:
		return b.onViolationAcknowledged(evt)
	}
	return nil
}

func (b *Broadcaster) onSampleProcessed(evt schema.SampleProcessedEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	b.broadcast(wirePayload{Event: "sample_processed", CharacteristicID: evt.CharacteristicID, Timestamp: evt.Timestamp, Data: data},
		func(c *connection) bool { return c.subscribes(evt.CharacteristicID) })
	return nil
}

func (b *Broadcaster) onControlLimitsUpdated(evt schema.ControlLimitsUpdatedEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	b.broadcast(wirePayload{Event: "control_limits_updated", CharacteristicID: evt.CharacteristicID, Timestamp: evt.Timestamp, Data: data},
		func(c *connection) bool { return c.subscribes(evt.CharacteristicID) })
	return nil
}

func (b *Broadcaster) onViolationCreated(evt schema.ViolationCreatedEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	b.broadcast(wirePayload{Event: "violation_created", CharacteristicID: evt.Violation.CharacteristicID, Timestamp: evt.Timestamp, Data: data},
		func(c *connection) bool { return c.subscribes(evt.Violation.CharacteristicID) })
	return nil
}

// onViolationAcknowledged broadcasts to every connection regardless of
// subscription set.
func (b *Broadcaster) onViolationAcknowledged(evt schema.ViolationAcknowledgedEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	b.broadcast(wirePayload{Event: "violation_acknowledged", Timestamp: evt.Timestamp, Data: data}, nil)
	return nil
}
