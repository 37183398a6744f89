// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package live

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openspc/openspc/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is the subscribe/unsubscribe/ping protocol a connected
// client speaks.
type clientMessage struct {
	Action           string `json:"action"` // "subscribe" | "unsubscribe" | "ping"
	CharacteristicID int64  `json:"characteristic_id,omitempty"`
}

// ServeHTTP upgrades the connection and runs its read loop until the
// client disconnects or sends an unreadable frame.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Component("LIVE").Warnf("upgrade failed: %v", err)
		return
	}

	id := b.Register(conn)
	defer func() {
		b.Remove(id)
		conn.Close()
	}()

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Action {
		case "subscribe":
			b.Subscribe(id, msg.CharacteristicID)
		case "unsubscribe":
			b.Unsubscribe(id, msg.CharacteristicID)
		case "ping":
			b.Ping(id)
		}
	}
}

// RunHeartbeatMonitor periodically evicts connections that have not
// pinged within the broadcaster's heartbeat timeout. It runs until ctx
// is cancelled.
func (b *Broadcaster) RunHeartbeatMonitor(ctx context.Context) {
	ticker := time.NewTicker(b.heartbeatTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.EvictStale(now)
		}
	}
}
