// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openspc/openspc/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestSubscribeThenSampleProcessedIsDelivered(t *testing.T) {
	b := NewBroadcaster(time.Minute)
	server := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(clientMessage{Action: "subscribe", CharacteristicID: 7}))
	time.Sleep(20 * time.Millisecond) // let the server-side read loop process it

	require.NoError(t, b.Dispatch(schema.SampleProcessedEvent{CharacteristicID: 7, Timestamp: time.Now()}))

	var got wirePayload
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "sample_processed", got.Event)
	assert.Equal(t, int64(7), got.CharacteristicID)
}

func TestUnsubscribedCharacteristicGetsNoEvent(t *testing.T) {
	b := NewBroadcaster(time.Minute)
	server := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(clientMessage{Action: "subscribe", CharacteristicID: 1}))
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Dispatch(schema.SampleProcessedEvent{CharacteristicID: 2, Timestamp: time.Now()}))

	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	var got wirePayload
	err := conn.ReadJSON(&got)
	assert.Error(t, err, "no message should have been delivered")
}

func TestViolationAcknowledgedBroadcastsToAllRegardlessOfSubscription(t *testing.T) {
	b := NewBroadcaster(time.Minute)
	server := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, b.Dispatch(schema.ViolationAcknowledgedEvent{Timestamp: time.Now()}))

	var got wirePayload
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "violation_acknowledged", got.Event)
}

func TestEvictStaleRemovesExpiredConnection(t *testing.T) {
	b := NewBroadcaster(10 * time.Millisecond)
	server := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()
	time.Sleep(10 * time.Millisecond)

	require.Equal(t, 1, b.ConnectionCount())
	b.EvictStale(time.Now().Add(time.Second))
	assert.Equal(t, 0, b.ConnectionCount())
}
