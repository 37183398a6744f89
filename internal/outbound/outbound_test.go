// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package outbound

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openspc/openspc/pkg/schema"
)

func TestBuildTopicSanitizesSegments(t *testing.T) {
	got := buildTopic("uns", "Plant One", []string{"Line #1", "Cell+A"}, "Bore Dia", "sample")
	assert.Equal(t, "uns/plant_one/line_1/cella/bore_dia/sample", got)
}

func TestBuildTopicDropsEmptyPathSegments(t *testing.T) {
	got := buildTopic("uns", "p1", nil, "diameter", "limits")
	assert.Equal(t, "uns/p1/diameter/limits", got)
}

type fakeResolver struct {
	plant    string
	path     []string
	charName string
}

func (f fakeResolver) TopicPath(ctx context.Context, charID int64) (string, []string, string, error) {
	return f.plant, f.path, f.charName, nil
}

type recordingSender struct {
	topics   []string
	payloads [][]byte
}

func (s *recordingSender) Publish(topic string, payload []byte) error {
	s.topics = append(s.topics, topic)
	s.payloads = append(s.payloads, payload)
	return nil
}

func TestDispatchPublishesToEveryRegisteredBroker(t *testing.T) {
	resolver := fakeResolver{plant: "p1", path: []string{"line1"}, charName: "diameter"}
	pub := New(resolver)

	senderA := &recordingSender{}
	senderB := &recordingSender{}
	pub.AddBroker(BrokerConfig{BrokerID: 1, TopicPrefix: "uns", Format: FormatJSON, Sender: senderA})
	pub.AddBroker(BrokerConfig{BrokerID: 2, TopicPrefix: "uns", Format: FormatSparkplug, Sender: senderB})

	err := pub.Dispatch(schema.SampleProcessedEvent{CharacteristicID: 42, Mean: 10.5, Timestamp: time.Now()})
	require.NoError(t, err)

	require.Len(t, senderA.topics, 1)
	assert.Equal(t, "uns/p1/line1/diameter/sample", senderA.topics[0])
	require.Len(t, senderB.topics, 1)
	assert.Equal(t, "uns/p1/line1/diameter/sample", senderB.topics[0])
}

func TestDispatchIgnoresUnknownEventClass(t *testing.T) {
	pub := New(fakeResolver{})
	sender := &recordingSender{}
	pub.AddBroker(BrokerConfig{BrokerID: 1, TopicPrefix: "uns", Format: FormatJSON, Sender: sender})

	err := pub.Dispatch(nil)
	require.NoError(t, err)
	assert.Empty(t, sender.topics)
}

func TestRateGateSuppressesSecondPublishWithinMinInterval(t *testing.T) {
	resolver := fakeResolver{plant: "p1", charName: "diameter"}
	pub := New(resolver)
	sender := &recordingSender{}
	pub.AddBroker(BrokerConfig{BrokerID: 1, TopicPrefix: "uns", Format: FormatJSON, MinInterval: time.Hour, Sender: sender})

	evt := schema.SampleProcessedEvent{CharacteristicID: 1, Mean: 1, Timestamp: time.Now()}
	require.NoError(t, pub.Dispatch(evt))
	require.NoError(t, pub.Dispatch(evt))

	assert.Len(t, sender.topics, 1, "second publish within the minimum interval should have been suppressed")
}

func TestRateGateAllowsDistinctCharacteristicsIndependently(t *testing.T) {
	resolver := fakeResolver{plant: "p1", charName: "diameter"}
	pub := New(resolver)
	sender := &recordingSender{}
	pub.AddBroker(BrokerConfig{BrokerID: 1, TopicPrefix: "uns", Format: FormatJSON, MinInterval: time.Hour, Sender: sender})

	require.NoError(t, pub.Dispatch(schema.SampleProcessedEvent{CharacteristicID: 1, Mean: 1, Timestamp: time.Now()}))
	require.NoError(t, pub.Dispatch(schema.SampleProcessedEvent{CharacteristicID: 2, Mean: 1, Timestamp: time.Now()}))

	assert.Len(t, sender.topics, 2)
}

func TestPruneStaleRemovesOldEntries(t *testing.T) {
	g := newRateGate()
	g.setMinInterval(1, time.Minute)
	g.allow(1, 100)

	g.entries[rateKey{brokerID: 1, charID: 100}].lastUsed = time.Now().Add(-time.Hour)
	pruned := g.pruneStale(time.Minute)
	assert.Equal(t, 1, pruned)
	assert.Empty(t, g.entries)
}
