// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package mqtt

import (
	"testing"

	"github.com/openspc/openspc/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	pushed []pushed
}

type pushed struct {
	charID int64
	value  float64
}

func (f *fakePusher) Push(charID int64, value float64, ctx schema.SampleContext) {
	f.pushed = append(f.pushed, pushed{charID, value})
}

func TestOnMessagePlainFloatDispatchesToAllBoundChars(t *testing.T) {
	pusher := &fakePusher{}
	p := New(Config{Address: "tcp://broker:1883"}, pusher, nil)
	metricName := "temp"
	p.Bind(schema.MqttSourceSpec{Topic: "line1/temp"}, 1, schema.OnChange)
	p.Bind(schema.MqttSourceSpec{Topic: "line1/temp", MetricName: &metricName}, 2, schema.OnChange)

	p.onMessage("line1/temp", []byte("42.5"))

	require.Len(t, pusher.pushed, 2)
	assert.Equal(t, 42.5, pusher.pushed[0].value)
	assert.Equal(t, 42.5, pusher.pushed[1].value)
}

func TestOnMessageSparkplugDispatchesByMetricName(t *testing.T) {
	pusher := &fakePusher{}
	p := New(Config{}, pusher, nil)
	tempName, pressName := "temp", "pressure"
	p.Bind(schema.MqttSourceSpec{Topic: "spBv1.0/g/NDATA/n1", MetricName: &tempName}, 1, schema.OnChange)
	p.Bind(schema.MqttSourceSpec{Topic: "spBv1.0/g/NDATA/n1", MetricName: &pressName}, 2, schema.OnChange)

	p.onMessage("spBv1.0/g/NDATA/n1", []byte(`{"metrics":[{"name":"temp","value":10},{"name":"pressure","value":20}]}`))

	require.Len(t, pusher.pushed, 2)
	got := map[int64]float64{pusher.pushed[0].charID: pusher.pushed[0].value, pusher.pushed[1].charID: pusher.pushed[1].value}
	assert.Equal(t, 10.0, got[1])
	assert.Equal(t, 20.0, got[2])
}

func TestOnMessageTriggerTagFiresCallbackNotPush(t *testing.T) {
	pusher := &fakePusher{}
	var triggered []int64
	p := New(Config{}, pusher, func(charID int64) { triggered = append(triggered, charID) })

	tag := "line1/trigger"
	p.Bind(schema.MqttSourceSpec{Topic: "line1/data", TriggerTag: &tag}, 7, schema.OnTrigger)

	p.onMessage("line1/trigger", []byte("1"))
	assert.Equal(t, []int64{7}, triggered)
	assert.Empty(t, pusher.pushed)
}

func TestOnMessageUnparseablePayloadIsDropped(t *testing.T) {
	pusher := &fakePusher{}
	p := New(Config{}, pusher, nil)
	p.Bind(schema.MqttSourceSpec{Topic: "line1/junk"}, 1, schema.OnChange)

	p.onMessage("line1/junk", []byte("not-a-number"))
	assert.Empty(t, pusher.pushed)
}

func TestIsSparkplugTopic(t *testing.T) {
	assert.True(t, isSparkplugTopic("spBv1.0/group1/NDATA/node1"))
	assert.False(t, isSparkplugTopic("line1/temp"))
}

func TestParsePlainPayloadShapes(t *testing.T) {
	v, err := parsePlainPayload([]byte("  3.14 "))
	require.NoError(t, err)
	assert.Equal(t, 3.14, v)

	v, err = parsePlainPayload([]byte(`{"value": 7.5}`))
	require.NoError(t, err)
	assert.Equal(t, 7.5, v)

	_, err = parsePlainPayload([]byte("garbage"))
	assert.Error(t, err)
}
