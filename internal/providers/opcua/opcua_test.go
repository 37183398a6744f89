// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package opcua

import (
	"testing"

	"github.com/openspc/openspc/pkg/apperrors"
	"github.com/openspc/openspc/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePusher struct{}

func (fakePusher) Push(charID int64, value float64, ctx schema.SampleContext) {}

func TestBindRejectsOnTrigger(t *testing.T) {
	p := New(Config{}, fakePusher{})
	err := p.Bind(schema.OpcUaSourceSpec{NodeID: "ns=2;s=Temp"}, 1, schema.OnTrigger)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTriggerStrategyMismatch)

	p.mu.Lock()
	_, bound := p.nodes[1]
	p.mu.Unlock()
	assert.False(t, bound, "on_trigger node must not be bound")
}

func TestBindAcceptsOnChangeAndOnTimer(t *testing.T) {
	p := New(Config{}, fakePusher{})
	require.NoError(t, p.Bind(schema.OpcUaSourceSpec{NodeID: "ns=2;s=A"}, 1, schema.OnChange))
	require.NoError(t, p.Bind(schema.OpcUaSourceSpec{NodeID: "ns=2;s=B"}, 2, schema.OnTimer))

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Len(t, p.nodes, 2)
}

func TestBindUsesPerSourceSamplingIntervalOverride(t *testing.T) {
	p := New(Config{DefaultSamplingInterval: 1000 * 1e6}, fakePusher{}) // 1s in ns
	override := 250.0
	require.NoError(t, p.Bind(schema.OpcUaSourceSpec{NodeID: "ns=2;s=A", SamplingInterval: &override}, 1, schema.OnChange))

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, int64(250), p.nodes[1].samplingInterval.Milliseconds())
}

func TestAsFloat(t *testing.T) {
	cases := []struct {
		in any
		ok bool
	}{
		{float64(1.5), true},
		{int32(4), true},
		{uint64(9), true},
		{"not a number", false},
	}
	for _, c := range cases {
		_, ok := asFloat(c.in)
		assert.Equal(t, c.ok, ok)
	}
}
