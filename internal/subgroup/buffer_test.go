// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package subgroup

import (
	"testing"
	"time"

	"github.com/openspc/openspc/pkg/log"
	"github.com/openspc/openspc/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnChangeFlushesExactlyOnceAtSize(t *testing.T) {
	var flushed []schema.SampleEvent
	m := NewManager(60, func(e schema.SampleEvent) {
		flushed = append(flushed, e)
	})
	m.Register(TagConfig{CharacteristicID: 1, SubgroupSize: 3, TriggerStrategy: schema.OnChange})

	m.Push(1, 1.0, schema.SampleContext{})
	assert.Empty(t, flushed)
	m.Push(1, 2.0, schema.SampleContext{})
	assert.Empty(t, flushed)
	m.Push(1, 3.0, schema.SampleContext{})

	require.Len(t, flushed, 1)
	assert.Equal(t, []float64{1.0, 2.0, 3.0}, flushed[0].Measurements)
}

func TestOnTriggerFlushesOnlyOnTrigger(t *testing.T) {
	var flushed []schema.SampleEvent
	m := NewManager(60, func(e schema.SampleEvent) {
		flushed = append(flushed, e)
	})
	m.Register(TagConfig{CharacteristicID: 2, SubgroupSize: 5, TriggerStrategy: schema.OnTrigger})

	m.Push(2, 1.0, schema.SampleContext{})
	m.Push(2, 2.0, schema.SampleContext{})
	assert.Empty(t, flushed)

	m.Trigger(2, schema.SampleContext{})
	require.Len(t, flushed, 1)
	assert.Equal(t, []float64{1.0, 2.0}, flushed[0].Measurements)

	m.Trigger(2, schema.SampleContext{}) // empty buffer: no-op
	assert.Len(t, flushed, 1)
}

func TestTimeoutSweepFlushesStaleBuffer(t *testing.T) {
	var flushed []schema.SampleEvent
	m := NewManager(1, func(e schema.SampleEvent) {
		flushed = append(flushed, e)
	})
	m.Register(TagConfig{CharacteristicID: 3, SubgroupSize: 10, TriggerStrategy: schema.OnTimer})

	m.Push(3, 42.0, schema.SampleContext{})
	m.sweepOnce(time.Now().Add(2*time.Second), time.Second, log.Component("TEST"))

	require.Len(t, flushed, 1)
	assert.Equal(t, []float64{42.0}, flushed[0].Measurements)
}
