// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package manual

import (
	"context"
	"errors"
	"testing"

	"github.com/openspc/openspc/pkg/apperrors"
	"github.com/openspc/openspc/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	chars   map[int64]*schema.Characteristic
	sources map[int64]*schema.DataSource
}

func (f *fakeLookup) Characteristic(ctx context.Context, id int64) (*schema.Characteristic, error) {
	c, ok := f.chars[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (f *fakeLookup) DataSourceForCharacteristic(ctx context.Context, charID int64) (*schema.DataSource, error) {
	return f.sources[charID], nil
}

func TestSubmitEmitsExactlyOneSampleEvent(t *testing.T) {
	lookup := &fakeLookup{chars: map[int64]*schema.Characteristic{
		1: {ID: 1, SubgroupSize: 3},
	}}
	var emitted []schema.SampleEvent
	p := New(lookup, func(e schema.SampleEvent) { emitted = append(emitted, e) })

	err := p.Submit(context.Background(), 1, []float64{1, 2, 3}, schema.SampleContext{})
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Equal(t, schema.SampleSourceManual, emitted[0].Context.Source)
}

func TestSubmitRejectsUnknownCharacteristic(t *testing.T) {
	lookup := &fakeLookup{chars: map[int64]*schema.Characteristic{}}
	p := New(lookup, func(schema.SampleEvent) {})

	err := p.Submit(context.Background(), 99, []float64{1}, schema.SampleContext{})
	assert.ErrorIs(t, err, apperrors.ErrCharacteristicNotFound)
}

func TestSubmitRejectsCountMismatch(t *testing.T) {
	lookup := &fakeLookup{chars: map[int64]*schema.Characteristic{
		1: {ID: 1, SubgroupSize: 5},
	}}
	p := New(lookup, func(schema.SampleEvent) {})

	err := p.Submit(context.Background(), 1, []float64{1, 2}, schema.SampleContext{})
	assert.ErrorIs(t, err, apperrors.ErrMeasurementCountMismatch)
}

func TestSubmitRejectsProviderTypeMismatch(t *testing.T) {
	lookup := &fakeLookup{
		chars: map[int64]*schema.Characteristic{
			1: {ID: 1, SubgroupSize: 1},
		},
		sources: map[int64]*schema.DataSource{
			1: {CharacteristicID: 1, Kind: schema.SourceMqtt},
		},
	}
	p := New(lookup, func(schema.SampleEvent) {})

	err := p.Submit(context.Background(), 1, []float64{1}, schema.SampleContext{})
	assert.ErrorIs(t, err, apperrors.ErrProviderTypeMismatch)
}

func TestSubmitBatchCollectsPerIndexErrors(t *testing.T) {
	lookup := &fakeLookup{chars: map[int64]*schema.Characteristic{
		1: {ID: 1, SubgroupSize: 1},
	}}
	var emitted int
	p := New(lookup, func(schema.SampleEvent) { emitted++ })

	errs := p.SubmitBatch(context.Background(), []BatchEntry{
		{CharacteristicID: 1, Measurements: []float64{1}},
		{CharacteristicID: 2, Measurements: []float64{1}},
	})
	require.Len(t, errs, 2)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], apperrors.ErrCharacteristicNotFound)
	assert.Equal(t, 1, emitted)
}
