// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package engine

import (
	"context"
	"testing"

	"github.com/openspc/openspc/internal/rollingwindow"
	"github.com/openspc/openspc/internal/spcstat"
	"github.com/openspc/openspc/pkg/apperrors"
	"github.com/openspc/openspc/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	chars      map[int64]*schema.Characteristic
	sources    map[int64]*schema.DataSource
	rules      map[int64][]schema.CharacteristicRule
	samples    []schema.Sample
	violations []schema.Violation

	recalcMeans  []float64
	recalcSpread []float64
	lastLimits   *spcstat.ControlLimits
	ackCalls     int
}

func (f *fakeStore) Characteristic(ctx context.Context, charID int64) (*schema.Characteristic, error) {
	return f.chars[charID], nil
}

func (f *fakeStore) DataSourceForCharacteristic(ctx context.Context, charID int64) (*schema.DataSource, error) {
	return f.sources[charID], nil
}

func (f *fakeStore) CharacteristicRules(ctx context.Context, charID int64) ([]schema.CharacteristicRule, error) {
	return f.rules[charID], nil
}

func (f *fakeStore) InsertSample(ctx context.Context, s *schema.Sample, measurements []float64) (int64, error) {
	id := int64(len(f.samples) + 1)
	s.ID = id
	f.samples = append(f.samples, *s)
	return id, nil
}

func (f *fakeStore) InsertViolation(ctx context.Context, v *schema.Violation) (int64, error) {
	id := int64(len(f.violations) + 1)
	v.ID = id
	f.violations = append(f.violations, *v)
	return id, nil
}

func (f *fakeStore) UpdateCharacteristicLimits(ctx context.Context, charID int64, limits spcstat.ControlLimits) error {
	f.lastLimits = &limits
	return nil
}

func (f *fakeStore) LoadSamplesForRecalc(ctx context.Context, charID int64, excludeOOC bool) ([]float64, []float64, error) {
	return f.recalcMeans, f.recalcSpread, nil
}

func (f *fakeStore) Violation(ctx context.Context, id int64) (*schema.Violation, error) {
	for i := range f.violations {
		if f.violations[i].ID == id {
			return &f.violations[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) AcknowledgeViolation(ctx context.Context, id int64, user, reason string, excludeSample bool) error {
	f.ackCalls++
	for i := range f.violations {
		if f.violations[i].ID == id {
			f.violations[i].Acknowledged = true
		}
	}
	return nil
}

type fakeBus struct {
	published []schema.Event
}

func (b *fakeBus) Publish(e schema.Event) { b.published = append(b.published, e) }
func (b *fakeBus) PublishAndWait(e schema.Event) []error {
	b.published = append(b.published, e)
	return nil
}

type noopLoader struct{}

func (noopLoader) LoadWindowSeed(ctx context.Context, charID int64, size int) (float64, float64, []rollingwindow.WindowSeedEntry, error) {
	return 0, 0, nil, nil
}

func TestProcessSampleWithoutLimitsSetSkipsRuleEvaluation(t *testing.T) {
	store := &fakeStore{chars: map[int64]*schema.Characteristic{
		1: {ID: 1, SubgroupSize: 3},
	}}
	bus := &fakeBus{}
	windows := rollingwindow.NewManager(noopLoader{}, 10, 25)
	e := New(store, windows, bus, nil)

	result, err := e.ProcessSample(context.Background(), 1, []float64{1, 2, 3}, schema.SampleContext{})
	require.NoError(t, err)
	assert.True(t, result.InControl)
	assert.Nil(t, result.Zone)
	require.Len(t, bus.published, 1)
	_, ok := bus.published[0].(schema.SampleProcessedEvent)
	assert.True(t, ok)
}

func TestProcessSampleRejectsUnknownCharacteristic(t *testing.T) {
	store := &fakeStore{chars: map[int64]*schema.Characteristic{}}
	e := New(store, rollingwindow.NewManager(noopLoader{}, 10, 25), &fakeBus{}, nil)

	_, err := e.ProcessSample(context.Background(), 42, []float64{1}, schema.SampleContext{})
	assert.ErrorIs(t, err, apperrors.ErrCharacteristicNotFound)
}

func TestProcessSampleRejectsOversizedSubgroup(t *testing.T) {
	store := &fakeStore{chars: map[int64]*schema.Characteristic{
		1: {ID: 1, SubgroupSize: 2},
	}}
	e := New(store, rollingwindow.NewManager(noopLoader{}, 10, 25), &fakeBus{}, nil)

	_, err := e.ProcessSample(context.Background(), 1, []float64{1, 2, 3}, schema.SampleContext{})
	assert.ErrorIs(t, err, apperrors.ErrMeasurementCountMismatch)
}

func TestProcessSampleAllowsUndersizedOnlyWithVariableN(t *testing.T) {
	store := &fakeStore{
		chars: map[int64]*schema.Characteristic{
			1: {ID: 1, SubgroupSize: 5},
		},
		sources: map[int64]*schema.DataSource{
			1: {CharacteristicID: 1, VariableN: true},
		},
	}
	e := New(store, rollingwindow.NewManager(noopLoader{}, 10, 25), &fakeBus{}, nil)

	_, err := e.ProcessSample(context.Background(), 1, []float64{1, 2}, schema.SampleContext{})
	require.NoError(t, err)
}

func TestProcessSampleRejectsUndersizedWithoutVariableN(t *testing.T) {
	store := &fakeStore{chars: map[int64]*schema.Characteristic{
		1: {ID: 1, SubgroupSize: 5},
	}}
	e := New(store, rollingwindow.NewManager(noopLoader{}, 10, 25), &fakeBus{}, nil)

	_, err := e.ProcessSample(context.Background(), 1, []float64{1, 2}, schema.SampleContext{})
	assert.ErrorIs(t, err, apperrors.ErrMeasurementCountMismatch)
}

func TestAcknowledgeViolationRejectsAlreadyAcknowledged(t *testing.T) {
	store := &fakeStore{violations: []schema.Violation{{ID: 1, Acknowledged: true}}}
	e := New(store, rollingwindow.NewManager(noopLoader{}, 10, 25), &fakeBus{}, nil)

	err := e.AcknowledgeViolation(context.Background(), 1, "alice", "noise", false)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyAcknowledged)
}

func TestAcknowledgeViolationPublishesEvent(t *testing.T) {
	store := &fakeStore{violations: []schema.Violation{{ID: 1, RuleID: 2, RequiresAcknowledgement: true}}}
	bus := &fakeBus{}
	e := New(store, rollingwindow.NewManager(noopLoader{}, 10, 25), bus, nil)

	err := e.AcknowledgeViolation(context.Background(), 1, "alice", "noise", true)
	require.NoError(t, err)
	assert.Equal(t, 1, store.ackCalls)
	require.Len(t, bus.published, 1)
	evt, ok := bus.published[0].(schema.ViolationAcknowledgedEvent)
	require.True(t, ok)
	assert.Equal(t, int64(1), evt.Violation.ID)
}

func TestAcknowledgeViolationRejectsUnknown(t *testing.T) {
	store := &fakeStore{}
	e := New(store, rollingwindow.NewManager(noopLoader{}, 10, 25), &fakeBus{}, nil)

	err := e.AcknowledgeViolation(context.Background(), 99, "alice", "noise", false)
	assert.ErrorIs(t, err, apperrors.ErrViolationNotFound)
}

func TestRecalculateLimitsWritesLimitsAndInvalidatesWindow(t *testing.T) {
	store := &fakeStore{
		chars: map[int64]*schema.Characteristic{
			1: {ID: 1, SubgroupSize: 5},
		},
		recalcMeans:  []float64{10.0, 10.2, 9.8},
		recalcSpread: []float64{1.0, 1.2, 0.8},
	}
	bus := &fakeBus{}
	windows := rollingwindow.NewManager(noopLoader{}, 10, 25)
	e := New(store, windows, bus, nil)

	_, err := windows.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, windows.Size())

	require.NoError(t, e.RecalculateLimits(context.Background(), 1, false))

	require.NotNil(t, store.lastLimits)
	assert.Equal(t, 0, windows.Size())
	require.Len(t, bus.published, 1)
	_, ok := bus.published[0].(schema.ControlLimitsUpdatedEvent)
	assert.True(t, ok)
}
