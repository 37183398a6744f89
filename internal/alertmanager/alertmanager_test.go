// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package alertmanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openspc/openspc/internal/repository"
	"github.com/openspc/openspc/pkg/schema"
)

type fakeAcknowledger struct {
	err error
}

func (f *fakeAcknowledger) AcknowledgeViolation(ctx context.Context, id int64, user, reason string, excludeSample bool) error {
	return f.err
}

type fakeStatsStore struct {
	result *repository.ViolationStatsResult
}

func (f *fakeStatsStore) ViolationStats(ctx context.Context, filter repository.ViolationStatsFilter) (*repository.ViolationStatsResult, error) {
	return f.result, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []schema.Violation
}

func (n *recordingNotifier) Notify(ctx context.Context, v schema.Violation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, v)
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(ctx context.Context, v schema.Violation) {
	panic("boom")
}

func TestHandleFansOutToAllNotifiers(t *testing.T) {
	m := New(&fakeAcknowledger{}, &fakeStatsStore{})
	n1, n2 := &recordingNotifier{}, &recordingNotifier{}
	m.RegisterNotifier(n1)
	m.RegisterNotifier(n2)

	v := schema.Violation{ID: 42, RuleID: 1}
	err := m.Handle(schema.ViolationCreatedEvent{Violation: v, Timestamp: time.Now()})
	require.NoError(t, err)

	assert.Equal(t, []schema.Violation{v}, n1.seen)
	assert.Equal(t, []schema.Violation{v}, n2.seen)
}

func TestHandleIsolatesPanickingNotifier(t *testing.T) {
	m := New(&fakeAcknowledger{}, &fakeStatsStore{})
	m.RegisterNotifier(panickingNotifier{})
	good := &recordingNotifier{}
	m.RegisterNotifier(good)

	err := m.Handle(schema.ViolationCreatedEvent{Violation: schema.Violation{ID: 1}, Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Len(t, good.seen, 1, "notifier registered after a panicking one still runs")
}

func TestHandleRejectsWrongEventClass(t *testing.T) {
	m := New(&fakeAcknowledger{}, &fakeStatsStore{})
	err := m.Handle(schema.SampleProcessedEvent{Timestamp: time.Now()})
	assert.Error(t, err)
}

func TestAcknowledgeDelegatesToEngine(t *testing.T) {
	wantErr := errors.New("boom")
	m := New(&fakeAcknowledger{err: wantErr}, &fakeStatsStore{})
	err := m.Acknowledge(context.Background(), 1, "operator", "noise", false)
	assert.ErrorIs(t, err, wantErr)
}

func TestStatsDelegatesToStore(t *testing.T) {
	want := &repository.ViolationStatsResult{Total: 3}
	m := New(&fakeAcknowledger{}, &fakeStatsStore{result: want})
	got, err := m.Stats(context.Background(), repository.ViolationStatsFilter{})
	require.NoError(t, err)
	assert.Same(t, want, got)
}
