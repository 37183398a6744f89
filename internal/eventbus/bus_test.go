// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package eventbus

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openspc/openspc/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishIsNonBlockingAndDispatchesToAllHandlers(t *testing.T) {
	b := New()
	var calls int32

	b.Subscribe("sample_processed", func(e schema.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	b.Subscribe("sample_processed", func(e schema.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	b.Publish(schema.SampleProcessedEvent{Timestamp: time.Now()})
	b.Shutdown()

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPublishAndWaitIsolatesHandlerErrors(t *testing.T) {
	b := New()
	var ranSecond int32

	b.Subscribe("violation_created", func(e schema.Event) error {
		return errors.New("boom")
	})
	b.Subscribe("violation_created", func(e schema.Event) error {
		atomic.AddInt32(&ranSecond, 1)
		return nil
	})

	errs := b.PublishAndWait(schema.ViolationCreatedEvent{Timestamp: time.Now()})
	require.Len(t, errs, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ranSecond))
}

func TestPublishAndWaitIsolatesPanics(t *testing.T) {
	b := New()
	b.Subscribe("violation_acknowledged", func(e schema.Event) error {
		panic("handler exploded")
	})

	errs := b.PublishAndWait(schema.ViolationAcknowledgedEvent{Timestamp: time.Now()})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "handler panic")
}

func TestUnsubscribedClassIsNoOp(t *testing.T) {
	b := New()
	errs := b.PublishAndWait(schema.ControlLimitsUpdatedEvent{Timestamp: time.Now()})
	assert.Empty(t, errs)
}
