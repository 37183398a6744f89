// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package alertmanager is the thin orchestrator sitting between the
// engine's violation lifecycle and the outside world: it delegates
// acknowledgement to internal/engine, fans fired violations out to
// registered AlertNotifiers, and answers the stats breakdown queries
// internal/api's violation endpoints serve, grounded on the teacher's
// old aggregate job-stats query shape generalised to violations.
package alertmanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/openspc/openspc/internal/repository"
	"github.com/openspc/openspc/pkg/log"
	"github.com/openspc/openspc/pkg/schema"
)

// Acknowledger is the subset of internal/engine.Engine this package
// delegates acknowledgement to.
type Acknowledger interface {
	AcknowledgeViolation(ctx context.Context, violationID int64, user, reason string, excludeSample bool) error
}

// StatsStore is the subset of internal/repository.Repository the
// stats queries run against.
type StatsStore interface {
	ViolationStats(ctx context.Context, filter repository.ViolationStatsFilter) (*repository.ViolationStatsResult, error)
}

// AlertNotifier receives every fired violation, in addition to
// whatever bus subscribers (internal/live, internal/outbound) already
// receive the raw event. Registered notifiers are for side channels
// that are not eventbus.Handlers themselves, e.g. an email/SMS bridge.
type AlertNotifier interface {
	Notify(ctx context.Context, v schema.Violation)
}

// Manager orchestrates violation acknowledgement, notifier fan-out and
// stats reporting.
type Manager struct {
	engine Acknowledger
	store  StatsStore

	mu        sync.RWMutex
	notifiers []AlertNotifier

	logger *log.ComponentLogger
}

// New builds a Manager. Register notifiers with RegisterNotifier, then
// subscribe Manager.Handle to the bus's "violation_created" class.
func New(engine Acknowledger, store StatsStore) *Manager {
	return &Manager{
		engine: engine,
		store:  store,
		logger: log.Component("ALERTMANAGER"),
	}
}

// RegisterNotifier adds n to the fan-out list. It is safe to call
// concurrently with Handle; a dispatch already in progress uses the
// list as it was when that dispatch began.
func (m *Manager) RegisterNotifier(n AlertNotifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// Handle implements eventbus.Handler for the "violation_created"
// class: it fans the violation out to every registered notifier,
// isolating a panicking notifier the same way eventbus.Bus isolates
// panicking handlers.
func (m *Manager) Handle(e schema.Event) error {
	vce, ok := e.(schema.ViolationCreatedEvent)
	if !ok {
		return fmt.Errorf("alertmanager: unexpected event class %q", e.EventClass())
	}

	m.mu.RLock()
	notifiers := make([]AlertNotifier, len(m.notifiers))
	copy(notifiers, m.notifiers)
	m.mu.RUnlock()

	for _, n := range notifiers {
		m.notifySafely(n, vce.Violation)
	}
	return nil
}

func (m *Manager) notifySafely(n AlertNotifier, v schema.Violation) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf("notifier panicked for violation %d: %v", v.ID, r)
		}
	}()
	n.Notify(context.Background(), v)
}

// Acknowledge delegates to the engine; errors (not found, already
// acknowledged) pass through unwrapped so internal/api can map them by
// apperrors.Kind.
func (m *Manager) Acknowledge(ctx context.Context, violationID int64, user, reason string, excludeSample bool) error {
	return m.engine.AcknowledgeViolation(ctx, violationID, user, reason, excludeSample)
}

// Stats answers a breakdown query: total, unacknowledged, and
// per-rule/severity/characteristic counts for the filtered violation
// set.
func (m *Manager) Stats(ctx context.Context, filter repository.ViolationStatsFilter) (*repository.ViolationStatsResult, error) {
	return m.store.ViolationStats(ctx, filter)
}
