// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package subgroup converts a stream of raw readings into subgroup
// vectors: a FIFO buffer per characteristic, plus the
// on_change/on_trigger/on_timer trigger strategies and the timeout
// sweep that flushes stale partial subgroups. Each characteristic's
// buffer has its own mutex, mirroring the per-metric locking the
// teacher's in-memory store uses for its buffer chains.
package subgroup

import (
	"sync"
	"time"

	"github.com/openspc/openspc/pkg/schema"
)

// TagConfig is the static description of one ingress binding: which
// characteristic it feeds, how many readings make a subgroup, and how
// they should be grouped.
type TagConfig struct {
	CharacteristicID int64
	SourceIdentifier string
	SubgroupSize     int
	TriggerStrategy  schema.TriggerStrategy
	TriggerTag       *string
	MetricName       *string
}

// buffer is the per-characteristic FIFO of pending readings.
type buffer struct {
	mu         sync.Mutex
	values     []float64
	lastUpdate time.Time
}

// Manager owns one buffer per characteristic and applies the trigger
// strategy declared by that characteristic's TagConfig on every
// arriving reading.
type Manager struct {
	mu      sync.Mutex
	buffers map[int64]*buffer
	configs map[int64]TagConfig

	timeoutSeconds int
	onFlush        func(schema.SampleEvent)
}

// NewManager builds a buffer manager. onFlush is invoked (outside any
// buffer lock) every time a subgroup completes or is force-flushed by
// the timeout sweep. timeoutSeconds defaults to 60 when <= 0.
func NewManager(timeoutSeconds int, onFlush func(schema.SampleEvent)) *Manager {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}
	return &Manager{
		buffers:        map[int64]*buffer{},
		configs:        map[int64]TagConfig{},
		timeoutSeconds: timeoutSeconds,
		onFlush:        onFlush,
	}
}

// Register binds a TagConfig to its characteristic, creating an empty
// buffer for it if one doesn't already exist.
func (m *Manager) Register(cfg TagConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.CharacteristicID] = cfg
	if _, ok := m.buffers[cfg.CharacteristicID]; !ok {
		m.buffers[cfg.CharacteristicID] = &buffer{}
	}
}

func (m *Manager) bufferFor(charID int64) (*buffer, TagConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[charID]
	if !ok {
		return nil, TagConfig{}, false
	}
	b := m.buffers[charID]
	return b, cfg, true
}

// Push appends one raw reading for charID and applies its trigger
// strategy, possibly flushing a SampleEvent through onFlush.
func (m *Manager) Push(charID int64, value float64, ctx schema.SampleContext) {
	b, cfg, ok := m.bufferFor(charID)
	if !ok {
		return
	}

	switch cfg.TriggerStrategy {
	case schema.OnChange:
		m.pushOnChange(b, cfg, value, ctx)
	case schema.OnTrigger, schema.OnTimer:
		m.appendOnly(b, value)
	}
}

// Trigger forces a flush for charID regardless of fill level; used by
// the on_trigger strategy when its trigger_tag fires. A flush of an
// empty buffer is a no-op.
func (m *Manager) Trigger(charID int64, ctx schema.SampleContext) {
	b, cfg, ok := m.bufferFor(charID)
	if !ok || cfg.TriggerStrategy != schema.OnTrigger {
		return
	}
	m.flushIfNonEmpty(b, cfg, ctx)
}

func (m *Manager) pushOnChange(b *buffer, cfg TagConfig, value float64, ctx schema.SampleContext) {
	b.mu.Lock()
	b.values = append(b.values, value)
	b.lastUpdate = time.Now()
	full := len(b.values) == cfg.SubgroupSize
	var flushed []float64
	if full {
		flushed = b.values
		b.values = nil
	}
	b.mu.Unlock()

	if full {
		m.emit(cfg, flushed, ctx)
	}
}

func (m *Manager) appendOnly(b *buffer, value float64) {
	b.mu.Lock()
	b.values = append(b.values, value)
	b.lastUpdate = time.Now()
	b.mu.Unlock()
}

func (m *Manager) flushIfNonEmpty(b *buffer, cfg TagConfig, ctx schema.SampleContext) {
	b.mu.Lock()
	if len(b.values) == 0 {
		b.mu.Unlock()
		return
	}
	flushed := b.values
	b.values = nil
	b.mu.Unlock()

	m.emit(cfg, flushed, ctx)
}

func (m *Manager) emit(cfg TagConfig, values []float64, ctx schema.SampleContext) {
	if m.onFlush == nil {
		return
	}
	m.onFlush(schema.SampleEvent{
		CharacteristicID: cfg.CharacteristicID,
		Measurements:     values,
		Context:          ctx,
	})
}
