// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package subgroup

import (
	"context"
	"time"

	"github.com/openspc/openspc/pkg/log"
	"github.com/openspc/openspc/pkg/schema"
)

// sweepInterval is how often the timeout sweep checks buffer ages.
const sweepInterval = 5 * time.Second

// RunTimeoutSweep flushes any buffer (on_timer, or on_change with a
// pending partial subgroup) whose last update is older than the
// manager's configured timeout. It runs until ctx is cancelled.
func (m *Manager) RunTimeoutSweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	logger := log.Component("SUBGROUP")
	timeout := time.Duration(m.timeoutSeconds) * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sweepOnce(now, timeout, logger)
		}
	}
}

func (m *Manager) sweepOnce(now time.Time, timeout time.Duration, logger *log.ComponentLogger) {
	m.mu.Lock()
	due := make([]int64, 0)
	for charID, b := range m.buffers {
		cfg := m.configs[charID]
		if cfg.TriggerStrategy != schema.OnTimer && cfg.TriggerStrategy != schema.OnChange {
			continue
		}
		b.mu.Lock()
		stale := len(b.values) > 0 && now.Sub(b.lastUpdate) > timeout
		b.mu.Unlock()
		if stale {
			due = append(due, charID)
		}
	}
	m.mu.Unlock()

	for _, charID := range due {
		b, cfg, ok := m.bufferFor(charID)
		if !ok {
			continue
		}

		b.mu.Lock()
		if len(b.values) == 0 || now.Sub(b.lastUpdate) <= timeout {
			b.mu.Unlock()
			continue
		}
		flushed := b.values
		b.values = nil
		b.mu.Unlock()

		logger.Infof("timeout flush characteristic=%d actual_n=%d subgroup_size=%d", charID, len(flushed), cfg.SubgroupSize)
		m.emit(cfg, flushed, schema.SampleContext{Source: schema.SampleSourceTag})
	}
}
