// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package rollingwindow

import (
	"context"
	"time"

	"github.com/openspc/openspc/internal/spcstat"
)

// HistoryLoader fetches the newest W persisted samples (with their
// subgroup mean and range already known) for a characteristic, oldest
// first, along with the characteristic's stored CL/sigma. It is the
// seam the window manager calls through on a cache miss; internal/repository
// provides the concrete implementation.
type HistoryLoader interface {
	LoadWindowSeed(ctx context.Context, charID int64, size int) (centerLine, sigma float64, history []WindowSeedEntry, err error)
}

// WindowSeedEntry is one historical subgroup used to backfill a window
// on cache miss.
type WindowSeedEntry struct {
	SampleID  int64
	Timestamp time.Time
	Mean      float64
	Range     *float64
}

// Manager is the LRU cache mapping char_id -> *Window: lazy DB
// backfill on miss, a per-characteristic mutex,
// invalidate-on-boundary-recompute.
type Manager struct {
	cache  *lruCache[int64, *Window]
	loader HistoryLoader
	size   int
}

// NewManager builds a window manager with the given LRU capacity
// (cached characteristics) and per-window size (subgroups retained).
// Zero values fall back to DefaultCapacity/DefaultSize.
func NewManager(loader HistoryLoader, capacity, windowSize int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if windowSize <= 0 {
		windowSize = DefaultSize
	}
	return &Manager{
		cache:  newLRUCache[int64, *Window](capacity),
		loader: loader,
		size:   windowSize,
	}
}

// Get returns the window for charID, lazily loading it from storage
// under the given already-known CL/sigma on a cache miss.
func (m *Manager) Get(ctx context.Context, charID int64) (*Window, error) {
	return m.cache.get(charID, func() (*Window, error) {
		centerLine, sigma, history, err := m.loader.LoadWindowSeed(ctx, charID, m.size)
		if err != nil {
			return nil, err
		}

		thresholds, err := spcstat.CalculateZoneThresholds(centerLine, sigma)
		if err != nil {
			// No limits yet for this characteristic: start an empty
			// window with neutral thresholds: classification is
			// meaningless until RecalculateLimits runs, matching
			// engine step 4's zone=null short-circuit.
			thresholds = spcstat.ZoneThresholds{CenterLine: centerLine}
		}

		w := NewWindow(charID, m.size, thresholds)
		for _, h := range history {
			w.AppendSample(h.SampleID, h.Timestamp, h.Mean, h.Range)
		}
		return w, nil
	})
}

// Put seeds or replaces the cached window for charID outright, e.g.
// after constructing one synchronously instead of through Get.
func (m *Manager) Put(charID int64, w *Window) {
	m.cache.put(charID, w)
}

// Invalidate evicts the cached window for charID; used after boundary
// recomputation.
func (m *Manager) Invalidate(charID int64) {
	m.cache.del(charID)
}

// Size returns the number of currently cached windows.
func (m *Manager) Size() int {
	return m.cache.size()
}

// CachedIDs returns the characteristic ids currently cached.
func (m *Manager) CachedIDs() []int64 {
	return m.cache.keys()
}
