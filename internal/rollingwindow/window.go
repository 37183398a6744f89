// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package rollingwindow

import (
	"errors"
	"sync"
	"time"

	"github.com/openspc/openspc/internal/spcstat"
	"github.com/openspc/openspc/pkg/schema"
)

var errNotCached = errors.New("rollingwindow: not cached")

// DefaultSize is the default window size W used when a characteristic
// doesn't override it.
const DefaultSize = 25

// DefaultCapacity is the default maximum number of cached
// characteristic windows (the LRU's capacity).
const DefaultCapacity = 1000

// Window is the bounded, newest-at-tail sequence of classified
// subgroups for one characteristic, plus its current zone thresholds.
// Each Window serialises its own writes: the engine holds mu across a
// full ProcessSample cycle for the characteristic that owns it, giving
// independent characteristics lock-free parallelism.
type Window struct {
	mu sync.Mutex

	CharID     int64
	Size       int
	entries    []schema.WindowSample
	Thresholds spcstat.ZoneThresholds
}

// NewWindow creates an empty window bounded at size (DefaultSize if
// size <= 0) under the given zone thresholds.
func NewWindow(charID int64, size int, thresholds spcstat.ZoneThresholds) *Window {
	if size <= 0 {
		size = DefaultSize
	}
	return &Window{CharID: charID, Size: size, Thresholds: thresholds}
}

// Lock/Unlock expose the per-characteristic mutex so the engine can
// hold it across persist+classify+rule-evaluation for one sample.
func (w *Window) Lock()   { w.mu.Lock() }
func (w *Window) Unlock() { w.mu.Unlock() }

// Snapshot returns a copy of the window's entries, oldest first, safe
// to hand to the Nelson rule library without holding the lock.
func (w *Window) Snapshot() []schema.WindowSample {
	out := make([]schema.WindowSample, len(w.entries))
	copy(out, w.entries)
	return out
}

// AppendSample classifies and appends one subgroup mean to the window,
// evicting the oldest entry if the window is already at capacity
// Appending when full drops exactly the oldest entry.
// Caller must hold the lock (the engine calls this from within the
// characteristic's locked section).
func (w *Window) AppendSample(sampleID int64, ts time.Time, mean float64, rng *float64) schema.WindowSample {
	zone := spcstat.ClassifyZone(mean, w.Thresholds)
	entry := schema.WindowSample{
		SampleID:      sampleID,
		Timestamp:     ts,
		Value:         mean,
		Range:         rng,
		Zone:          zone,
		IsAboveCenter: mean >= w.Thresholds.CenterLine,
		SigmaDistance: spcstat.SigmaDistance(mean, w.Thresholds.CenterLine, sigmaFromThresholds(w.Thresholds)),
	}

	w.entries = append(w.entries, entry)
	if len(w.entries) > w.Size {
		w.entries = w.entries[len(w.entries)-w.Size:]
	}
	return entry
}

func sigmaFromThresholds(z spcstat.ZoneThresholds) float64 {
	return z.Plus1Sigma - z.CenterLine
}
