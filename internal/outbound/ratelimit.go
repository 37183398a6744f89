// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package outbound

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateKey identifies one (broker, characteristic) publish stream.
type rateKey struct {
	brokerID int64
	charID   int64
}

// limiterEntry pairs a token bucket with the last time it was touched,
// so idle entries can be pruned instead of accumulating forever as new
// characteristics come and go.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// rateGate enforces a minimum interval between publishes for each
// distinct (broker, characteristic) pair.
type rateGate struct {
	mu       sync.Mutex
	minGap   map[int64]time.Duration
	entries  map[rateKey]*limiterEntry
	nowFn    func() time.Time
}

func newRateGate() *rateGate {
	return &rateGate{
		minGap:  map[int64]time.Duration{},
		entries: map[rateKey]*limiterEntry{},
		nowFn:   time.Now,
	}
}

// setMinInterval configures the minimum gap between publishes for a
// given broker. A non-positive interval disables rate limiting for it.
func (g *rateGate) setMinInterval(brokerID int64, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.minGap[brokerID] = d
}

// allow reports whether a publish on (brokerID, charID) may proceed
// right now, consuming a token if so.
func (g *rateGate) allow(brokerID, charID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	gap := g.minGap[brokerID]
	if gap <= 0 {
		return true
	}

	key := rateKey{brokerID: brokerID, charID: charID}
	e, ok := g.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Every(gap), 1)}
		g.entries[key] = e
	}
	now := g.nowFn()
	e.lastUsed = now
	return e.limiter.AllowN(now, 1)
}

// pruneStale drops limiter entries untouched for longer than maxAge,
// so a rarely-seen characteristic doesn't keep a bucket alive forever.
func (g *rateGate) pruneStale(maxAge time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.nowFn()
	pruned := 0
	for key, e := range g.entries {
		if now.Sub(e.lastUsed) > maxAge {
			delete(g.entries, key)
			pruned++
		}
	}
	return pruned
}
