// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package rollingwindow

import (
	"context"
	"testing"
	"time"

	"github.com/openspc/openspc/internal/spcstat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	calls int
}

func (f *fakeLoader) LoadWindowSeed(ctx context.Context, charID int64, size int) (float64, float64, []WindowSeedEntry, error) {
	f.calls++
	return 100.0, 2.0, nil, nil
}

func TestManagerGetLazyLoadsOnce(t *testing.T) {
	loader := &fakeLoader{}
	m := NewManager(loader, 10, 25)

	w1, err := m.Get(context.Background(), 1)
	require.NoError(t, err)
	w2, err := m.Get(context.Background(), 1)
	require.NoError(t, err)

	assert.Same(t, w1, w2)
	assert.Equal(t, 1, loader.calls)
}

func TestManagerInvalidate(t *testing.T) {
	loader := &fakeLoader{}
	m := NewManager(loader, 10, 25)

	_, err := m.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Size())

	m.Invalidate(1)
	assert.Equal(t, 0, m.Size())

	_, err = m.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)
}

func TestManagerEvictsOldestTouchOnOverflow(t *testing.T) {
	loader := &fakeLoader{}
	m := NewManager(loader, 2, 25)

	ctx := context.Background()
	_, _ = m.Get(ctx, 1)
	_, _ = m.Get(ctx, 2)
	_, _ = m.Get(ctx, 1) // touch 1, so 2 is now the least-recently-used
	_, _ = m.Get(ctx, 3) // overflow: evicts 2

	ids := m.CachedIDs()
	assert.ElementsMatch(t, []int64{1, 3}, ids)
}

func TestWindowAppendSampleBoundedAtSize(t *testing.T) {
	thresholds, err := spcstat.CalculateZoneThresholds(100.0, 2.0)
	require.NoError(t, err)
	w := NewWindow(1, 3, thresholds)

	for i := 0; i < 5; i++ {
		w.Lock()
		w.AppendSample(int64(i), time.Now(), 100.0, nil)
		w.Unlock()
	}

	assert.Len(t, w.Snapshot(), 3)
	snap := w.Snapshot()
	assert.Equal(t, int64(2), snap[0].SampleID)
	assert.Equal(t, int64(4), snap[2].SampleID)
}
