// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package nelson

import (
	"testing"

	"github.com/openspc/openspc/pkg/schema"
	"github.com/stretchr/testify/assert"
)

func sampleAt(id int64, zone schema.Zone, value, sigmaDist float64) schema.WindowSample {
	return schema.WindowSample{
		SampleID:      id,
		Value:         value,
		Zone:          zone,
		IsAboveCenter: sigmaDist >= 0,
		SigmaDistance: sigmaDist,
	}
}

func TestCheckOutlier(t *testing.T) {
	window := make([]schema.WindowSample, 25)
	for i := range window {
		window[i] = sampleAt(int64(i), schema.ZoneCUpper, 100, 0)
	}
	window = append(window, sampleAt(25, schema.ZoneBeyondUCL, 110, 5))

	results := CheckAll(window, nil)
	require := []int{1}
	found := false
	for _, r := range results {
		if r.RuleID == 1 {
			found = true
			assert.Equal(t, schema.SeverityCritical, r.Severity)
			assert.Equal(t, []int64{25}, r.InvolvedSampleIDs)
		}
	}
	assert.True(t, found)
	_ = require
}

func TestCheckShiftFiresExactlyOnNinth(t *testing.T) {
	for n := 1; n <= 10; n++ {
		window := make([]schema.WindowSample, 0, n)
		for i := 0; i < n; i++ {
			window = append(window, sampleAt(int64(i), schema.ZoneCUpper, 102.5, 1.25))
		}
		results := CheckAll(window, nil)
		fired := false
		for _, r := range results {
			if r.RuleID == 2 {
				fired = true
			}
		}
		if n < 9 {
			assert.False(t, fired, "rule 2 should not fire before 9 points (n=%d)", n)
		} else {
			assert.True(t, fired, "rule 2 should fire once 9 points accumulated (n=%d)", n)
		}
	}
}

func TestCheckTrendFiresOnSixth(t *testing.T) {
	values := []float64{97, 99, 101, 103, 104.5, 105.5}
	window := make([]schema.WindowSample, len(values))
	for i, v := range values {
		window[i] = sampleAt(int64(i), schema.ZoneCUpper, v, 0)
	}
	results := CheckAll(window, nil)
	fired := false
	for _, r := range results {
		if r.RuleID == 3 {
			fired = true
		}
	}
	assert.True(t, fired)
}

func TestCheckZoneAFiresOnThird(t *testing.T) {
	window := []schema.WindowSample{
		sampleAt(0, schema.ZoneAUpper, 105, 2.5),
		sampleAt(1, schema.ZoneCUpper, 100, 0),
		sampleAt(2, schema.ZoneAUpper, 105, 2.5),
	}
	results := CheckAll(window, nil)
	fired := false
	for _, r := range results {
		if r.RuleID == 5 {
			fired = true
		}
	}
	assert.True(t, fired)
}

func TestEnabledRulesFilter(t *testing.T) {
	window := make([]schema.WindowSample, 25)
	for i := range window {
		window[i] = sampleAt(int64(i), schema.ZoneCUpper, 100, 0)
	}
	window = append(window, sampleAt(25, schema.ZoneBeyondUCL, 110, 5))

	results := CheckAll(window, map[int]bool{2: true})
	for _, r := range results {
		assert.NotEqual(t, 1, r.RuleID, "rule 1 should be filtered out by enabledRules")
	}
}

func TestCheckStratificationAndMixture(t *testing.T) {
	within := make([]schema.WindowSample, 15)
	for i := range within {
		within[i] = sampleAt(int64(i), schema.ZoneCUpper, 100.1, 0.05)
	}
	results := CheckAll(within, nil)
	found7 := false
	for _, r := range results {
		if r.RuleID == 7 {
			found7 = true
		}
	}
	assert.True(t, found7)

	outside := make([]schema.WindowSample, 8)
	for i := range outside {
		outside[i] = sampleAt(int64(i), schema.ZoneBUpper, 103, 1.5)
	}
	results = CheckAll(outside, nil)
	found8 := false
	for _, r := range results {
		if r.RuleID == 8 {
			found8 = true
		}
	}
	assert.True(t, found8)
}
