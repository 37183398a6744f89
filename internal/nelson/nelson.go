// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package nelson implements the eight Nelson pattern-detection rules
// pattern-detection rules as stateless checkers over an immutable window snapshot.
package nelson

import "github.com/openspc/openspc/pkg/schema"

// RuleResult is what a checker returns when its pattern fires.
type RuleResult struct {
	RuleID             int
	RuleName           string
	Severity           schema.Severity
	Triggered          bool
	InvolvedSampleIDs  []int64
	Message            string
}

type checker struct {
	id       int
	name     string
	minPts   int
	severity schema.Severity
	check    func(snapshot []schema.WindowSample) (fired bool, involved []schema.WindowSample)
}

var checkers = []checker{
	{1, "Outlier", 1, schema.SeverityCritical, checkOutlier},
	{2, "Shift", 9, schema.SeverityWarning, checkShift},
	{3, "Trend", 6, schema.SeverityWarning, checkTrend},
	{4, "Alternator", 14, schema.SeverityWarning, checkAlternator},
	{5, "Zone A", 3, schema.SeverityWarning, checkZoneA},
	{6, "Zone B", 5, schema.SeverityWarning, checkZoneB},
	{7, "Stratification", 15, schema.SeverityWarning, checkStratification},
	{8, "Mixture", 8, schema.SeverityWarning, checkMixture},
}

// CheckAll iterates the checkers in rule-id order, skipping any rule
// not present in enabledRules, and returns the fired results.
func CheckAll(snapshot []schema.WindowSample, enabledRules map[int]bool) []RuleResult {
	var fired []RuleResult
	for _, c := range checkers {
		if enabledRules != nil && !enabledRules[c.id] {
			continue
		}
		if len(snapshot) < c.minPts {
			continue
		}
		ok, involved := c.check(snapshot)
		if !ok {
			continue
		}
		ids := make([]int64, len(involved))
		for i, s := range involved {
			ids[i] = s.SampleID
		}
		fired = append(fired, RuleResult{
			RuleID:            c.id,
			RuleName:          c.name,
			Severity:          c.severity,
			Triggered:         true,
			InvolvedSampleIDs: ids,
			Message:           c.name + " pattern detected",
		})
	}
	return fired
}

func last(snapshot []schema.WindowSample, n int) []schema.WindowSample {
	return snapshot[len(snapshot)-n:]
}

// Rule 1: newest sample's zone is beyond_ucl or beyond_lcl.
func checkOutlier(snapshot []schema.WindowSample) (bool, []schema.WindowSample) {
	newest := snapshot[len(snapshot)-1]
	if newest.Zone == schema.ZoneBeyondUCL || newest.Zone == schema.ZoneBeyondLCL {
		return true, []schema.WindowSample{newest}
	}
	return false, nil
}

// Rule 2: last 9 all strictly above CL or all strictly below CL.
func checkShift(snapshot []schema.WindowSample) (bool, []schema.WindowSample) {
	window := last(snapshot, 9)
	allAbove, allBelow := true, true
	for _, s := range window {
		if s.SigmaDistance <= 0 {
			allAbove = false
		}
		if s.SigmaDistance >= 0 {
			allBelow = false
		}
	}
	if allAbove || allBelow {
		return true, window
	}
	return false, nil
}

// Rule 3: last 6 strictly monotonic increasing or decreasing.
func checkTrend(snapshot []schema.WindowSample) (bool, []schema.WindowSample) {
	window := last(snapshot, 6)
	increasing, decreasing := true, true
	for i := 1; i < len(window); i++ {
		if !(window[i-1].Value < window[i].Value) {
			increasing = false
		}
		if !(window[i-1].Value > window[i].Value) {
			decreasing = false
		}
	}
	if increasing || decreasing {
		return true, window
	}
	return false, nil
}

// Rule 4: among the 12 interior triplets of the last 14, direction
// reverses in all 12 (strict interpretation, see design notes).
func checkAlternator(snapshot []schema.WindowSample) (bool, []schema.WindowSample) {
	window := last(snapshot, 14)

	direction := func(i int) int {
		switch {
		case window[i].Value < window[i+1].Value:
			return -1
		case window[i].Value > window[i+1].Value:
			return 1
		default:
			return 0
		}
	}

	prevDir := direction(0)
	if prevDir == 0 {
		return false, nil
	}
	for i := 1; i < len(window)-1; i++ {
		d := direction(i)
		if d == 0 || d == prevDir {
			return false, nil
		}
		prevDir = d
	}
	return true, window
}

// Rule 5: among the last 3, >=2 in zone_a_upper|beyond_ucl, or >=2 in
// zone_a_lower|beyond_lcl.
func checkZoneA(snapshot []schema.WindowSample) (bool, []schema.WindowSample) {
	window := last(snapshot, 3)
	upper, lower := 0, 0
	for _, s := range window {
		if s.Zone == schema.ZoneAUpper || s.Zone == schema.ZoneBeyondUCL {
			upper++
		}
		if s.Zone == schema.ZoneALower || s.Zone == schema.ZoneBeyondLCL {
			lower++
		}
	}
	if upper >= 2 || lower >= 2 {
		return true, window
	}
	return false, nil
}

// Rule 6: among the last 5, >=4 in zone_b_upper|zone_a_upper|beyond_ucl,
// or symmetric lower union.
func checkZoneB(snapshot []schema.WindowSample) (bool, []schema.WindowSample) {
	window := last(snapshot, 5)
	upper, lower := 0, 0
	for _, s := range window {
		switch s.Zone {
		case schema.ZoneBUpper, schema.ZoneAUpper, schema.ZoneBeyondUCL:
			upper++
		case schema.ZoneBLower, schema.ZoneALower, schema.ZoneBeyondLCL:
			lower++
		}
	}
	if upper >= 4 || lower >= 4 {
		return true, window
	}
	return false, nil
}

// Rule 7: last 15 all within +-1 sigma (zone_c_upper | zone_c_lower).
func checkStratification(snapshot []schema.WindowSample) (bool, []schema.WindowSample) {
	window := last(snapshot, 15)
	for _, s := range window {
		if s.Zone != schema.ZoneCUpper && s.Zone != schema.ZoneCLower {
			return false, nil
		}
	}
	return true, window
}

// Rule 8: last 8 all outside +-1 sigma on either side.
func checkMixture(snapshot []schema.WindowSample) (bool, []schema.WindowSample) {
	window := last(snapshot, 8)
	for _, s := range window {
		if s.Zone == schema.ZoneCUpper || s.Zone == schema.ZoneCLower {
			return false, nil
		}
	}
	return true, window
}
