// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "time"

// Zone is the classification of a subgroup mean against the
// characteristic's control limits.
type Zone string

const (
	ZoneBeyondUCL  Zone = "beyond_ucl"
	ZoneAUpper     Zone = "zone_a_upper"
	ZoneBUpper     Zone = "zone_b_upper"
	ZoneCUpper     Zone = "zone_c_upper"
	ZoneCLower     Zone = "zone_c_lower"
	ZoneBLower     Zone = "zone_b_lower"
	ZoneALower     Zone = "zone_a_lower"
	ZoneBeyondLCL  Zone = "beyond_lcl"
)

// ZoneBoundaries is the set of sigma-multiple thresholds a window
// classifies samples against.
type ZoneBoundaries struct {
	CenterLine float64
	Sigma      float64
}

// WindowSample is one classified entry inside a RollingWindow.
type WindowSample struct {
	SampleID      int64
	Timestamp     time.Time
	Value         float64
	Range         *float64
	Zone          Zone
	IsAboveCenter bool
	SigmaDistance float64
}
