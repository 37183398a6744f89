// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package spcstat

import (
	"fmt"

	"github.com/openspc/openspc/pkg/schema"
)

// ZoneThresholds is the six sigma-multiple boundaries derived from a
// center line and process sigma, used to classify samples into zones
// and, downstream, to evaluate Nelson rules.
type ZoneThresholds struct {
	CenterLine float64
	Plus1Sigma float64
	Plus2Sigma float64
	Plus3Sigma float64
	Minus1Sigma float64
	Minus2Sigma float64
	Minus3Sigma float64
}

// CalculateZoneThresholds derives the six boundaries from CL and sigma.
func CalculateZoneThresholds(centerLine, sigma float64) (ZoneThresholds, error) {
	if sigma <= 0 {
		return ZoneThresholds{}, fmt.Errorf("spcstat: sigma must be positive, got %f", sigma)
	}
	return ZoneThresholds{
		CenterLine:  centerLine,
		Plus1Sigma:  centerLine + sigma,
		Plus2Sigma:  centerLine + 2*sigma,
		Plus3Sigma:  centerLine + 3*sigma,
		Minus1Sigma: centerLine - sigma,
		Minus2Sigma: centerLine - 2*sigma,
		Minus3Sigma: centerLine - 3*sigma,
	}, nil
}

// ClassifyZone maps value to one of the eight zone labels (A/B/C on
// either side of the center line).
func ClassifyZone(value float64, z ZoneThresholds) schema.Zone {
	switch {
	case value >= z.Plus3Sigma:
		return schema.ZoneBeyondUCL
	case value >= z.Plus2Sigma:
		return schema.ZoneAUpper
	case value >= z.Plus1Sigma:
		return schema.ZoneBUpper
	case value >= z.CenterLine:
		return schema.ZoneCUpper
	case value >= z.Minus1Sigma:
		return schema.ZoneCLower
	case value >= z.Minus2Sigma:
		return schema.ZoneBLower
	case value >= z.Minus3Sigma:
		return schema.ZoneALower
	default:
		return schema.ZoneBeyondLCL
	}
}

// SigmaDistance returns the signed number of sigmas value sits from
// the center line.
func SigmaDistance(value, centerLine, sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	return (value - centerLine) / sigma
}
