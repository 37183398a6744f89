// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package spcstat

import (
	"fmt"
	"math"
)

// ControlLimits is the center line, control limits and process sigma
// for one chart (X-bar, R, I or MR).
type ControlLimits struct {
	CenterLine float64
	UCL        float64
	LCL        float64
	Sigma      float64
}

// XbarRLimits bundles the means-chart and range-chart limits produced
// together by CalculateXbarRLimits/CalculateIMRLimits.
type XbarRLimits struct {
	XbarLimits ControlLimits
	RLimits    ControlLimits
}

// CalculateXbarRLimits implements the X-bar/R chart for
// subgrouped data, n in [2,10].
func CalculateXbarRLimits(means, ranges []float64, n int) (XbarRLimits, error) {
	if len(means) == 0 || len(ranges) == 0 {
		return XbarRLimits{}, ErrEmptyInput
	}
	if len(means) != len(ranges) {
		return XbarRLimits{}, fmt.Errorf("spcstat: means (%d) and ranges (%d) must have the same length", len(means), len(ranges))
	}
	if n < 2 || n > 10 {
		return XbarRLimits{}, fmt.Errorf("spcstat: subgroup size must be in [2,10], got %d", n)
	}
	for _, r := range ranges {
		if r < 0 {
			return XbarRLimits{}, ErrNegativeValue
		}
	}

	c, err := GetConstants(n)
	if err != nil {
		return XbarRLimits{}, err
	}

	xbar := mean(means)
	rBar := mean(ranges)

	sigma, err := EstimateSigmaRBar(ranges, n)
	if err != nil {
		return XbarRLimits{}, err
	}

	xbarLimits := ControlLimits{
		CenterLine: xbar,
		UCL:        xbar + c.A2*rBar,
		LCL:        xbar - c.A2*rBar,
		Sigma:      sigma,
	}

	rLimits := ControlLimits{
		CenterLine: rBar,
		UCL:        c.D4 * rBar,
		LCL:        c.D3 * rBar,
		Sigma:      sigma,
	}

	return XbarRLimits{XbarLimits: xbarLimits, RLimits: rLimits}, nil
}

// CalculateIMRLimits implements the I-MR chart for n=1.
// span defaults to 2 when <= 0.
func CalculateIMRLimits(values []float64, span int) (XbarRLimits, error) {
	if span <= 0 {
		span = 2
	}
	if len(values) < span {
		return XbarRLimits{}, ErrInsufficientPts
	}

	xBar := mean(values)
	sigma, err := EstimateSigmaMovingRange(values, span)
	if err != nil {
		return XbarRLimits{}, err
	}

	iLimits := ControlLimits{
		CenterLine: xBar,
		UCL:        xBar + 3*sigma,
		LCL:        xBar - 3*sigma,
		Sigma:      sigma,
	}

	var movingRanges []float64
	for i := span; i <= len(values); i++ {
		window := values[i-span : i]
		lo, hi := window[0], window[0]
		for _, v := range window[1:] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		movingRanges = append(movingRanges, hi-lo)
	}
	mrBar := mean(movingRanges)

	c, err := GetConstants(span)
	if err != nil {
		return XbarRLimits{}, err
	}

	mrLimits := ControlLimits{
		CenterLine: mrBar,
		UCL:        c.D4 * mrBar,
		LCL:        c.D3 * mrBar,
		Sigma:      sigma,
	}

	return XbarRLimits{XbarLimits: iLimits, RLimits: mrLimits}, nil
}

// CalculateXbarSLimits implements the X-bar/S chart for subgrouped
// data with n >= 11, where the range chart stops being an efficient
// sigma estimator. The S chart's own B3/B4 limits are not tabulated
// here (out of scope for this estimator), so RLimits carries only its
// center line and the shared process sigma.
func CalculateXbarSLimits(means, stdDevs []float64, n int) (XbarRLimits, error) {
	if len(means) == 0 || len(stdDevs) == 0 {
		return XbarRLimits{}, ErrEmptyInput
	}
	if len(means) != len(stdDevs) {
		return XbarRLimits{}, fmt.Errorf("spcstat: means (%d) and stdDevs (%d) must have the same length", len(means), len(stdDevs))
	}
	if n <= 10 {
		return XbarRLimits{}, fmt.Errorf("spcstat: X-bar/S method requires n > 10, got %d", n)
	}

	sigma, err := EstimateSigmaSBar(stdDevs, n)
	if err != nil {
		return XbarRLimits{}, err
	}

	xbar := mean(means)
	sigmaOfMean := sigma / math.Sqrt(float64(n))

	xbarLimits := ControlLimits{
		CenterLine: xbar,
		UCL:        xbar + 3*sigmaOfMean,
		LCL:        xbar - 3*sigmaOfMean,
		Sigma:      sigma,
	}
	sLimits := ControlLimits{
		CenterLine: mean(stdDevs),
		Sigma:      sigma,
	}

	return XbarRLimits{XbarLimits: xbarLimits, RLimits: sLimits}, nil
}

// CalculateControlLimitsFromSigma derives UCL/LCL from an
// already-known center line and sigma (used when RecalculateLimits
// writes back limits computed a different way than X-bar/R or I-MR,
// e.g. when seeded externally).
func CalculateControlLimitsFromSigma(centerLine, sigma, nSigma float64) (ControlLimits, error) {
	if sigma <= 0 {
		return ControlLimits{}, fmt.Errorf("spcstat: sigma must be positive, got %f", sigma)
	}
	if nSigma < 0 {
		return ControlLimits{}, fmt.Errorf("spcstat: nSigma cannot be negative, got %f", nSigma)
	}
	return ControlLimits{
		CenterLine: centerLine,
		UCL:        centerLine + nSigma*sigma,
		LCL:        centerLine - nSigma*sigma,
		Sigma:      sigma,
	}, nil
}

// CalculateMeanRange returns the subgroup mean and, for n>1, the
// range (max-min). Range is nil for single-value subgroups.
func CalculateMeanRange(values []float64) (float64, *float64) {
	if len(values) == 0 {
		return 0, nil
	}
	m := mean(values)
	if len(values) == 1 {
		return m, nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	r := hi - lo
	return m, &r
}
