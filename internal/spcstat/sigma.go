// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package spcstat

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput      = errors.New("spcstat: input list cannot be empty")
	ErrNegativeValue   = errors.New("spcstat: values cannot be negative")
	ErrInsufficientPts = errors.New("spcstat: not enough points for this calculation")
)

// Method identifies which sigma estimator applies to a subgroup size,
// by subgroup size: n==1 -> MovingRange, 2..10 -> RBar, >=11 -> SBar.
type Method int

const (
	MethodRBar Method = iota
	MethodSBar
	MethodMovingRange
)

// MethodFor selects the estimator for subgroup size n.
func MethodFor(n int) Method {
	switch {
	case n == 1:
		return MethodMovingRange
	case n <= 10:
		return MethodRBar
	default:
		return MethodSBar
	}
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// EstimateSigmaRBar implements sigma = R-bar / d2(n) for n in [2,10].
func EstimateSigmaRBar(ranges []float64, n int) (float64, error) {
	if len(ranges) == 0 {
		return 0, ErrEmptyInput
	}
	if n < 2 || n > 10 {
		return 0, fmt.Errorf("spcstat: R-bar method requires n in [2,10], got %d", n)
	}
	for _, r := range ranges {
		if r < 0 {
			return 0, ErrNegativeValue
		}
	}
	c, err := GetConstants(n)
	if err != nil {
		return 0, err
	}
	return mean(ranges) / c.D2, nil
}

// EstimateSigmaSBar implements sigma = S-bar / c4(n) for n >= 11.
func EstimateSigmaSBar(stdDevs []float64, n int) (float64, error) {
	if len(stdDevs) == 0 {
		return 0, ErrEmptyInput
	}
	if n <= 10 {
		return 0, fmt.Errorf("spcstat: S-bar method requires n > 10, got %d", n)
	}
	for _, s := range stdDevs {
		if s < 0 {
			return 0, ErrNegativeValue
		}
	}
	c, err := GetConstants(n)
	if err != nil {
		return 0, err
	}
	return mean(stdDevs) / c.C4, nil
}

// EstimateSigmaMovingRange implements sigma = MR-bar / d2(span) for
// individuals charts (n=1). span defaults to 2 when <= 0.
func EstimateSigmaMovingRange(values []float64, span int) (float64, error) {
	if span <= 0 {
		span = 2
	}
	if span < 2 {
		return 0, fmt.Errorf("spcstat: span must be at least 2, got %d", span)
	}
	if len(values) < span {
		return 0, ErrInsufficientPts
	}

	var movingRanges []float64
	if span == 2 {
		for i := 1; i < len(values); i++ {
			d := values[i] - values[i-1]
			if d < 0 {
				d = -d
			}
			movingRanges = append(movingRanges, d)
		}
	} else {
		for i := 0; i+span <= len(values); i++ {
			window := values[i : i+span]
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
	}

	c, err := GetConstants(span)
	if err != nil {
		return 0, err
	}
	return mean(movingRanges) / c.D2, nil
}
