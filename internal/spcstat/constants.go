// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package spcstat implements the pure statistics functions a control
// chart needs: the ASTM E2587 constants table, sigma estimators,
// control-limit calculators and zone classification. Nothing in this
// package touches I/O or process state.
package spcstat

import "github.com/openspc/openspc/pkg/apperrors"

// Constants holds the tabulated factors for one subgroup size.
type Constants struct {
	N  int
	D2 float64
	C4 float64
	A2 float64
	D3 float64
	D4 float64
}

// table is the ASTM E2587 / NIST Engineering Statistics Handbook
// constants for subgroup sizes 1 through 25.
var table = map[int]Constants{
	1:  {N: 1, D2: 1.128, C4: 0.7979, A2: 2.660, D3: 0.0, D4: 3.267},
	2:  {N: 2, D2: 1.128, C4: 0.7979, A2: 1.880, D3: 0.0, D4: 3.267},
	3:  {N: 3, D2: 1.693, C4: 0.8862, A2: 1.023, D3: 0.0, D4: 2.574},
	4:  {N: 4, D2: 2.059, C4: 0.9213, A2: 0.729, D3: 0.0, D4: 2.282},
	5:  {N: 5, D2: 2.326, C4: 0.9400, A2: 0.577, D3: 0.0, D4: 2.114},
	6:  {N: 6, D2: 2.534, C4: 0.9515, A2: 0.483, D3: 0.0, D4: 2.004},
	7:  {N: 7, D2: 2.704, C4: 0.9594, A2: 0.419, D3: 0.076, D4: 1.924},
	8:  {N: 8, D2: 2.847, C4: 0.9650, A2: 0.373, D3: 0.136, D4: 1.864},
	9:  {N: 9, D2: 2.970, C4: 0.9693, A2: 0.337, D3: 0.184, D4: 1.816},
	10: {N: 10, D2: 3.078, C4: 0.9727, A2: 0.308, D3: 0.223, D4: 1.777},
	11: {N: 11, D2: 3.173, C4: 0.9754, A2: 0.285, D3: 0.256, D4: 1.744},
	12: {N: 12, D2: 3.258, C4: 0.9776, A2: 0.266, D3: 0.283, D4: 1.717},
	13: {N: 13, D2: 3.336, C4: 0.9794, A2: 0.249, D3: 0.307, D4: 1.693},
	14: {N: 14, D2: 3.407, C4: 0.9810, A2: 0.235, D3: 0.328, D4: 1.672},
	15: {N: 15, D2: 3.472, C4: 0.9823, A2: 0.223, D3: 0.347, D4: 1.653},
	16: {N: 16, D2: 3.532, C4: 0.9835, A2: 0.212, D3: 0.363, D4: 1.637},
	17: {N: 17, D2: 3.588, C4: 0.9845, A2: 0.203, D3: 0.378, D4: 1.622},
	18: {N: 18, D2: 3.640, C4: 0.9854, A2: 0.194, D3: 0.391, D4: 1.608},
	19: {N: 19, D2: 3.689, C4: 0.9862, A2: 0.187, D3: 0.403, D4: 1.597},
	20: {N: 20, D2: 3.735, C4: 0.9869, A2: 0.180, D3: 0.415, D4: 1.585},
	21: {N: 21, D2: 3.778, C4: 0.9876, A2: 0.173, D3: 0.425, D4: 1.575},
	22: {N: 22, D2: 3.819, C4: 0.9882, A2: 0.167, D3: 0.434, D4: 1.566},
	23: {N: 23, D2: 3.858, C4: 0.9887, A2: 0.162, D3: 0.443, D4: 1.557},
	24: {N: 24, D2: 3.895, C4: 0.9892, A2: 0.157, D3: 0.451, D4: 1.548},
	25: {N: 25, D2: 3.931, C4: 0.9896, A2: 0.153, D3: 0.459, D4: 1.541},
}

// GetConstants returns the tabulated factors for n, or
// apperrors.ErrInvalidSubgroupSize if n is outside [1,25].
func GetConstants(n int) (Constants, error) {
	c, ok := table[n]
	if !ok {
		return Constants{}, apperrors.ErrInvalidSubgroupSize
	}
	return c, nil
}
