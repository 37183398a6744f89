// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/openspc/openspc/internal/spcstat"
	"github.com/openspc/openspc/pkg/apperrors"
	"github.com/openspc/openspc/pkg/schema"
)

// RecalculateLimits loads historical samples for charID (optionally
// excluding those whose sample is flagged is_excluded), selects a
// sigma-estimation method by subgroup size, writes the resulting
// CL/UCL/LCL/sigma back to the characteristic, invalidates its cached
// window, and publishes a ControlLimitsUpdatedEvent. No sample rows
// are mutated by this operation.
func (e *Engine) RecalculateLimits(ctx context.Context, charID int64, excludeOOC bool) error {
	char, err := e.store.Characteristic(ctx, charID)
	if err != nil || char == nil {
		return apperrors.Wrap(fmt.Sprintf("characteristic %d", charID), apperrors.ErrCharacteristicNotFound)
	}

	means, spread, err := e.store.LoadSamplesForRecalc(ctx, charID, excludeOOC)
	if err != nil {
		return apperrors.Wrap(fmt.Sprintf("load history for characteristic %d", charID), err)
	}

	limits, err := computeLimits(char.SubgroupSize, means, spread)
	if err != nil {
		return apperrors.Wrap(fmt.Sprintf("compute limits for characteristic %d", charID), err)
	}

	if err := e.store.UpdateCharacteristicLimits(ctx, charID, limits); err != nil {
		return apperrors.Wrap(fmt.Sprintf("write limits for characteristic %d", charID), err)
	}

	e.windows.Invalidate(charID)

	e.bus.Publish(schema.ControlLimitsUpdatedEvent{
		CharacteristicID: charID,
		CenterLine:       limits.CenterLine,
		UCL:              limits.UCL,
		LCL:              limits.LCL,
		Sigma:            limits.Sigma,
		Timestamp:        time.Now(),
	})
	return nil
}

func computeLimits(subgroupSize int, means, spread []float64) (spcstat.ControlLimits, error) {
	switch spcstat.MethodFor(subgroupSize) {
	case spcstat.MethodMovingRange:
		limits, err := spcstat.CalculateIMRLimits(means, 2)
		if err != nil {
			return spcstat.ControlLimits{}, err
		}
		return limits.XbarLimits, nil
	case spcstat.MethodSBar:
		limits, err := spcstat.CalculateXbarSLimits(means, spread, subgroupSize)
		if err != nil {
			return spcstat.ControlLimits{}, err
		}
		return limits.XbarLimits, nil
	default:
		limits, err := spcstat.CalculateXbarRLimits(means, spread, subgroupSize)
		if err != nil {
			return spcstat.ControlLimits{}, err
		}
		return limits.XbarLimits, nil
	}
}
