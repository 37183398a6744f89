// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/openspc/openspc/pkg/apperrors"
	"github.com/openspc/openspc/pkg/schema"
)

// AcknowledgeViolation atomically marks violationID acknowledged by
// user for reason, optionally excluding its linked sample from future
// control-limit recomputation. The sample itself is never deleted or
// otherwise mutated; only its is_excluded flag may change.
func (e *Engine) AcknowledgeViolation(ctx context.Context, violationID int64, user, reason string, excludeSample bool) error {
	v, err := e.store.Violation(ctx, violationID)
	if err != nil || v == nil {
		return apperrors.Wrap(fmt.Sprintf("violation %d", violationID), apperrors.ErrViolationNotFound)
	}
	if v.Acknowledged {
		return apperrors.Wrap(fmt.Sprintf("violation %d", violationID), apperrors.ErrAlreadyAcknowledged)
	}

	if err := e.store.AcknowledgeViolation(ctx, violationID, user, reason, excludeSample); err != nil {
		return apperrors.Wrap(fmt.Sprintf("acknowledge violation %d", violationID), err)
	}

	now := time.Now()
	v.Acknowledged = true
	v.AckUser = &user
	v.AckReason = &reason
	v.AckTimestamp = &now

	e.bus.Publish(schema.ViolationAcknowledgedEvent{Violation: *v, Timestamp: now})
	return nil
}
