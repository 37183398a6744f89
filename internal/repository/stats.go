// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/openspc/openspc/pkg/schema"
)

// ViolationStatsFilter narrows ViolationStats to a subset of
// violations; a nil/zero field leaves that dimension unfiltered.
type ViolationStatsFilter struct {
	CharacteristicID *int64
	RuleID           *int
	Severity         *schema.Severity
	From             *time.Time
	To               *time.Time
}

// ViolationStatsResult is the breakdown internal/alertmanager reports
// through the stats API: totals plus per-rule, per-severity and
// per-characteristic counts, mirroring the teacher's old job stats
// aggregate-query shape generalised from job counts to violation
// counts.
type ViolationStatsResult struct {
	Total              int64
	Unacknowledged     int64
	BySeverity         map[schema.Severity]int64
	ByRuleID           map[int]int64
	ByCharacteristicID map[int64]int64
}

func (f ViolationStatsFilter) apply(q sq.SelectBuilder) sq.SelectBuilder {
	if f.CharacteristicID != nil {
		q = q.Where(sq.Eq{"characteristic_id": *f.CharacteristicID})
	}
	if f.RuleID != nil {
		q = q.Where(sq.Eq{"rule_id": *f.RuleID})
	}
	if f.Severity != nil {
		q = q.Where(sq.Eq{"severity": *f.Severity})
	}
	if f.From != nil {
		q = q.Where(sq.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(sq.LtOrEq{"created_at": *f.To})
	}
	return q
}

// ViolationStats aggregates violation rows matching filter.
func (r *Repository) ViolationStats(ctx context.Context, filter ViolationStatsFilter) (*ViolationStatsResult, error) {
	result := &ViolationStatsResult{
		BySeverity:         map[schema.Severity]int64{},
		ByRuleID:           map[int]int64{},
		ByCharacteristicID: map[int64]int64{},
	}

	totalQ := filter.apply(sq.Select("COUNT(*)").From("violation"))
	if err := totalQ.RunWith(r.stmtCache).QueryRowContext(ctx).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("repository: violation stats total: %w", err)
	}

	unackQ := filter.apply(sq.Select("COUNT(*)").From("violation")).Where(sq.Eq{"acknowledged": false, "requires_acknowledgement": true})
	if err := unackQ.RunWith(r.stmtCache).QueryRowContext(ctx).Scan(&result.Unacknowledged); err != nil {
		return nil, fmt.Errorf("repository: violation stats unacknowledged: %w", err)
	}

	if err := r.scanGroupCount(ctx, filter, "severity", func(key any, n int64) {
		result.BySeverity[schema.Severity(key.(string))] = n
	}); err != nil {
		return nil, err
	}
	if err := r.scanGroupCount(ctx, filter, "rule_id", func(key any, n int64) {
		result.ByRuleID[int(key.(int64))] = n
	}); err != nil {
		return nil, err
	}
	if err := r.scanGroupCount(ctx, filter, "characteristic_id", func(key any, n int64) {
		result.ByCharacteristicID[key.(int64)] = n
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *Repository) scanGroupCount(ctx context.Context, filter ViolationStatsFilter, column string, assign func(key any, n int64)) error {
	q := filter.apply(sq.Select(column, "COUNT(*)").From("violation").GroupBy(column))
	rows, err := q.RunWith(r.stmtCache).QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("repository: violation stats by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key any
		var n int64
		if column == "severity" {
			var s string
			if err := rows.Scan(&s, &n); err != nil {
				return err
			}
			key = s
		} else {
			var k int64
			if err := rows.Scan(&k, &n); err != nil {
				return err
			}
			key = k
		}
		assign(key, n)
	}
	return rows.Err()
}
