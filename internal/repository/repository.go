// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package repository is the sqlx/squirrel-backed persistence layer:
// the concrete implementation of internal/engine.Store,
// internal/rollingwindow.HistoryLoader and
// internal/providers/manual.Lookup, following the teacher's
// singleton-connection + stmtCache + sqlhooks query-timing pattern
// from its job repository, repurposed for Plant/HierarchyNode/
// Characteristic/Sample/Measurement/Violation persistence.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/openspc/openspc/internal/rollingwindow"
	"github.com/openspc/openspc/internal/spcstat"
	"github.com/openspc/openspc/pkg/apperrors"
	"github.com/openspc/openspc/pkg/schema"
)

var (
	repoOnce     sync.Once
	repoInstance *Repository
)

// Repository is the single persistence handle every other package
// (engine, rollingwindow, providers/manual, alertmanager, retention,
// api) depends on through a narrow interface.
type Repository struct {
	DB        *sqlx.DB
	stmtCache *sq.StmtCache
}

// GetRepository returns the process-wide Repository, built from the
// connection established by Connect.
func GetRepository() *Repository {
	repoOnce.Do(func() {
		conn := GetConnection()
		repoInstance = &Repository{
			DB:        conn.DB,
			stmtCache: sq.NewStmtCache(conn.DB),
		}
	})
	return repoInstance
}

var characteristicColumns = []string{
	"id", "hierarchy_node_id", "name", "subgroup_size",
	"target", "usl", "lsl", "center_line", "ucl", "lcl", "sigma",
}

func scanCharacteristic(row interface{ Scan(...interface{}) error }) (*schema.Characteristic, error) {
	c := &schema.Characteristic{}
	if err := row.Scan(
		&c.ID, &c.HierarchyNodeID, &c.Name, &c.SubgroupSize,
		&c.Target, &c.USL, &c.LSL, &c.CenterLine, &c.UCL, &c.LCL, &c.Sigma,
	); err != nil {
		return nil, err
	}
	return c, nil
}

// Characteristic implements engine.Store and manual.Lookup.
func (r *Repository) Characteristic(ctx context.Context, charID int64) (*schema.Characteristic, error) {
	row := sq.Select(characteristicColumns...).From("characteristic").Where(sq.Eq{"id": charID}).
		RunWith(r.stmtCache).QueryRowContext(ctx)
	c, err := scanCharacteristic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: characteristic %d: %w", charID, err)
	}
	return c, nil
}

// CharacteristicRules implements engine.Store.
func (r *Repository) CharacteristicRules(ctx context.Context, charID int64) ([]schema.CharacteristicRule, error) {
	rows, err := sq.Select("id", "characteristic_id", "rule_id", "enabled", "requires_acknowledgement").
		From("characteristic_rule").Where(sq.Eq{"characteristic_id": charID}).
		RunWith(r.stmtCache).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: rules for characteristic %d: %w", charID, err)
	}
	defer rows.Close()

	var out []schema.CharacteristicRule
	for rows.Next() {
		var cr schema.CharacteristicRule
		if err := rows.Scan(&cr.ID, &cr.CharacteristicID, &cr.RuleID, &cr.Enabled, &cr.RequiresAcknowledgement); err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

// InsertSample implements engine.Store: it persists sample and its
// measurement children in a single transaction, following
// internal/repository's old insert-parent-then-children-in-one-tx
// pattern for job rows.
func (r *Repository) InsertSample(ctx context.Context, sample *schema.Sample, measurements []float64) (int64, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("repository: begin insert sample: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sample (characteristic_id, timestamp, batch_number, operator_id, is_excluded, actual_n)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sample.CharacteristicID, sample.Timestamp, sample.BatchNumber, sample.OperatorID, sample.IsExcluded, sample.ActualN)
	if err != nil {
		return 0, fmt.Errorf("repository: insert sample: %w", err)
	}
	sampleID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, v := range measurements {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO measurement (sample_id, value, ordinal) VALUES (?, ?, ?)`,
			sampleID, v, i); err != nil {
			return 0, fmt.Errorf("repository: insert measurement %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("repository: commit insert sample: %w", err)
	}
	return sampleID, nil
}

// InsertViolation implements engine.Store.
func (r *Repository) InsertViolation(ctx context.Context, v *schema.Violation) (int64, error) {
	res, err := sq.Insert("violation").
		Columns("sample_id", "characteristic_id", "rule_id", "rule_name", "severity", "requires_acknowledgement", "acknowledged").
		Values(v.SampleID, v.CharacteristicID, v.RuleID, v.RuleName, v.Severity, v.RequiresAcknowledgement, false).
		RunWith(r.stmtCache).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("repository: insert violation: %w", err)
	}
	return res.LastInsertId()
}

// UpdateCharacteristicLimits implements engine.Store.
func (r *Repository) UpdateCharacteristicLimits(ctx context.Context, charID int64, limits spcstat.ControlLimits) error {
	_, err := sq.Update("characteristic").
		Set("center_line", limits.CenterLine).
		Set("ucl", limits.UCL).
		Set("lcl", limits.LCL).
		Set("sigma", limits.Sigma).
		Where(sq.Eq{"id": charID}).
		RunWith(r.stmtCache).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("repository: update limits for characteristic %d: %w", charID, err)
	}
	return nil
}

// LoadSamplesForRecalc implements engine.Store: every persisted sample
// of charID, oldest first (ordered by timestamp ascending).
func (r *Repository) LoadSamplesForRecalc(ctx context.Context, charID int64, excludeOOC bool) (means, spread []float64, err error) {
	return r.loadHistory(ctx, charID, 0, excludeOOC)
}

// LoadWindowSeed implements rollingwindow.HistoryLoader.
func (r *Repository) LoadWindowSeed(ctx context.Context, charID int64, size int) (centerLine, sigma float64, history []rollingwindow.WindowSeedEntry, err error) {
	char, err := r.Characteristic(ctx, charID)
	if err != nil {
		return 0, 0, nil, err
	}
	if char == nil || char.CenterLine == nil || char.Sigma == nil {
		return 0, 0, nil, fmt.Errorf("repository: characteristic %d has no control limits yet", charID)
	}

	rows, err := sq.Select("s.id", "s.timestamp", "m.value").
		From("sample s").
		Join("measurement m ON m.sample_id = s.id").
		Where(sq.Eq{"s.characteristic_id": charID, "s.is_excluded": false}).
		OrderBy("s.timestamp DESC", "m.ordinal ASC").
		Limit(uint64(size * char.SubgroupSize)).
		RunWith(r.stmtCache).QueryContext(ctx)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("repository: load window seed for characteristic %d: %w", charID, err)
	}
	defer rows.Close()

	bySample := map[int64]*rollingwindow.WindowSeedEntry{}
	order := []int64{}
	values := map[int64][]float64{}
	for rows.Next() {
		var sampleID int64
		var ts any
		var value float64
		if err := rows.Scan(&sampleID, &ts, &value); err != nil {
			return 0, 0, nil, err
		}
		if _, ok := bySample[sampleID]; !ok {
			order = append(order, sampleID)
			bySample[sampleID] = &rollingwindow.WindowSeedEntry{SampleID: sampleID}
		}
		values[sampleID] = append(values[sampleID], value)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, nil, err
	}

	history = make([]rollingwindow.WindowSeedEntry, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		mean, rangeValue := spcstat.CalculateMeanRange(values[id])
		history = append(history, rollingwindow.WindowSeedEntry{
			SampleID: id,
			Mean:     mean,
			Range:    rangeValue,
		})
	}
	return *char.CenterLine, *char.Sigma, history, nil
}

func (r *Repository) loadHistory(ctx context.Context, charID int64, limit int, excludeOOC bool) (means, spread []float64, err error) {
	q := sq.Select("s.id", "s.timestamp", "m.value").
		From("sample s").
		Join("measurement m ON m.sample_id = s.id").
		Where(sq.Eq{"s.characteristic_id": charID}).
		OrderBy("s.timestamp ASC", "m.ordinal ASC")
	if excludeOOC {
		q = q.Where(sq.Eq{"s.is_excluded": false})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := q.RunWith(r.stmtCache).QueryContext(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("repository: load history for characteristic %d: %w", charID, err)
	}
	defer rows.Close()

	order := []int64{}
	values := map[int64][]float64{}
	for rows.Next() {
		var sampleID int64
		var ts any
		var value float64
		if err := rows.Scan(&sampleID, &ts, &value); err != nil {
			return nil, nil, err
		}
		if _, ok := values[sampleID]; !ok {
			order = append(order, sampleID)
		}
		values[sampleID] = append(values[sampleID], value)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	means = make([]float64, 0, len(order))
	spread = make([]float64, 0, len(order))
	for _, id := range order {
		vals := values[id]
		mean, rangeValue := spcstat.CalculateMeanRange(vals)
		means = append(means, mean)
		if spcstat.MethodFor(len(vals)) == spcstat.MethodSBar {
			ss := 0.0
			for _, v := range vals {
				ss += (v - mean) * (v - mean)
			}
			spread = append(spread, math.Sqrt(ss/float64(len(vals)-1)))
		} else if rangeValue != nil {
			spread = append(spread, *rangeValue)
		}
	}
	return means, spread, nil
}

// Violation implements engine.Store.
func (r *Repository) Violation(ctx context.Context, id int64) (*schema.Violation, error) {
	row := sq.Select(
		"id", "sample_id", "characteristic_id", "rule_id", "rule_name", "severity",
		"requires_acknowledgement", "acknowledged", "ack_user", "ack_reason", "ack_timestamp", "created_at",
	).From("violation").Where(sq.Eq{"id": id}).RunWith(r.stmtCache).QueryRowContext(ctx)

	v := &schema.Violation{}
	err := row.Scan(
		&v.ID, &v.SampleID, &v.CharacteristicID, &v.RuleID, &v.RuleName, &v.Severity,
		&v.RequiresAcknowledgement, &v.Acknowledged, &v.AckUser, &v.AckReason, &v.AckTimestamp, &v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: violation %d: %w", id, err)
	}
	return v, nil
}

// AcknowledgeViolation implements engine.Store. excludeSample flips
// the linked sample's is_excluded flag in the same transaction; the
// sample row is otherwise never mutated.
func (r *Repository) AcknowledgeViolation(ctx context.Context, id int64, user, reason string, excludeSample bool) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin acknowledge: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE violation SET acknowledged = 1, ack_user = ?, ack_reason = ?, ack_timestamp = CURRENT_TIMESTAMP
		 WHERE id = ? AND acknowledged = 0`,
		user, reason, id)
	if err != nil {
		return fmt.Errorf("repository: acknowledge violation %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrAlreadyAcknowledged
	}

	if excludeSample {
		var sampleID int64
		if err := tx.GetContext(ctx, &sampleID, `SELECT sample_id FROM violation WHERE id = ?`, id); err != nil {
			return fmt.Errorf("repository: lookup sample for violation %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sample SET is_excluded = 1 WHERE id = ?`, sampleID); err != nil {
			return fmt.Errorf("repository: exclude sample for violation %d: %w", id, err)
		}
	}

	return tx.Commit()
}
