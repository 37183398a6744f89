// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"

	"github.com/openspc/openspc/pkg/apperrors"
	"github.com/openspc/openspc/pkg/schema"
)

const purgeBatchSize = 1000

var retentionPolicyColumns = []string{
	"id", "plant_id", "scope", "hierarchy_node_id", "characteristic_id",
	"retention_type", "retention_value", "retention_unit",
}

func scanRetentionPolicy(row interface{ Scan(...interface{}) error }) (*schema.RetentionPolicy, error) {
	p := &schema.RetentionPolicy{}
	if err := row.Scan(
		&p.ID, &p.PlantID, &p.Scope, &p.HierarchyNodeID, &p.CharacteristicID,
		&p.RetentionType, &p.RetentionValue, &p.RetentionUnit,
	); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateRetentionPolicy inserts a policy. A duplicate scope collision
// (one global policy per plant, one per hierarchy node, one per
// characteristic — enforced by the schema's partial unique indexes)
// surfaces as apperrors.ErrDuplicateGlobalRetention.
func (r *Repository) CreateRetentionPolicy(ctx context.Context, p *schema.RetentionPolicy) (int64, error) {
	res, err := sq.Insert("retention_policy").
		Columns("plant_id", "scope", "hierarchy_node_id", "characteristic_id", "retention_type", "retention_value", "retention_unit").
		Values(p.PlantID, p.Scope, p.HierarchyNodeID, p.CharacteristicID, p.RetentionType, p.RetentionValue, p.RetentionUnit).
		RunWith(r.stmtCache).ExecContext(ctx)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return 0, apperrors.ErrDuplicateGlobalRetention
		}
		return 0, fmt.Errorf("repository: create retention policy: %w", err)
	}
	return res.LastInsertId()
}

// RetentionPolicy returns one policy by id.
func (r *Repository) RetentionPolicy(ctx context.Context, id int64) (*schema.RetentionPolicy, error) {
	row := sq.Select(retentionPolicyColumns...).From("retention_policy").Where(sq.Eq{"id": id}).
		RunWith(r.stmtCache).QueryRowContext(ctx)
	p, err := scanRetentionPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: retention policy %d: %w", id, err)
	}
	return p, nil
}

// ResolveRetentionPolicy walks the inheritance chain for one
// characteristic: characteristic-scoped policy, then each hierarchy
// ancestor from leaf to root, then the plant-wide global policy. A
// characteristic with no policy anywhere in the chain keeps its
// history forever.
func (r *Repository) ResolveRetentionPolicy(ctx context.Context, charID int64) (*schema.ResolvedPolicy, error) {
	char, err := r.Characteristic(ctx, charID)
	if err != nil {
		return nil, err
	}
	if char == nil {
		return nil, fmt.Errorf("repository: resolve retention: characteristic %d not found", charID)
	}

	if p, err := r.policyByScope(ctx, sq.Eq{"scope": schema.ScopeCharacteristic, "characteristic_id": charID}); err != nil {
		return nil, err
	} else if p != nil {
		return &schema.ResolvedPolicy{Policy: *p, Source: schema.ScopeCharacteristic, SourceEntityID: charID, SourceEntityName: char.Name}, nil
	}

	nodeID := char.HierarchyNodeID
	var plantID int64
	for {
		node, err := r.HierarchyNode(ctx, nodeID)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nil, fmt.Errorf("repository: resolve retention: hierarchy node %d not found", nodeID)
		}
		plantID = node.PlantID

		if p, err := r.policyByScope(ctx, sq.Eq{"scope": schema.ScopeHierarchy, "hierarchy_node_id": nodeID}); err != nil {
			return nil, err
		} else if p != nil {
			return &schema.ResolvedPolicy{Policy: *p, Source: schema.ScopeHierarchy, SourceEntityID: nodeID, SourceEntityName: node.Name}, nil
		}

		if node.ParentID == nil {
			break
		}
		nodeID = *node.ParentID
	}

	if p, err := r.policyByScope(ctx, sq.Eq{"scope": schema.ScopeGlobal, "plant_id": plantID}); err != nil {
		return nil, err
	} else if p != nil {
		plant, err := r.Plant(ctx, plantID)
		if err != nil {
			return nil, err
		}
		name := ""
		if plant != nil {
			name = plant.Name
		}
		return &schema.ResolvedPolicy{Policy: *p, Source: schema.ScopeGlobal, SourceEntityID: plantID, SourceEntityName: name}, nil
	}

	return &schema.ResolvedPolicy{
		Policy:         schema.RetentionPolicy{PlantID: plantID, Scope: schema.ScopeGlobal, RetentionType: schema.RetentionForever},
		Source:         schema.ScopeGlobal,
		SourceEntityID: plantID,
	}, nil
}

func (r *Repository) policyByScope(ctx context.Context, where sq.Eq) (*schema.RetentionPolicy, error) {
	row := sq.Select(retentionPolicyColumns...).From("retention_policy").Where(where).
		RunWith(r.stmtCache).QueryRowContext(ctx)
	p, err := scanRetentionPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// cutoffFor translates a resolved policy into the time/count boundary
// PurgeCharacteristic deletes older-than/beyond. ok is false for a
// forever policy, meaning nothing should be purged.
func cutoffFor(p schema.RetentionPolicy, now time.Time) (cutoff time.Time, sampleLimit int64, ok bool) {
	switch p.RetentionType {
	case schema.RetentionTimeDelta:
		if p.RetentionValue == nil || p.RetentionUnit == nil {
			return time.Time{}, 0, false
		}
		var d time.Duration
		switch *p.RetentionUnit {
		case schema.UnitDays:
			d = time.Duration(*p.RetentionValue) * 24 * time.Hour
		case schema.UnitWeeks:
			d = time.Duration(*p.RetentionValue) * 7 * 24 * time.Hour
		case schema.UnitMonths:
			d = time.Duration(*p.RetentionValue) * 30 * 24 * time.Hour
		case schema.UnitYears:
			d = time.Duration(*p.RetentionValue) * 365 * 24 * time.Hour
		}
		return now.Add(-d), 0, true
	case schema.RetentionSampleCount:
		if p.RetentionValue == nil {
			return time.Time{}, 0, false
		}
		return time.Time{}, int64(*p.RetentionValue), true
	default:
		return time.Time{}, 0, false
	}
}

// PurgeCharacteristic deletes every sample (and its measurements and
// violations, via ON DELETE CASCADE) that falls outside the resolved
// retention policy for one characteristic, in batches of
// purgeBatchSize to bound lock duration on a busy database. It
// returns how many sample and violation rows were removed.
func (r *Repository) PurgeCharacteristic(ctx context.Context, charID int64, now time.Time) (samplesDeleted, violationsDeleted int64, err error) {
	resolved, err := r.ResolveRetentionPolicy(ctx, charID)
	if err != nil {
		return 0, 0, err
	}
	cutoff, sampleLimit, ok := cutoffFor(resolved.Policy, now)
	if !ok {
		return 0, 0, nil
	}

	for {
		var ids []int64
		switch resolved.Policy.RetentionType {
		case schema.RetentionTimeDelta:
			err = r.DB.SelectContext(ctx, &ids,
				`SELECT id FROM sample WHERE characteristic_id = ? AND timestamp < ? LIMIT ?`,
				charID, cutoff, purgeBatchSize)
		case schema.RetentionSampleCount:
			err = r.DB.SelectContext(ctx, &ids,
				`SELECT id FROM sample WHERE characteristic_id = ?
				 ORDER BY timestamp DESC LIMIT -1 OFFSET ?`, charID, sampleLimit)
			if len(ids) > purgeBatchSize {
				ids = ids[:purgeBatchSize]
			}
		}
		if err != nil {
			return samplesDeleted, violationsDeleted, fmt.Errorf("repository: purge characteristic %d: %w", charID, err)
		}
		if len(ids) == 0 {
			return samplesDeleted, violationsDeleted, nil
		}

		vq, vargs, err := sq.Select("COUNT(*)").From("violation").Where(sq.Eq{"sample_id": ids}).ToSql()
		if err != nil {
			return samplesDeleted, violationsDeleted, err
		}
		var vCount int64
		if err := r.DB.GetContext(ctx, &vCount, vq, vargs...); err != nil {
			return samplesDeleted, violationsDeleted, fmt.Errorf("repository: count violations for purge: %w", err)
		}

		q, args, err := sq.Delete("sample").Where(sq.Eq{"id": ids}).ToSql()
		if err != nil {
			return samplesDeleted, violationsDeleted, err
		}
		res, err := r.DB.ExecContext(ctx, q, args...)
		if err != nil {
			return samplesDeleted, violationsDeleted, fmt.Errorf("repository: purge characteristic %d: %w", charID, err)
		}
		n, _ := res.RowsAffected()
		samplesDeleted += n
		violationsDeleted += vCount
		if n < purgeBatchSize {
			return samplesDeleted, violationsDeleted, nil
		}
	}
}

// RecordPurgeHistory writes one retention-engine run summary.
func (r *Repository) RecordPurgeHistory(ctx context.Context, h *schema.PurgeHistory) (int64, error) {
	res, err := sq.Insert("purge_history").
		Columns("plant_id", "started_at", "completed_at", "samples_deleted", "violations_deleted", "characteristics_processed", "error").
		Values(h.PlantID, h.StartedAt, h.CompletedAt, h.SamplesDeleted, h.ViolationsDeleted, h.CharacteristicsProcessed, h.Error).
		RunWith(r.stmtCache).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("repository: record purge history: %w", err)
	}
	return res.LastInsertId()
}

// AllCharacteristicIDs lists every characteristic id in the system,
// used by the retention purge loop to sweep every chart each run.
func (r *Repository) AllCharacteristicIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.DB.SelectContext(ctx, &ids, `SELECT id FROM characteristic`)
	if err != nil {
		return nil, fmt.Errorf("repository: list characteristic ids: %w", err)
	}
	return ids, nil
}

// AllPlantIDs lists every plant id, used by the retention purge loop
// to write one PurgeHistory row per plant per run.
func (r *Repository) AllPlantIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.DB.SelectContext(ctx, &ids, `SELECT id FROM plant WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("repository: list plant ids: %w", err)
	}
	return ids, nil
}

// CharacteristicIDsByPlant lists every characteristic belonging to
// plantID, joining through hierarchy_node's denormalised plant_id
// rather than walking the ancestor chain per characteristic.
func (r *Repository) CharacteristicIDsByPlant(ctx context.Context, plantID int64) ([]int64, error) {
	var ids []int64
	err := r.DB.SelectContext(ctx, &ids,
		`SELECT c.id FROM characteristic c JOIN hierarchy_node n ON n.id = c.hierarchy_node_id WHERE n.plant_id = ?`,
		plantID)
	if err != nil {
		return nil, fmt.Errorf("repository: list characteristics for plant %d: %w", plantID, err)
	}
	return ids, nil
}
