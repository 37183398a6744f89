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

	sq "github.com/Masterminds/squirrel"

	"github.com/openspc/openspc/pkg/schema"
)

// Plant returns one plant by id.
func (r *Repository) Plant(ctx context.Context, id int64) (*schema.Plant, error) {
	p := &schema.Plant{}
	err := sq.Select("id", "name", "code", "created_at", "deleted_at").From("plant").
		Where(sq.Eq{"id": id}).RunWith(r.stmtCache).QueryRowContext(ctx).
		Scan(&p.ID, &p.Name, &p.Code, &p.CreatedAt, &p.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: plant %d: %w", id, err)
	}
	return p, nil
}

// CreatePlant inserts a new plant and returns its id.
func (r *Repository) CreatePlant(ctx context.Context, p *schema.Plant) (int64, error) {
	res, err := sq.Insert("plant").Columns("name", "code").Values(p.Name, p.Code).
		RunWith(r.stmtCache).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("repository: create plant: %w", err)
	}
	return res.LastInsertId()
}

// HierarchyNode returns one node by id.
func (r *Repository) HierarchyNode(ctx context.Context, id int64) (*schema.HierarchyNode, error) {
	n := &schema.HierarchyNode{}
	err := sq.Select("id", "plant_id", "parent_id", "name", "type").From("hierarchy_node").
		Where(sq.Eq{"id": id}).RunWith(r.stmtCache).QueryRowContext(ctx).
		Scan(&n.ID, &n.PlantID, &n.ParentID, &n.Name, &n.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: hierarchy node %d: %w", id, err)
	}
	return n, nil
}

// CreateHierarchyNode inserts a new node, nil ParentID making it a
// plant-level root.
func (r *Repository) CreateHierarchyNode(ctx context.Context, n *schema.HierarchyNode) (int64, error) {
	res, err := sq.Insert("hierarchy_node").Columns("plant_id", "parent_id", "name", "type").
		Values(n.PlantID, n.ParentID, n.Name, n.Type).
		RunWith(r.stmtCache).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("repository: create hierarchy node: %w", err)
	}
	return res.LastInsertId()
}

// ChildNodes lists the direct children of a node (or plant-level roots
// when parentID is nil).
func (r *Repository) ChildNodes(ctx context.Context, plantID int64, parentID *int64) ([]schema.HierarchyNode, error) {
	q := sq.Select("id", "plant_id", "parent_id", "name", "type").From("hierarchy_node").
		Where(sq.Eq{"plant_id": plantID})
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where(sq.Eq{"parent_id": *parentID})
	}
	rows, err := q.RunWith(r.stmtCache).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: list child nodes: %w", err)
	}
	defer rows.Close()

	var out []schema.HierarchyNode
	for rows.Next() {
		var n schema.HierarchyNode
		if err := rows.Scan(&n.ID, &n.PlantID, &n.ParentID, &n.Name, &n.Type); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// TopicPath implements internal/outbound.TopicResolver: it walks the
// characteristic up through its hierarchy node to the plant root,
// returning the plant name and ordered ancestor-to-leaf path segments
// the Unified Namespace topic is built from.
func (r *Repository) TopicPath(ctx context.Context, charID int64) (plant string, hierarchyPath []string, charName string, err error) {
	char, err := r.Characteristic(ctx, charID)
	if err != nil {
		return "", nil, "", err
	}
	if char == nil {
		return "", nil, "", fmt.Errorf("repository: topic path: characteristic %d not found", charID)
	}

	var segments []string
	nodeID := char.HierarchyNodeID
	var plantID int64
	for {
		node, err := r.HierarchyNode(ctx, nodeID)
		if err != nil {
			return "", nil, "", err
		}
		if node == nil {
			return "", nil, "", fmt.Errorf("repository: topic path: hierarchy node %d not found", nodeID)
		}
		segments = append([]string{node.Name}, segments...)
		plantID = node.PlantID
		if node.ParentID == nil {
			break
		}
		nodeID = *node.ParentID
	}

	p, err := r.Plant(ctx, plantID)
	if err != nil {
		return "", nil, "", err
	}
	if p == nil {
		return "", nil, "", fmt.Errorf("repository: topic path: plant %d not found", plantID)
	}

	return p.Name, segments, char.Name, nil
}
