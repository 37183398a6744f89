// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "time"

// Plant is the tenant root. All hierarchy nodes, characteristics and
// retention policies are scoped to exactly one plant.
type Plant struct {
	ID        int64      `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Code      string     `json:"code" db:"code"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// HierarchyNode is one node of the ISA-95 equipment tree. ParentID is
// nullable; a node with ParentID == nil is a plant-level root node.
type HierarchyNode struct {
	ID       int64  `json:"id" db:"id"`
	PlantID  int64  `json:"plant_id" db:"plant_id"`
	ParentID *int64 `json:"parent_id,omitempty" db:"parent_id"`
	Name     string `json:"name" db:"name"`
	Type     string `json:"type" db:"type"`
}

// Characteristic is the measured feature a SampleEvent targets.
type Characteristic struct {
	ID              int64    `json:"id" db:"id"`
	HierarchyNodeID int64    `json:"hierarchy_node_id" db:"hierarchy_node_id"`
	Name            string   `json:"name" db:"name"`
	SubgroupSize    int      `json:"subgroup_size" db:"subgroup_size"`
	Target          *float64 `json:"target,omitempty" db:"target"`
	USL             *float64 `json:"usl,omitempty" db:"usl"`
	LSL             *float64 `json:"lsl,omitempty" db:"lsl"`
	CenterLine      *float64 `json:"center_line,omitempty" db:"center_line"`
	UCL             *float64 `json:"ucl,omitempty" db:"ucl"`
	LCL             *float64 `json:"lcl,omitempty" db:"lcl"`
	Sigma           *float64 `json:"sigma,omitempty" db:"sigma"`
}

// LimitsSet reports whether the characteristic has a usable control chart.
func (c *Characteristic) LimitsSet() bool {
	return c.CenterLine != nil && c.UCL != nil && c.LCL != nil && c.Sigma != nil
}

// CharacteristicRule says whether a Nelson rule is enabled for a
// characteristic, and whether a fired violation needs a human ack.
type CharacteristicRule struct {
	ID                      int64 `json:"id" db:"id"`
	CharacteristicID        int64 `json:"characteristic_id" db:"characteristic_id"`
	RuleID                  int   `json:"rule_id" db:"rule_id"`
	Enabled                 bool  `json:"enabled" db:"enabled"`
	RequiresAcknowledgement bool  `json:"requires_acknowledgement" db:"requires_acknowledgement"`
}
