// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "time"

// RetentionScope is the level at which a RetentionPolicy is declared.
type RetentionScope string

const (
	ScopeGlobal          RetentionScope = "global"
	ScopeHierarchy       RetentionScope = "hierarchy"
	ScopeCharacteristic  RetentionScope = "characteristic"
)

// RetentionType selects how a RetentionPolicy bounds history.
type RetentionType string

const (
	RetentionForever     RetentionType = "forever"
	RetentionSampleCount RetentionType = "sample_count"
	RetentionTimeDelta   RetentionType = "time_delta"
)

// TimeUnit is the unit a time_delta retention value is expressed in.
type TimeUnit string

const (
	UnitDays   TimeUnit = "days"
	UnitWeeks  TimeUnit = "weeks"
	UnitMonths TimeUnit = "months"
	UnitYears  TimeUnit = "years"
)

// RetentionPolicy is one row in the retention-policy table; its scope
// plus the nullable owning-entity columns select which entity it binds.
type RetentionPolicy struct {
	ID               int64          `json:"id" db:"id"`
	PlantID          int64          `json:"plant_id" db:"plant_id"`
	Scope            RetentionScope `json:"scope" db:"scope"`
	HierarchyNodeID  *int64         `json:"hierarchy_node_id,omitempty" db:"hierarchy_node_id"`
	CharacteristicID *int64         `json:"characteristic_id,omitempty" db:"characteristic_id"`
	RetentionType    RetentionType  `json:"retention_type" db:"retention_type"`
	RetentionValue   *float64       `json:"retention_value,omitempty" db:"retention_value"`
	RetentionUnit    *TimeUnit      `json:"retention_unit,omitempty" db:"retention_unit"`
}

// ResolvedPolicy is the outcome of walking the inheritance chain for one
// characteristic: which policy applies and where it came from.
type ResolvedPolicy struct {
	Policy           RetentionPolicy
	Source           RetentionScope
	SourceEntityID   int64
	SourceEntityName string
}

// PurgeHistory records one purge-engine run for one plant.
type PurgeHistory struct {
	ID                      int64      `json:"id" db:"id"`
	PlantID                 int64      `json:"plant_id" db:"plant_id"`
	StartedAt               time.Time  `json:"started_at" db:"started_at"`
	CompletedAt             *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	SamplesDeleted          int64      `json:"samples_deleted" db:"samples_deleted"`
	ViolationsDeleted       int64      `json:"violations_deleted" db:"violations_deleted"`
	CharacteristicsProcessed int64     `json:"characteristics_processed" db:"characteristics_processed"`
	Error                   *string    `json:"error,omitempty" db:"error"`
}
