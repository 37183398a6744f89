// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "time"

// SampleSource identifies which ingress modality produced a SampleEvent.
type SampleSource string

const (
	SampleSourceManual SampleSource = "MANUAL"
	SampleSourceREST   SampleSource = "REST"
	SampleSourceTag    SampleSource = "TAG"
	SampleSourceOpcUa  SampleSource = "OPCUA"
)

// SampleContext carries the optional, caller-supplied metadata for a
// submitted subgroup.
type SampleContext struct {
	BatchNumber *string        `json:"batch_number,omitempty"`
	OperatorID  *string        `json:"operator_id,omitempty"`
	Source      SampleSource   `json:"source"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	// Timestamp overrides now_utc() when a provider already knows the
	// reading time (e.g. a historized OPC-UA DataValue).
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// SampleEvent is the single contract every provider normalises its
// input to before handing it to the engine.
type SampleEvent struct {
	CharacteristicID int64
	Measurements     []float64
	Context          SampleContext
}

// Sample is one persisted subgroup.
type Sample struct {
	ID               int64     `json:"id" db:"id"`
	CharacteristicID int64     `json:"characteristic_id" db:"characteristic_id"`
	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
	BatchNumber      *string   `json:"batch_number,omitempty" db:"batch_number"`
	OperatorID       *string   `json:"operator_id,omitempty" db:"operator_id"`
	IsExcluded       bool      `json:"is_excluded" db:"is_excluded"`
	ActualN          int       `json:"actual_n" db:"actual_n"`
}

// Measurement is one scalar reading owned by a Sample.
type Measurement struct {
	ID       int64   `json:"id" db:"id"`
	SampleID int64   `json:"sample_id" db:"sample_id"`
	Value    float64 `json:"value" db:"value"`
	Ordinal  int     `json:"ordinal" db:"ordinal"`
}

// Severity is the impact level attached to a fired Nelson rule.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Violation is a fired rule recorded against a Sample.
type Violation struct {
	ID                      int64      `json:"id" db:"id"`
	SampleID                int64      `json:"sample_id" db:"sample_id"`
	CharacteristicID        int64      `json:"characteristic_id" db:"characteristic_id"`
	RuleID                  int        `json:"rule_id" db:"rule_id"`
	RuleName                string     `json:"rule_name" db:"rule_name"`
	Severity                Severity   `json:"severity" db:"severity"`
	RequiresAcknowledgement bool       `json:"requires_acknowledgement" db:"requires_acknowledgement"`
	Acknowledged            bool       `json:"acknowledged" db:"acknowledged"`
	AckUser                 *string    `json:"ack_user,omitempty" db:"ack_user"`
	AckReason               *string    `json:"ack_reason,omitempty" db:"ack_reason"`
	AckTimestamp            *time.Time `json:"ack_timestamp,omitempty" db:"ack_timestamp"`
	CreatedAt               time.Time  `json:"created_at" db:"created_at"`
}

// IsUnacknowledged reports the "unacknowledged" bucket: requires ack
// and hasn't gotten one yet.
func (v *Violation) IsUnacknowledged() bool {
	return v.RequiresAcknowledgement && !v.Acknowledged
}

// IsInformational reports the "informational" bucket: doesn't require
// ack and hasn't gotten one.
func (v *Violation) IsInformational() bool {
	return !v.RequiresAcknowledgement && !v.Acknowledged
}

// SampleResult is what ProcessSample returns: the outcome of
// persisting, classifying and rule-checking one subgroup.
type SampleResult struct {
	SampleID        int64
	Mean            float64
	RangeValue      *float64
	Zone            *Zone
	InControl       bool
	SigmaDistance   *float64
	Violations      []Violation
	ProcessingTimeMs float64
}

// Annotation is a point or period note attached to a characteristic's
// chart, optionally anchored to a sample.
type Annotation struct {
	ID               int64      `json:"id" db:"id"`
	CharacteristicID int64      `json:"characteristic_id" db:"characteristic_id"`
	SampleID         *int64     `json:"sample_id,omitempty" db:"sample_id"`
	Kind             string     `json:"kind" db:"kind"` // "point" | "period"
	Text             string     `json:"text" db:"text"`
	StartAt          time.Time  `json:"start_at" db:"start_at"`
	EndAt            *time.Time `json:"end_at,omitempty" db:"end_at"`
	CreatedBy        string     `json:"created_by" db:"created_by"`
}
