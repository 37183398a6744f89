// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "time"

// Event is implemented by every value the bus can carry. EventClass
// is used to key handler subscriptions.
type Event interface {
	EventClass() string
	OccurredAt() time.Time
}

// SampleProcessedEvent is published once per successful ProcessSample
// call, regardless of whether any rule fired.
type SampleProcessedEvent struct {
	CharacteristicID int64
	Sample           Sample
	Mean             float64
	RangeValue       *float64
	Zone             *Zone
	InControl        bool
	SigmaDistance     *float64
	Violations        []Violation
	Timestamp         time.Time
}

func (e SampleProcessedEvent) EventClass() string    { return "sample_processed" }
func (e SampleProcessedEvent) OccurredAt() time.Time { return e.Timestamp }

// ControlLimitsUpdatedEvent is published after RecalculateLimits writes
// new CL/UCL/LCL/sigma to a characteristic.
type ControlLimitsUpdatedEvent struct {
	CharacteristicID int64
	CenterLine       float64
	UCL              float64
	LCL              float64
	Sigma            float64
	Timestamp        time.Time
}

func (e ControlLimitsUpdatedEvent) EventClass() string    { return "control_limits_updated" }
func (e ControlLimitsUpdatedEvent) OccurredAt() time.Time { return e.Timestamp }

// ViolationCreatedEvent is published once per fired rule persisted
// during ProcessSample.
type ViolationCreatedEvent struct {
	Violation Violation
	Timestamp time.Time
}

func (e ViolationCreatedEvent) EventClass() string    { return "violation_created" }
func (e ViolationCreatedEvent) OccurredAt() time.Time { return e.Timestamp }

// ViolationAcknowledgedEvent is published when a violation transitions
// acknowledged:false -> true.
type ViolationAcknowledgedEvent struct {
	Violation Violation
	Timestamp time.Time
}

func (e ViolationAcknowledgedEvent) EventClass() string    { return "violation_acknowledged" }
func (e ViolationAcknowledgedEvent) OccurredAt() time.Time { return e.Timestamp }
