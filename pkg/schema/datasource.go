// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

// TriggerStrategy selects how raw readings are grouped into subgroups.
type TriggerStrategy string

const (
	OnChange  TriggerStrategy = "on_change"
	OnTrigger TriggerStrategy = "on_trigger"
	OnTimer   TriggerStrategy = "on_timer"
)

// SourceKind discriminates the DataSource tagged union.
type SourceKind string

const (
	SourceManual SourceKind = "manual"
	SourceMqtt   SourceKind = "mqtt"
	SourceOpcUa  SourceKind = "opcua"
)

// MqttSourceSpec is the MQTT-specific child row of a DataSource.
type MqttSourceSpec struct {
	BrokerID    int64   `json:"broker_id" db:"broker_id"`
	Topic       string  `json:"topic" db:"topic"`
	MetricName  *string `json:"metric_name,omitempty" db:"metric_name"`
	TriggerTag  *string `json:"trigger_tag,omitempty" db:"trigger_tag"`
}

// OpcUaSourceSpec is the OPC-UA-specific child row of a DataSource.
type OpcUaSourceSpec struct {
	ServerID          int64    `json:"server_id" db:"server_id"`
	NodeID            string   `json:"node_id" db:"node_id"`
	SamplingInterval  *float64 `json:"sampling_interval_ms,omitempty" db:"sampling_interval_ms"`
}

// DataSource binds exactly one characteristic to the one ingress
// modality that feeds it. Kind discriminates which of Mqtt/OpcUa is
// populated; Manual carries no child row.
type DataSource struct {
	ID               int64           `json:"id" db:"id"`
	CharacteristicID int64           `json:"characteristic_id" db:"characteristic_id"`
	Kind             SourceKind      `json:"kind" db:"kind"`
	IsActive         bool            `json:"is_active" db:"is_active"`
	TriggerStrategy  TriggerStrategy `json:"trigger_strategy" db:"trigger_strategy"`
	// VariableN allows a subgroup smaller than the characteristic's
	// subgroup_size to be accepted rather than rejected as a count
	// mismatch.
	VariableN bool `json:"variable_n" db:"variable_n"`

	Mqtt  *MqttSourceSpec  `json:"mqtt,omitempty" db:"-"`
	OpcUa *OpcUaSourceSpec `json:"opcua,omitempty" db:"-"`
}
