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

// DataSourceForCharacteristic implements engine.Store and
// manual.Lookup: it returns (nil, nil) when the characteristic has no
// bound ingress at all.
func (r *Repository) DataSourceForCharacteristic(ctx context.Context, charID int64) (*schema.DataSource, error) {
	row := sq.Select("id", "characteristic_id", "kind", "is_active", "trigger_strategy", "variable_n").
		From("data_source").Where(sq.Eq{"characteristic_id": charID}).
		RunWith(r.stmtCache).QueryRowContext(ctx)

	ds := &schema.DataSource{}
	err := row.Scan(&ds.ID, &ds.CharacteristicID, &ds.Kind, &ds.IsActive, &ds.TriggerStrategy, &ds.VariableN)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: data source for characteristic %d: %w", charID, err)
	}

	switch ds.Kind {
	case schema.SourceMqtt:
		spec := &schema.MqttSourceSpec{}
		row := sq.Select("broker_id", "topic", "metric_name", "trigger_tag").
			From("mqtt_source_spec").Where(sq.Eq{"data_source_id": ds.ID}).
			RunWith(r.stmtCache).QueryRowContext(ctx)
		if err := row.Scan(&spec.BrokerID, &spec.Topic, &spec.MetricName, &spec.TriggerTag); err != nil {
			return nil, fmt.Errorf("repository: mqtt spec for data source %d: %w", ds.ID, err)
		}
		ds.Mqtt = spec
	case schema.SourceOpcUa:
		spec := &schema.OpcUaSourceSpec{}
		row := sq.Select("server_id", "node_id", "sampling_interval_ms").
			From("opcua_source_spec").Where(sq.Eq{"data_source_id": ds.ID}).
			RunWith(r.stmtCache).QueryRowContext(ctx)
		if err := row.Scan(&spec.ServerID, &spec.NodeID, &spec.SamplingInterval); err != nil {
			return nil, fmt.Errorf("repository: opcua spec for data source %d: %w", ds.ID, err)
		}
		ds.OpcUa = spec
	}

	return ds, nil
}

// ActiveMqttSources returns every active MQTT-bound data source, used
// at startup to bind internal/providers/mqtt.Provider instances.
func (r *Repository) ActiveMqttSources(ctx context.Context) ([]schema.DataSource, error) {
	return r.activeSourcesOfKind(ctx, schema.SourceMqtt)
}

// ActiveOpcUaSources returns every active OPC-UA-bound data source,
// used at startup to bind internal/providers/opcua.Provider instances.
func (r *Repository) ActiveOpcUaSources(ctx context.Context) ([]schema.DataSource, error) {
	return r.activeSourcesOfKind(ctx, schema.SourceOpcUa)
}

func (r *Repository) activeSourcesOfKind(ctx context.Context, kind schema.SourceKind) ([]schema.DataSource, error) {
	rows, err := sq.Select("characteristic_id").From("data_source").
		Where(sq.Eq{"kind": kind, "is_active": true}).
		RunWith(r.stmtCache).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: list active %s sources: %w", kind, err)
	}
	var charIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		charIDs = append(charIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]schema.DataSource, 0, len(charIDs))
	for _, id := range charIDs {
		ds, err := r.DataSourceForCharacteristic(ctx, id)
		if err != nil {
			return nil, err
		}
		if ds != nil {
			out = append(out, *ds)
		}
	}
	return out, nil
}

// CreateDataSource persists a DataSource and its kind-specific child
// row in one transaction.
func (r *Repository) CreateDataSource(ctx context.Context, ds *schema.DataSource) (int64, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO data_source (characteristic_id, kind, is_active, trigger_strategy, variable_n) VALUES (?, ?, ?, ?, ?)`,
		ds.CharacteristicID, ds.Kind, ds.IsActive, ds.TriggerStrategy, ds.VariableN)
	if err != nil {
		return 0, fmt.Errorf("repository: insert data source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	switch ds.Kind {
	case schema.SourceMqtt:
		if ds.Mqtt == nil {
			return 0, fmt.Errorf("repository: mqtt data source missing Mqtt spec")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mqtt_source_spec (data_source_id, broker_id, topic, metric_name, trigger_tag) VALUES (?, ?, ?, ?, ?)`,
			id, ds.Mqtt.BrokerID, ds.Mqtt.Topic, ds.Mqtt.MetricName, ds.Mqtt.TriggerTag); err != nil {
			return 0, fmt.Errorf("repository: insert mqtt spec: %w", err)
		}
	case schema.SourceOpcUa:
		if ds.OpcUa == nil {
			return 0, fmt.Errorf("repository: opcua data source missing OpcUa spec")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO opcua_source_spec (data_source_id, server_id, node_id, sampling_interval_ms) VALUES (?, ?, ?, ?)`,
			id, ds.OpcUa.ServerID, ds.OpcUa.NodeID, ds.OpcUa.SamplingInterval); err != nil {
			return 0, fmt.Errorf("repository: insert opcua spec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}
