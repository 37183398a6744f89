// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestIncSamplesProcessedIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncSamplesProcessed()
	m.IncSamplesProcessed()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, findCounter(t, families, "openspc_samples_processed_total"))
}

func findCounter(t *testing.T, families []*dto.MetricFamily, name string) []*dto.Metric {
	t.Helper()
	for _, f := range families {
		if f.GetName() == name {
			return f.Metric
		}
	}
	return nil
}

func TestIncViolationLabelsByRuleAndSeverity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncViolation(1, "CRITICAL")

	families, err := reg.Gather()
	require.NoError(t, err)
	metrics := findCounter(t, families, "openspc_violations_total")
	require.Len(t, metrics, 1)
}
