// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package mqtt

import (
	"encoding/json"
	"strings"
)

// sparkplugPrefix is the Sparkplug-B topic namespace: spBv1.0/{group}/
// {msgType}/{node}[/{device}]. Binary payload decoding is out of scope;
// a SparkplugDecoder is injected by the caller so a real protobuf codec
// can be wired in without this package changing.
const sparkplugPrefix = "spBv1.0/"

// isSparkplugTopic reports whether topic belongs to the Sparkplug-B
// namespace, purely from its prefix.
func isSparkplugTopic(topic string) bool {
	return strings.HasPrefix(topic, sparkplugPrefix)
}

// SparkplugMetric is one (name, value) pair extracted from a Sparkplug
// payload.
type SparkplugMetric struct {
	Name  string
	Value float64
}

// SparkplugDecoder turns a raw Sparkplug-B payload into its named
// metrics. The real wire format (protobuf-encoded NBIRTH/NDATA/DBIRTH/
// DDATA messages) is not decoded by this package; callers that need it
// supply their own implementation.
type SparkplugDecoder interface {
	Decode(payload []byte) ([]SparkplugMetric, error)
}

// jsonMetricSetDecoder decodes the degenerate case of a Sparkplug-style
// topic carrying a plain JSON metric set {"metrics":[{"name":..,"value":..}]}
// rather than the real binary protobuf encoding. It exists so the
// provider has a working default decoder; production deployments
// inject a protobuf-backed SparkplugDecoder instead.
type jsonMetricSetDecoder struct{}

func (jsonMetricSetDecoder) Decode(payload []byte) ([]SparkplugMetric, error) {
	var doc struct {
		Metrics []struct {
			Name  string  `json:"name"`
			Value float64 `json:"value"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}
	out := make([]SparkplugMetric, len(doc.Metrics))
	for i, m := range doc.Metrics {
		out[i] = SparkplugMetric{Name: m.Name, Value: m.Value}
	}
	return out, nil
}
