// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package outbound

import (
	"encoding/json"
	"time"

	"github.com/openspc/openspc/pkg/schema"
)

// Format selects the wire encoding an outbound broker expects.
type Format string

const (
	// FormatJSON emits a plain JSON object with an "event", a
	// "timestamp" and the event's own fields.
	FormatJSON Format = "json"
	// FormatSparkplug emits a typed metric set shaped like the
	// Sparkplug-B metric list the mqtt ingress provider already
	// understands on the way in.
	FormatSparkplug Format = "sparkplug"
)

// jsonEnvelope is the plain-JSON wire shape.
type jsonEnvelope struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// sparkplugMetric mirrors the minimal metric shape providers/mqtt
// decodes on ingress, reused here so a Sparkplug-speaking outbound
// broker sees the same metric list shape both directions.
type sparkplugMetric struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

type sparkplugEnvelope struct {
	Timestamp int64             `json:"timestamp"`
	Metrics   []sparkplugMetric `json:"metrics"`
}

// encodePayload renders evt in the requested format. eventName is the
// short topic-suffix name ("sample", "limits", "violation", "ack");
// numeric is the single scalar value Sparkplug's metric-set form
// reduces the event to (zero value if the event class has none).
func encodePayload(format Format, eventName string, evt schema.Event, numeric float64, metricName string) ([]byte, error) {
	switch format {
	case FormatSparkplug:
		return json.Marshal(sparkplugEnvelope{
			Timestamp: evt.OccurredAt().UnixMilli(),
			Metrics: []sparkplugMetric{{
				Name:      metricName,
				Value:     numeric,
				Timestamp: evt.OccurredAt().UnixMilli(),
			}},
		})
	default:
		return json.Marshal(jsonEnvelope{
			Event:     eventName,
			Timestamp: evt.OccurredAt(),
			Data:      evt,
		})
	}
}
