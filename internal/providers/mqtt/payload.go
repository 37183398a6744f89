// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/influxdata/line-protocol/v2/lineprotocol"
)

// jsonValuePayload is the minimal `{"value": ...}` shape accepted on a
// plain (non-Sparkplug) topic.
type jsonValuePayload struct {
	Value float64 `json:"value"`
}

// parsePlainPayload accepts a bare ASCII float, a minimal JSON object of
// the form {"value": N}, or a single influxdata line-protocol point
// whose first field (of any name) is taken — the three shapes a plain
// (non-Sparkplug) topic may carry, tried in that order.
func parsePlainPayload(payload []byte) (float64, error) {
	text := strings.TrimSpace(string(payload))

	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return v, nil
	}

	var jv jsonValuePayload
	if err := json.Unmarshal(payload, &jv); err == nil {
		return jv.Value, nil
	}

	if v, ok := firstLineProtocolFloatField(payload); ok {
		return v, nil
	}

	return 0, fmt.Errorf("unrecognised payload shape: %q", text)
}

// firstLineProtocolFloatField decodes payload as one influxdata
// line-protocol point and returns the first field's value as a float,
// regardless of field name.
func firstLineProtocolFloatField(payload []byte) (float64, bool) {
	dec := lineprotocol.NewDecoderWithBytes(payload)
	if !dec.Next() {
		return 0, false
	}
	if _, err := dec.Measurement(); err != nil {
		return 0, false
	}
	for {
		key, _, err := dec.NextTag()
		if err != nil {
			return 0, false
		}
		if key == nil {
			break
		}
	}
	key, val, err := dec.NextField()
	if err != nil || key == nil {
		return 0, false
	}
	switch val.Kind() {
	case lineprotocol.Float:
		return val.FloatV(), true
	case lineprotocol.Int:
		return float64(val.IntV()), true
	case lineprotocol.Uint:
		return float64(val.UintV()), true
	default:
		return 0, false
	}
}
