// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/openspc/openspc/pkg/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind identifies which inline schema Validate should compile against.
type Kind int

const (
	DataEntrySubmit Kind = iota + 1
	DataEntryBatch
)

func schemaFor(k Kind) (string, error) {
	switch k {
	case DataEntrySubmit:
		return dataEntrySubmitSchema, nil
	case DataEntryBatch:
		return dataEntryBatchSchema, nil
	default:
		return "", fmt.Errorf("schema: unknown kind %d", k)
	}
}

// RawSchema returns the inline JSON Schema document for k, so
// internal/api can serve it verbatim from GET /api/v1/data-entry/schema.
func RawSchema(k Kind) (string, error) {
	return schemaFor(k)
}

// Validate compiles the inline schema for k and checks raw against it.
func Validate(k Kind, raw json.RawMessage) error {
	s, err := schemaFor(k)
	if err != nil {
		return err
	}

	sch, err := jsonschema.CompileString("schema.json", s)
	if err != nil {
		return fmt.Errorf("schema: compile: %w", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Errorf("schema.Validate() - failed to decode instance: %v", err)
		return fmt.Errorf("schema: decode instance: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	return nil
}

var dataEntrySubmitSchema = `
{
  "type": "object",
  "properties": {
    "characteristic_id": { "type": "integer", "minimum": 1 },
    "measurements": {
      "type": "array",
      "items": { "type": "number" },
      "minItems": 1
    },
    "batch_number": { "type": "string" },
    "operator_id": { "type": "string" },
    "metadata": { "type": "object" }
  },
  "required": ["characteristic_id", "measurements"]
}`

var dataEntryBatchSchema = `
{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "characteristic_id": { "type": "integer", "minimum": 1 },
      "measurements": {
        "type": "array",
        "items": { "type": "number" },
        "minItems": 1
      },
      "batch_number": { "type": "string" },
      "operator_id": { "type": "string" },
      "metadata": { "type": "object" }
    },
    "required": ["characteristic_id", "measurements"]
  },
  "minItems": 1
}`
