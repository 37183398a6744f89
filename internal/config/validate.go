// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/openspc/openspc/pkg/log"
)

func validateAgainstSchema(schema string, instance []byte) error {
	sch, err := jsonschema.CompileString("config-schema.json", schema)
	if err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return err
	}

	if err := sch.Validate(v); err != nil {
		log.Errorf("config: schema validation failed: %#v", err)
		return err
	}
	return nil
}
