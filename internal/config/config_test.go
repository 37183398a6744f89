// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `{"db": "./var/test.db", "addr": ":9090", "windowSize": 30}`)

	require.NoError(t, load(path))

	got := Get()
	assert.Equal(t, ":9090", got.Addr)
	assert.Equal(t, "./var/test.db", got.DB)
	assert.Equal(t, 30, got.WindowSize)
	assert.Equal(t, 1000, got.WindowCacheCapacity, "unset fields keep their default")
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	path := writeConfig(t, `{"addr": ":9090"}`)
	assert.Error(t, load(path))
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, `{"db": "./var/test.db", "bogusField": true}`)
	assert.Error(t, load(path))
}
