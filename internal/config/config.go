// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates openspc-server's JSON config
// file, following the teacher's Keys-global-var +
// jsonschema-then-decode pattern, and watches the file for edits with
// fsnotify so operators can change broker/retention settings without a
// restart.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"

	"github.com/openspc/openspc/internal/util"
	"github.com/openspc/openspc/pkg/log"
)

// MqttBrokerConfig is one configured MQTT broker connection.
type MqttBrokerConfig struct {
	ID       int64  `json:"id"`
	Address  string `json:"address"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	ClientID string `json:"clientId,omitempty"`
}

// OpcUaServerConfig is one configured OPC-UA server connection.
type OpcUaServerConfig struct {
	ID             int64  `json:"id"`
	Endpoint       string `json:"endpoint"`
	SecurityPolicy string `json:"securityPolicy,omitempty"`
	SecurityMode   string `json:"securityMode,omitempty"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
}

// OutboundBrokerConfig is one Unified Namespace republish target.
type OutboundBrokerConfig struct {
	ID            int64  `json:"id"`
	Kind          string `json:"kind"`
	Address       string `json:"address"`
	TopicPrefix   string `json:"topicPrefix,omitempty"`
	Format        string `json:"format,omitempty"`
	MinIntervalMs int    `json:"minIntervalMs,omitempty"`
}

// ProgramConfig is openspc-server's full runtime configuration.
type ProgramConfig struct {
	Addr string `json:"addr"`
	DB   string `json:"db"`

	APIKey string `json:"apiKey"`

	WindowSize                    int `json:"windowSize"`
	WindowCacheCapacity           int `json:"windowCacheCapacity"`
	SubgroupBufferTimeoutSeconds  int `json:"subgroupBufferTimeoutSeconds"`
	RetentionCheckIntervalHours   int `json:"retentionCheckIntervalHours"`

	EncryptionKeyEnvVar string `json:"encryptionKeyEnvVar"`

	HTTPSCertFile string `json:"httpsCertFile,omitempty"`
	HTTPSKeyFile  string `json:"httpsKeyFile,omitempty"`
	User          string `json:"user,omitempty"`
	Group         string `json:"group,omitempty"`

	MqttBrokers     []MqttBrokerConfig     `json:"mqttBrokers,omitempty"`
	OpcUaServers    []OpcUaServerConfig    `json:"opcuaServers,omitempty"`
	OutboundBrokers []OutboundBrokerConfig `json:"outboundBrokers,omitempty"`
}

// Keys holds the active configuration. Init populates it; reloadListener
// re-populates it in place on every fsnotify write event.
var (
	keysMu sync.RWMutex
	Keys   = ProgramConfig{
		Addr:                          ":8080",
		DB:                            "./var/openspc.db",
		WindowSize:                    25,
		WindowCacheCapacity:           1000,
		SubgroupBufferTimeoutSeconds:  60,
		RetentionCheckIntervalHours:   24,
		EncryptionKeyEnvVar:           "OPENSPC_CREDENTIAL_KEY",
	}
)

// Get returns a copy of the current config, safe to call concurrently
// with a reload triggered by the file watcher.
func Get() ProgramConfig {
	keysMu.RLock()
	defer keysMu.RUnlock()
	return Keys
}

// Init loads flagConfigFile into Keys, validating it against
// configSchema first, then watches it for further edits.
func Init(flagConfigFile string) error {
	if err := load(flagConfigFile); err != nil {
		return err
	}
	util.AddListener(flagConfigFile, &reloadListener{path: flagConfigFile})
	return nil
}

func load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := validateAgainstSchema(configSchema, raw); err != nil {
		return err
	}

	next := ProgramConfig{}
	keysMu.RLock()
	next = Keys
	keysMu.RUnlock()

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		return err
	}

	keysMu.Lock()
	Keys = next
	keysMu.Unlock()
	return nil
}

// reloadListener implements util.Listener: it reloads the config file
// on every write/create event fsnotify reports for it.
type reloadListener struct {
	path string
}

func (l *reloadListener) EventMatch(event string) bool {
	return bytes.Contains([]byte(event), []byte(l.path))
}

func (l *reloadListener) EventCallback() {
	if err := load(l.path); err != nil {
		log.Errorf("config: reload %s failed, keeping previous config: %v", l.path, err)
	} else {
		log.Infof("config: reloaded %s", l.path)
	}
}
