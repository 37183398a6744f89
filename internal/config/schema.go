// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

// configSchema validates the operator-supplied config file before it
// is decoded into Keys, following the teacher's own
// jsonschema.CompileString + json.Decode(DisallowUnknownFields) two
// step pattern.
var configSchema = `
{
  "type": "object",
  "properties": {
    "addr": {
      "description": "Address the HTTP server listens on (e.g. ':8080').",
      "type": "string"
    },
    "db": {
      "description": "Path to the sqlite3 database file.",
      "type": "string"
    },
    "apiKey": {
      "description": "Bearer token required on every /api/v1 request.",
      "type": "string"
    },
    "windowSize": {
      "description": "Number of subgroups the rolling window keeps per characteristic.",
      "type": "integer",
      "minimum": 2
    },
    "windowCacheCapacity": {
      "description": "Max number of characteristics' rolling windows held in the LRU cache at once.",
      "type": "integer",
      "minimum": 1
    },
    "subgroupBufferTimeoutSeconds": {
      "description": "Flush an on_timer/on_change subgroup buffer after this many idle seconds.",
      "type": "integer",
      "minimum": 1
    },
    "retentionCheckIntervalHours": {
      "description": "How often the retention purge engine sweeps every characteristic.",
      "type": "integer",
      "minimum": 1
    },
    "encryptionKeyEnvVar": {
      "description": "Name of the environment variable holding the base64 nacl/secretbox key credentials are encrypted with.",
      "type": "string"
    },
    "httpsCertFile": {
      "description": "Filepath to SSL certificate. If set along with httpsKeyFile, serve HTTPS.",
      "type": "string"
    },
    "httpsKeyFile": {
      "description": "Filepath to SSL key file. If set along with httpsCertFile, serve HTTPS.",
      "type": "string"
    },
    "user": {
      "description": "Drop root permissions to this user once the port is bound.",
      "type": "string"
    },
    "group": {
      "description": "Drop root permissions to this group once the port is bound.",
      "type": "string"
    },
    "mqttBrokers": {
      "description": "MQTT broker connections available for data sources to bind against.",
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "integer"},
          "address": {"type": "string"},
          "username": {"type": "string"},
          "clientId": {"type": "string"}
        },
        "required": ["id", "address"]
      }
    },
    "opcuaServers": {
      "description": "OPC-UA server connections available for data sources to bind against.",
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "integer"},
          "endpoint": {"type": "string"},
          "securityPolicy": {"type": "string"},
          "securityMode": {"type": "string"}
        },
        "required": ["id", "endpoint"]
      }
    },
    "outboundBrokers": {
      "description": "Unified Namespace brokers every processed sample/violation is republished to.",
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "integer"},
          "kind": {"type": "string", "enum": ["mqtt", "nats"]},
          "address": {"type": "string"},
          "topicPrefix": {"type": "string"},
          "format": {"type": "string", "enum": ["json", "sparkplug"]},
          "minIntervalMs": {"type": "integer"}
        },
        "required": ["id", "kind", "address"]
      }
    }
  },
  "required": ["db"]
}`
