// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package apperrors defines the sentinel error taxonomy shared by the
// providers, engine, retention and api packages, following the
// teacher's convention of wrapping sentinels with %w rather than
// defining one bespoke error type per package.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind buckets a sentinel error into the HTTP-status family internal/api
// maps it to.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindConflict
	KindState
)

var (
	ErrCharacteristicNotFound   = errors.New("characteristic not found")
	ErrHierarchyNodeNotFound    = errors.New("hierarchy node not found")
	ErrViolationNotFound        = errors.New("violation not found")
	ErrBrokerNotFound           = errors.New("broker not found")
	ErrServerNotFound           = errors.New("server not found")

	ErrProviderTypeMismatch     = errors.New("data source type does not accept this ingress")
	ErrMeasurementCountMismatch = errors.New("measurement count does not match subgroup size")
	ErrInvalidSubgroupSize      = errors.New("subgroup size out of range [1,25]")
	ErrDisallowedRetentionOpt   = errors.New("retention option not allowed")
	ErrDisallowedPort           = errors.New("connection port not allowed")

	ErrDuplicateName            = errors.New("duplicate name within plant")
	ErrDuplicateGlobalRetention = errors.New("duplicate global retention default")
	ErrAlreadyAcknowledged      = errors.New("violation already acknowledged")

	ErrClientUnavailable     = errors.New("broker/server client unavailable")
	ErrTriggerStrategyMismatch = errors.New("trigger strategy not supported by this provider")
	ErrPurgeEngineNotRunning = errors.New("purge engine not running")
)

// kindOf is populated once below; avoids a duplicated switch at every
// call site that needs to map an error to a Kind.
var kindOf = map[error]Kind{
	ErrCharacteristicNotFound: KindNotFound,
	ErrHierarchyNodeNotFound:  KindNotFound,
	ErrViolationNotFound:      KindNotFound,
	ErrBrokerNotFound:         KindNotFound,
	ErrServerNotFound:         KindNotFound,

	ErrProviderTypeMismatch:     KindValidation,
	ErrMeasurementCountMismatch: KindValidation,
	ErrInvalidSubgroupSize:      KindValidation,
	ErrDisallowedRetentionOpt:   KindValidation,
	ErrDisallowedPort:           KindValidation,

	ErrDuplicateName:            KindConflict,
	ErrDuplicateGlobalRetention: KindConflict,
	ErrAlreadyAcknowledged:      KindConflict,

	ErrClientUnavailable:       KindState,
	ErrTriggerStrategyMismatch: KindState,
	ErrPurgeEngineNotRunning:   KindState,
}

// KindOf walks err's %w chain looking for a registered sentinel and
// returns its Kind. Unregistered errors default to KindState, which
// internal/api maps to a 500.
func KindOf(err error) Kind {
	for sentinel, k := range kindOf {
		if errors.Is(err, sentinel) {
			return k
		}
	}
	return KindState
}

// Wrap annotates err with msg while preserving errors.Is matching
// against the wrapped sentinel.
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}
