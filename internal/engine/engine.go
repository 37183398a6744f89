// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package engine is the central orchestrator: it turns a validated
// subgroup into a persisted Sample, a classified window entry, zero or
// more fired-rule Violations, and the published events that follow.
// Every other package (providers, api) calls into it; it calls out to
// a Store (internal/repository), a rolling window Manager, and an
// event bus, none of which it constructs itself.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/openspc/openspc/internal/nelson"
	"github.com/openspc/openspc/internal/rollingwindow"
	"github.com/openspc/openspc/internal/spcstat"
	"github.com/openspc/openspc/pkg/apperrors"
	"github.com/openspc/openspc/pkg/log"
	"github.com/openspc/openspc/pkg/schema"
)

// Store is the persistence seam the engine calls through. internal/repository
// provides the concrete sqlx/squirrel-backed implementation.
type Store interface {
	Characteristic(ctx context.Context, charID int64) (*schema.Characteristic, error)
	DataSourceForCharacteristic(ctx context.Context, charID int64) (*schema.DataSource, error)
	CharacteristicRules(ctx context.Context, charID int64) ([]schema.CharacteristicRule, error)

	// InsertSample persists sample and its measurement children in a
	// single transaction and returns the generated sample id.
	InsertSample(ctx context.Context, sample *schema.Sample, measurements []float64) (int64, error)
	InsertViolation(ctx context.Context, v *schema.Violation) (int64, error)

	UpdateCharacteristicLimits(ctx context.Context, charID int64, limits spcstat.ControlLimits) error

	// LoadSamplesForRecalc returns the subgroup means and spreads of
	// every persisted sample for control-limit recomputation, oldest
	// first, optionally excluding samples flagged is_excluded. A
	// sample's spread is its standard deviation when it holds 11 or
	// more measurements and its range otherwise.
	LoadSamplesForRecalc(ctx context.Context, charID int64, excludeOOC bool) (means, spread []float64, err error)

	Violation(ctx context.Context, id int64) (*schema.Violation, error)
	AcknowledgeViolation(ctx context.Context, id int64, user, reason string, excludeSample bool) error
}

// Publisher is the subset of eventbus.Bus the engine depends on.
type Publisher interface {
	Publish(schema.Event)
	PublishAndWait(schema.Event) []error
}

// Metrics is the subset of pkg/metrics the engine reports to. A nil
// Metrics is valid; every call becomes a no-op.
type Metrics interface {
	ObserveProcessingDuration(seconds float64)
	IncSamplesProcessed()
	IncViolation(ruleID int, severity string)
}

// Engine wires the window manager, the rule library and the event bus
// around one Store.
type Engine struct {
	store   Store
	windows *rollingwindow.Manager
	bus     Publisher
	metrics Metrics
	logger  *log.ComponentLogger
}

// New builds an Engine. metrics may be nil.
func New(store Store, windows *rollingwindow.Manager, bus Publisher, metrics Metrics) *Engine {
	return &Engine{
		store:   store,
		windows: windows,
		bus:     bus,
		metrics: metrics,
		logger:  log.Component("ENGINE"),
	}
}

// ProcessSample runs the full ten-step pipeline for one arriving
// subgroup and returns its outcome.
func (e *Engine) ProcessSample(ctx context.Context, charID int64, measurements []float64, sctx schema.SampleContext) (*schema.SampleResult, error) {
	start := time.Now()

	char, err := e.store.Characteristic(ctx, charID)
	if err != nil || char == nil {
		return nil, apperrors.Wrap(fmt.Sprintf("characteristic %d", charID), apperrors.ErrCharacteristicNotFound)
	}

	if err := e.validateCount(ctx, char, measurements); err != nil {
		return nil, err
	}

	mean, rangeValue := spcstat.CalculateMeanRange(measurements)

	sample := &schema.Sample{
		CharacteristicID: charID,
		Timestamp:        resolveTimestamp(sctx),
		BatchNumber:      sctx.BatchNumber,
		OperatorID:       sctx.OperatorID,
		IsExcluded:       false,
		ActualN:          len(measurements),
	}
	sampleID, err := e.store.InsertSample(ctx, sample, measurements)
	if err != nil {
		return nil, apperrors.Wrap("persist sample", err)
	}
	sample.ID = sampleID

	if !char.LimitsSet() {
		e.bus.Publish(schema.SampleProcessedEvent{
			CharacteristicID: charID,
			Sample:           *sample,
			Mean:             mean,
			RangeValue:       rangeValue,
			InControl:        true,
			Timestamp:        time.Now(),
		})
		e.observe(start, nil)
		return &schema.SampleResult{
			SampleID:         sampleID,
			Mean:             mean,
			RangeValue:       rangeValue,
			InControl:        true,
			ProcessingTimeMs: elapsedMs(start),
		}, nil
	}

	window, err := e.windows.Get(ctx, charID)
	if err != nil {
		return nil, apperrors.Wrap("load rolling window", err)
	}

	window.Lock()
	entry := window.AppendSample(sampleID, sample.Timestamp, mean, rangeValue)
	snapshot := window.Snapshot()
	window.Unlock()

	rules, err := e.store.CharacteristicRules(ctx, charID)
	if err != nil {
		return nil, apperrors.Wrap("load characteristic rules", err)
	}
	enabled, requiresAck := splitRules(rules)

	fired := nelson.CheckAll(snapshot, enabled)
	violations := make([]schema.Violation, 0, len(fired))
	for _, f := range fired {
		v := schema.Violation{
			SampleID:                sampleID,
			CharacteristicID:        charID,
			RuleID:                  f.RuleID,
			RuleName:                f.RuleName,
			Severity:                f.Severity,
			RequiresAcknowledgement: requiresAck[f.RuleID],
		}
		id, err := e.store.InsertViolation(ctx, &v)
		if err != nil {
			return nil, apperrors.Wrap(fmt.Sprintf("persist violation for rule %d", f.RuleID), err)
		}
		v.ID = id
		violations = append(violations, v)
		if e.metrics != nil {
			e.metrics.IncViolation(v.RuleID, string(v.Severity))
		}
	}

	zone := entry.Zone
	sigmaDistance := entry.SigmaDistance

	e.bus.Publish(schema.SampleProcessedEvent{
		CharacteristicID: charID,
		Sample:           *sample,
		Mean:             mean,
		RangeValue:       rangeValue,
		Zone:             &zone,
		InControl:        len(violations) == 0,
		SigmaDistance:    &sigmaDistance,
		Violations:       violations,
		Timestamp:        time.Now(),
	})
	for _, v := range violations {
		e.bus.Publish(schema.ViolationCreatedEvent{Violation: v, Timestamp: time.Now()})
	}

	e.observe(start, violations)
	return &schema.SampleResult{
		SampleID:         sampleID,
		Mean:             mean,
		RangeValue:       rangeValue,
		Zone:             &zone,
		InControl:        len(violations) == 0,
		SigmaDistance:    &sigmaDistance,
		Violations:       violations,
		ProcessingTimeMs: elapsedMs(start),
	}, nil
}

// validateCount enforces len(measurements) in [1, subgroup_size], with
// an under-sized subgroup allowed only when the characteristic's bound
// data source is declared variable-n.
func (e *Engine) validateCount(ctx context.Context, char *schema.Characteristic, measurements []float64) error {
	n := len(measurements)
	if n < 1 {
		return apperrors.Wrap(fmt.Sprintf("characteristic %d", char.ID), apperrors.ErrMeasurementCountMismatch)
	}
	if n > char.SubgroupSize {
		return apperrors.Wrap(fmt.Sprintf("characteristic %d: got %d, max %d", char.ID, n, char.SubgroupSize), apperrors.ErrMeasurementCountMismatch)
	}
	if n < char.SubgroupSize {
		src, err := e.store.DataSourceForCharacteristic(ctx, char.ID)
		if err != nil {
			return apperrors.Wrap(fmt.Sprintf("characteristic %d", char.ID), err)
		}
		if src == nil || !src.VariableN {
			return apperrors.Wrap(fmt.Sprintf("characteristic %d: got %d, want %d", char.ID, n, char.SubgroupSize), apperrors.ErrMeasurementCountMismatch)
		}
	}
	return nil
}

func (e *Engine) observe(start time.Time, violations []schema.Violation) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveProcessingDuration(time.Since(start).Seconds())
	e.metrics.IncSamplesProcessed()
}

func splitRules(rules []schema.CharacteristicRule) (enabled map[int]bool, requiresAck map[int]bool) {
	enabled = make(map[int]bool, len(rules))
	requiresAck = make(map[int]bool, len(rules))
	for _, r := range rules {
		if r.Enabled {
			enabled[r.RuleID] = true
		}
		requiresAck[r.RuleID] = r.RequiresAcknowledgement
	}
	return enabled, requiresAck
}

func resolveTimestamp(ctx schema.SampleContext) time.Time {
	if ctx.Timestamp != nil {
		return *ctx.Timestamp
	}
	return time.Now().UTC()
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
