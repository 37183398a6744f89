// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package retention is the scheduled purge engine: once per configured
// interval it walks every plant's characteristics, deletes sample
// history the resolved retention policy no longer wants kept, and
// records one PurgeHistory row per plant. Scheduling follows the
// teacher's internal/taskManager/retentionService.go gocron.DurationJob
// pattern rather than a hand-rolled sleep loop.
package retention

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/openspc/openspc/pkg/apperrors"
	"github.com/openspc/openspc/pkg/log"
	"github.com/openspc/openspc/pkg/schema"
)

// Store is the subset of internal/repository.Repository the purge
// engine depends on.
type Store interface {
	AllPlantIDs(ctx context.Context) ([]int64, error)
	CharacteristicIDsByPlant(ctx context.Context, plantID int64) ([]int64, error)
	PurgeCharacteristic(ctx context.Context, charID int64, now time.Time) (samplesDeleted, violationsDeleted int64, err error)
	RecordPurgeHistory(ctx context.Context, h *schema.PurgeHistory) (int64, error)
}

// Metrics is the subset of pkg/metrics the purge engine reports to. A
// nil Metrics is valid; every call becomes a no-op.
type Metrics interface {
	IncPurgeRun()
	AddSamplesDeleted(n int64)
}

// Engine schedules and runs purge sweeps.
type Engine struct {
	store     Store
	metrics   Metrics
	scheduler gocron.Scheduler
	logger    *log.ComponentLogger
}

// New builds an Engine. Call Start to schedule the recurring job,
// Shutdown to stop it.
func New(store Store, metrics Metrics) (*Engine, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:     store,
		metrics:   metrics,
		scheduler: s,
		logger:    log.Component("RETENTION"),
	}, nil
}

// Start registers a recurring sweep every interval and starts the
// scheduler. RunOnce does not check whether Start has been called.
func (e *Engine) Start(interval time.Duration) error {
	if _, err := e.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { e.RunOnce(context.Background()) }),
	); err != nil {
		return err
	}
	e.scheduler.Start()
	e.logger.Infof("retention purge engine started, interval %s", interval)
	return nil
}

// Shutdown stops the scheduler.
func (e *Engine) Shutdown() error {
	return e.scheduler.Shutdown()
}

// RunOnce sweeps every plant's characteristics once, writing one
// PurgeHistory row per plant. Errors purging an individual
// characteristic are logged and recorded on that plant's history row
// rather than aborting the whole sweep.
func (e *Engine) RunOnce(ctx context.Context) {
	if e.metrics != nil {
		e.metrics.IncPurgeRun()
	}

	plantIDs, err := e.store.AllPlantIDs(ctx)
	if err != nil {
		e.logger.Errorf("list plants: %v", err)
		return
	}

	for _, plantID := range plantIDs {
		e.purgePlant(ctx, plantID)
	}
}

func (e *Engine) purgePlant(ctx context.Context, plantID int64) {
	started := time.Now()
	history := &schema.PurgeHistory{PlantID: plantID, StartedAt: started}

	charIDs, err := e.store.CharacteristicIDsByPlant(ctx, plantID)
	if err != nil {
		errMsg := err.Error()
		history.Error = &errMsg
		e.finishAndRecord(ctx, history, started)
		return
	}

	for _, charID := range charIDs {
		samples, violations, err := e.store.PurgeCharacteristic(ctx, charID, started)
		if err != nil {
			e.logger.Warnf("purge characteristic %d: %v", charID, err)
			errMsg := err.Error()
			history.Error = &errMsg
			continue
		}
		history.SamplesDeleted += samples
		history.ViolationsDeleted += violations
		history.CharacteristicsProcessed++
	}

	if e.metrics != nil && history.SamplesDeleted > 0 {
		e.metrics.AddSamplesDeleted(history.SamplesDeleted)
	}
	e.finishAndRecord(ctx, history, started)
}

func (e *Engine) finishAndRecord(ctx context.Context, history *schema.PurgeHistory, started time.Time) {
	completed := time.Now()
	history.CompletedAt = &completed
	if _, err := e.store.RecordPurgeHistory(ctx, history); err != nil {
		e.logger.Errorf("record purge history for plant %d: %v", history.PlantID, err)
	}
	e.logger.Infof("plant %d: purged %d samples, %d violations across %d characteristics in %s",
		history.PlantID, history.SamplesDeleted, history.ViolationsDeleted, history.CharacteristicsProcessed, completed.Sub(started))
}

// ErrNotRunning is returned by callers (e.g. an admin "purge now" API
// endpoint) that try to trigger a sweep before Start has scheduled the
// engine.
var ErrNotRunning = apperrors.ErrPurgeEngineNotRunning
