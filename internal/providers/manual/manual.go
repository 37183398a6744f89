// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package manual is the thin validating handler behind both the
// manual-entry UI path and the REST submission endpoint: unlike the
// tag-based providers it never touches a subgroup buffer, since a
// manual/REST submission already carries a complete subgroup.
package manual

import (
	"context"
	"fmt"

	"github.com/openspc/openspc/pkg/apperrors"
	"github.com/openspc/openspc/pkg/schema"
)

// Lookup resolves the two facts Submit must validate against.
type Lookup interface {
	Characteristic(ctx context.Context, id int64) (*schema.Characteristic, error)
	// DataSourceForCharacteristic returns (nil, nil) if the
	// characteristic has no bound ingress at all, in which case
	// manual submission is always accepted.
	DataSourceForCharacteristic(ctx context.Context, charID int64) (*schema.DataSource, error)
}

// Sink receives a validated SampleEvent for downstream engine processing.
type Sink func(schema.SampleEvent)

// Provider handles manual UI entry and REST data-entry submissions.
type Provider struct {
	lookup Lookup
	sink   Sink
}

// New builds a manual/REST provider.
func New(lookup Lookup, sink Sink) *Provider {
	return &Provider{lookup: lookup, sink: sink}
}

// Submit validates a single subgroup submission and, on success, emits
// exactly one SampleEvent.
func (p *Provider) Submit(ctx context.Context, charID int64, measurements []float64, sctx schema.SampleContext) error {
	char, err := p.lookup.Characteristic(ctx, charID)
	if err != nil || char == nil {
		return apperrors.Wrap(fmt.Sprintf("characteristic %d", charID), apperrors.ErrCharacteristicNotFound)
	}

	src, err := p.lookup.DataSourceForCharacteristic(ctx, charID)
	if err != nil {
		return apperrors.Wrap(fmt.Sprintf("characteristic %d", charID), err)
	}
	if src != nil && src.Kind != schema.SourceManual {
		return apperrors.Wrap(fmt.Sprintf("characteristic %d is bound to %s", charID, src.Kind), apperrors.ErrProviderTypeMismatch)
	}

	if len(measurements) != char.SubgroupSize {
		return apperrors.Wrap(fmt.Sprintf("characteristic %d wants %d, got %d", charID, char.SubgroupSize, len(measurements)), apperrors.ErrMeasurementCountMismatch)
	}

	if sctx.Source == "" {
		sctx.Source = schema.SampleSourceManual
	}
	p.sink(schema.SampleEvent{
		CharacteristicID: charID,
		Measurements:     measurements,
		Context:          sctx,
	})
	return nil
}

// SubmitBatch validates and emits each element of a batch independently,
// collecting per-index errors rather than failing the whole batch on
// the first bad entry.
func (p *Provider) SubmitBatch(ctx context.Context, entries []BatchEntry) []error {
	errs := make([]error, len(entries))
	for i, e := range entries {
		errs[i] = p.Submit(ctx, e.CharacteristicID, e.Measurements, e.Context)
	}
	return errs
}

// BatchEntry is one element of a /data-entry/batch request.
type BatchEntry struct {
	CharacteristicID int64
	Measurements     []float64
	Context          schema.SampleContext
}
