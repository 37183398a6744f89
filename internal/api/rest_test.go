// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openspc/openspc/internal/alertmanager"
	"github.com/openspc/openspc/internal/engine"
	"github.com/openspc/openspc/internal/repository"
	"github.com/openspc/openspc/internal/rollingwindow"
	"github.com/openspc/openspc/internal/spcstat"
	"github.com/openspc/openspc/pkg/apperrors"
	"github.com/openspc/openspc/pkg/schema"
)

// fakeStore implements both engine.Store and rollingwindow.HistoryLoader
// with one characteristic (id 1, subgroup size 3) and no persisted history.
type fakeStore struct {
	nextSampleID    int64
	nextViolationID int64
	samples         map[int64]*schema.Sample
	violations      map[int64]*schema.Violation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		samples:    map[int64]*schema.Sample{},
		violations: map[int64]*schema.Violation{},
	}
}

func (s *fakeStore) Characteristic(ctx context.Context, charID int64) (*schema.Characteristic, error) {
	if charID != 1 {
		return nil, nil
	}
	return &schema.Characteristic{ID: 1, HierarchyNodeID: 1, Name: "width", SubgroupSize: 3}, nil
}

func (s *fakeStore) DataSourceForCharacteristic(ctx context.Context, charID int64) (*schema.DataSource, error) {
	return nil, nil
}

func (s *fakeStore) CharacteristicRules(ctx context.Context, charID int64) ([]schema.CharacteristicRule, error) {
	return nil, nil
}

func (s *fakeStore) InsertSample(ctx context.Context, sample *schema.Sample, measurements []float64) (int64, error) {
	s.nextSampleID++
	sample.ID = s.nextSampleID
	cp := *sample
	s.samples[sample.ID] = &cp
	return sample.ID, nil
}

func (s *fakeStore) InsertViolation(ctx context.Context, v *schema.Violation) (int64, error) {
	s.nextViolationID++
	v.ID = s.nextViolationID
	cp := *v
	s.violations[v.ID] = &cp
	return v.ID, nil
}

func (s *fakeStore) UpdateCharacteristicLimits(ctx context.Context, charID int64, limits spcstat.ControlLimits) error {
	return nil
}

func (s *fakeStore) ViolationStats(ctx context.Context, filter repository.ViolationStatsFilter) (*repository.ViolationStatsResult, error) {
	return &repository.ViolationStatsResult{
		BySeverity:         map[schema.Severity]int64{},
		ByRuleID:           map[int]int64{},
		ByCharacteristicID: map[int64]int64{},
	}, nil
}

func (s *fakeStore) LoadSamplesForRecalc(ctx context.Context, charID int64, excludeOOC bool) ([]float64, []float64, error) {
	return nil, nil, nil
}

func (s *fakeStore) Violation(ctx context.Context, id int64) (*schema.Violation, error) {
	v, ok := s.violations[id]
	if !ok {
		return nil, apperrors.ErrViolationNotFound
	}
	return v, nil
}

func (s *fakeStore) AcknowledgeViolation(ctx context.Context, id int64, user, reason string, excludeSample bool) error {
	v, ok := s.violations[id]
	if !ok {
		return apperrors.ErrViolationNotFound
	}
	v.Acknowledged = true
	v.AckUser = &user
	return nil
}

func (s *fakeStore) LoadWindowSeed(ctx context.Context, charID int64, size int) (float64, float64, []rollingwindow.WindowSeedEntry, error) {
	return 0, 0, nil, nil
}

type fakeBus struct{}

func (fakeBus) Publish(schema.Event)             {}
func (fakeBus) PublishAndWait(schema.Event) []error { return nil }

func newTestRestApi(t *testing.T) (*RestApi, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	windows := rollingwindow.NewManager(store, 64, 25)
	eng := engine.New(store, windows, fakeBus{}, nil)
	am := alertmanager.New(store, store)
	return &RestApi{
		Engine:       eng,
		Lookup:       store,
		AlertManager: am,
		APIKey:       "secret",
	}, store
}

func doJSON(r *mux.Router, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)
	return rw
}

func TestDataEntrySubmitRequiresAPIKey(t *testing.T) {
	api, _ := newTestRestApi(t)
	r := mux.NewRouter()
	api.MountRoutes(r)

	rw := doJSON(r, http.MethodPost, "/api/v1/data-entry/submit", map[string]any{
		"characteristic_id": 1,
		"measurements":      []float64{1, 2, 3},
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestDataEntrySubmitSucceeds(t *testing.T) {
	api, store := newTestRestApi(t)
	r := mux.NewRouter()
	api.MountRoutes(r)

	rw := doJSON(r, http.MethodPost, "/api/v1/data-entry/submit", map[string]any{
		"characteristic_id": 1,
		"measurements":      []float64{1, 2, 3},
	}, map[string]string{"X-Api-Key": "secret"})

	require.Equal(t, http.StatusCreated, rw.Code)
	var resp dataEntryResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	assert.Equal(t, 2.0, resp.Mean)
	assert.Len(t, store.samples, 1)
}

func TestDataEntrySubmitRejectsWrongMeasurementCount(t *testing.T) {
	api, _ := newTestRestApi(t)
	r := mux.NewRouter()
	api.MountRoutes(r)

	rw := doJSON(r, http.MethodPost, "/api/v1/data-entry/submit", map[string]any{
		"characteristic_id": 1,
		"measurements":      []float64{1, 2},
	}, map[string]string{"X-Api-Key": "secret"})

	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestDataEntryBatchReportsPerItemErrors(t *testing.T) {
	api, _ := newTestRestApi(t)
	r := mux.NewRouter()
	api.MountRoutes(r)

	rw := doJSON(r, http.MethodPost, "/api/v1/data-entry/batch", []map[string]any{
		{"characteristic_id": 1, "measurements": []float64{1, 2, 3}},
		{"characteristic_id": 99, "measurements": []float64{1, 2, 3}},
	}, map[string]string{"X-Api-Key": "secret"})

	require.Equal(t, http.StatusMultiStatus, rw.Code)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Contains(t, out[0], "response")
	assert.Contains(t, out[1], "error")
}

func TestDataEntrySchemaNeedsNoAuth(t *testing.T) {
	api, _ := newTestRestApi(t)
	r := mux.NewRouter()
	api.MountRoutes(r)

	rw := doJSON(r, http.MethodGet, "/api/v1/data-entry/schema", nil, nil)
	assert.Equal(t, http.StatusOK, rw.Code)
}

func TestAcknowledgeViolation(t *testing.T) {
	api, store := newTestRestApi(t)
	store.violations[1] = &schema.Violation{ID: 1, RequiresAcknowledgement: true}
	r := mux.NewRouter()
	api.MountRoutes(r)

	rw := doJSON(r, http.MethodPost, "/api/v1/violations/1/ack", acknowledgeRequest{
		User: "alice", Reason: "known cause",
	}, map[string]string{"X-Api-Key": "secret"})

	assert.Equal(t, http.StatusNoContent, rw.Code)
	assert.True(t, store.violations[1].Acknowledged)
}

func TestAcknowledgeUnknownViolationReturnsNotFound(t *testing.T) {
	api, _ := newTestRestApi(t)
	r := mux.NewRouter()
	api.MountRoutes(r)

	rw := doJSON(r, http.MethodPost, "/api/v1/violations/42/ack", acknowledgeRequest{
		User: "alice", Reason: "x",
	}, map[string]string{"X-Api-Key": "secret"})

	assert.Equal(t, http.StatusNotFound, rw.Code)
}

func TestCheckAPIKeyConstantTime(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Api-Key", "secret")
	assert.True(t, checkAPIKey("secret", req))
	assert.False(t, checkAPIKey("secret", httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.True(t, checkAPIKey("", httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestKindStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, kindStatus(apperrors.KindOf(apperrors.ErrMeasurementCountMismatch)))
	assert.Equal(t, http.StatusNotFound, kindStatus(apperrors.KindOf(apperrors.ErrViolationNotFound)))
	assert.Equal(t, http.StatusConflict, kindStatus(apperrors.KindOf(apperrors.ErrAlreadyAcknowledged)))
}
