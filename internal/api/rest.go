// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/openspc/openspc/internal/alertmanager"
	"github.com/openspc/openspc/internal/engine"
	"github.com/openspc/openspc/internal/live"
	"github.com/openspc/openspc/internal/providers/manual"
	"github.com/openspc/openspc/internal/repository"
	"github.com/openspc/openspc/pkg/apperrors"
	"github.com/openspc/openspc/pkg/log"
	"github.com/openspc/openspc/pkg/schema"
)

// @title                      OpenSPC REST API
// @version                    1.0.0
// @description                API for subgroup ingestion, live-chart subscription and violation management.

// @tag.name Data Entry API

// @license.name               MIT License
// @license.url                https://opensource.org/licenses/MIT

// @host                       localhost:8080
// @basePath                   /api/v1

// @securityDefinitions.apikey ApiKeyAuth
// @in                         header
// @name                       X-Api-Key

// RestApi wires every HTTP-facing dependency behind the /api/v1 router.
type RestApi struct {
	Engine       *engine.Engine
	Lookup       manual.Lookup
	AlertManager *alertmanager.Manager
	Broadcaster  *live.Broadcaster
	APIKey       string

	logger *log.ComponentLogger
}

// New builds a RestApi. logger defaults to the "API" component.
func New(eng *engine.Engine, lookup manual.Lookup, am *alertmanager.Manager, broadcaster *live.Broadcaster, apiKey string) *RestApi {
	return &RestApi{
		Engine:       eng,
		Lookup:       lookup,
		AlertManager: am,
		Broadcaster:  broadcaster,
		APIKey:       apiKey,
		logger:       log.Component("API"),
	}
}

// MountRoutes registers every /api/v1 route on r.
func (api *RestApi) MountRoutes(r *mux.Router) {
	r = r.PathPrefix("/api/v1").Subrouter()
	r.StrictSlash(true)

	r.HandleFunc("/data-entry/schema", api.dataEntrySchema).Methods(http.MethodGet)
	r.HandleFunc("/data-entry/submit", api.requireAPIKey(api.dataEntrySubmit)).Methods(http.MethodPost)
	r.HandleFunc("/data-entry/batch", api.requireAPIKey(api.dataEntryBatch)).Methods(http.MethodPost)

	r.HandleFunc("/violations/{id}/ack", api.requireAPIKey(api.acknowledgeViolation)).Methods(http.MethodPost)
	r.HandleFunc("/violations/stats", api.requireAPIKey(api.violationStats)).Methods(http.MethodGet)

	r.HandleFunc("/live", api.serveLive).Methods(http.MethodGet)
}

// ErrorResponse is the body returned on any non-2xx response.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// kindStatus maps an apperrors.Kind to the HTTP status internal/api
// surfaces it as, per SPEC_FULL.md §7.
func kindStatus(k apperrors.Kind) int {
	switch k {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindState:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func handleError(err error, statusCode int, rw http.ResponseWriter) {
	log.Warnf("API error: %s", err.Error())
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(ErrorResponse{
		Status: http.StatusText(statusCode),
		Error:  err.Error(),
	})
}

// handleAppError maps err through apperrors.KindOf, defaulting
// unregistered errors to a 500.
func handleAppError(err error, rw http.ResponseWriter) {
	handleError(err, kindStatus(apperrors.KindOf(err)), rw)
}

func decode(r io.Reader, val any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(val)
}

// dataEntryRequest is one submit/batch element.
type dataEntryRequest struct {
	CharacteristicID int64          `json:"characteristic_id"`
	Measurements     []float64      `json:"measurements"`
	BatchNumber      *string        `json:"batch_number,omitempty"`
	OperatorID       *string        `json:"operator_id,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func (req dataEntryRequest) sampleContext() schema.SampleContext {
	return schema.SampleContext{
		BatchNumber: req.BatchNumber,
		OperatorID:  req.OperatorID,
		Source:      schema.SampleSourceREST,
		Metadata:    req.Metadata,
	}
}

// violationSummary is the trimmed violation shape returned inline with
// a processed sample.
type violationSummary struct {
	RuleID   int             `json:"rule_id"`
	RuleName string          `json:"rule_name"`
	Severity schema.Severity `json:"severity"`
}

// dataEntryResponse is the 201 body for both submit and one batch
// element.
type dataEntryResponse struct {
	SampleID   int64              `json:"sample_id"`
	Timestamp  time.Time          `json:"timestamp"`
	Mean       float64            `json:"mean"`
	RangeValue *float64           `json:"range_value,omitempty"`
	Zone       *schema.Zone       `json:"zone,omitempty"`
	InControl  bool               `json:"in_control"`
	Violations []violationSummary `json:"violations"`
}

func toResponse(sampleTimestamp time.Time, r *schema.SampleResult) dataEntryResponse {
	out := dataEntryResponse{
		SampleID:   r.SampleID,
		Timestamp:  sampleTimestamp,
		Mean:       r.Mean,
		RangeValue: r.RangeValue,
		Zone:       r.Zone,
		InControl:  r.InControl,
		Violations: make([]violationSummary, 0, len(r.Violations)),
	}
	for _, v := range r.Violations {
		out.Violations = append(out.Violations, violationSummary{RuleID: v.RuleID, RuleName: v.RuleName, Severity: v.Severity})
	}
	return out
}

// dataEntrySchema godoc
// @summary     Data-entry request/response schema
// @description Returns the JSON Schema documents for POST /data-entry/submit and /batch. No auth required.
// @produce     json
// @success     200 {object} map[string]any
// @router      /data-entry/schema [get]
func (api *RestApi) dataEntrySchema(rw http.ResponseWriter, r *http.Request) {
	submitSchema, err := schema.RawSchema(schema.DataEntrySubmit)
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}
	batchSchema, err := schema.RawSchema(schema.DataEntryBatch)
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]json.RawMessage{
		"submit": json.RawMessage(submitSchema),
		"batch":  json.RawMessage(batchSchema),
	})
}

// dataEntrySubmit godoc
// @summary     Submit one subgroup
// @tags        Data Entry API
// @accept      json
// @produce     json
// @param       body body     dataEntryRequest true "subgroup"
// @success     201  {object} dataEntryResponse
// @failure     400  {object} ErrorResponse
// @failure     401  {object} ErrorResponse
// @failure     500  {object} ErrorResponse
// @security    ApiKeyAuth
// @router      /data-entry/submit [post]
func (api *RestApi) dataEntrySubmit(rw http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return
	}
	if err := schema.Validate(schema.DataEntrySubmit, raw); err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return
	}

	var req dataEntryRequest
	if err := decode(bytes.NewReader(raw), &req); err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return
	}

	result, err := api.runThroughManual(r, req)
	if err != nil {
		handleAppError(err, rw)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusCreated)
	json.NewEncoder(rw).Encode(toResponse(time.Now(), result))
}

// dataEntryBatch godoc
// @summary     Submit a batch of subgroups, independent per-item success/failure
// @tags        Data Entry API
// @accept      json
// @produce     json
// @param       body body     []dataEntryRequest true "subgroups"
// @success     207  {object} []map[string]any
// @failure     400  {object} ErrorResponse
// @failure     401  {object} ErrorResponse
// @security    ApiKeyAuth
// @router      /data-entry/batch [post]
func (api *RestApi) dataEntryBatch(rw http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return
	}
	if err := schema.Validate(schema.DataEntryBatch, raw); err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return
	}

	var reqs []dataEntryRequest
	if err := decode(bytes.NewReader(raw), &reqs); err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return
	}

	out := make([]map[string]any, len(reqs))
	for i, req := range reqs {
		result, err := api.runThroughManual(r, req)
		if err != nil {
			out[i] = map[string]any{"error": err.Error()}
			continue
		}
		out[i] = map[string]any{"response": toResponse(time.Now(), result)}
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusMultiStatus)
	json.NewEncoder(rw).Encode(out)
}

// runThroughManual builds a fresh manual.Provider for this request (the
// type is stateless beyond its lookup+sink fields) so the ProcessSample
// result can be captured synchronously through a request-scoped closure
// without risking data races between concurrent requests sharing one
// provider instance.
func (api *RestApi) runThroughManual(r *http.Request, req dataEntryRequest) (*schema.SampleResult, error) {
	var result *schema.SampleResult
	var procErr error

	provider := manual.New(api.Lookup, func(ev schema.SampleEvent) {
		result, procErr = api.Engine.ProcessSample(r.Context(), ev.CharacteristicID, ev.Measurements, ev.Context)
	})

	if err := provider.Submit(r.Context(), req.CharacteristicID, req.Measurements, req.sampleContext()); err != nil {
		return nil, err
	}
	if procErr != nil {
		return nil, procErr
	}
	return result, nil
}

// acknowledgeRequest is the POST /violations/{id}/ack body.
type acknowledgeRequest struct {
	User          string `json:"user"`
	Reason        string `json:"reason"`
	ExcludeSample bool   `json:"exclude_sample"`
}

// acknowledgeViolation godoc
// @summary     Acknowledge a fired violation
// @tags        Violations API
// @accept      json
// @produce     json
// @param       id   path     int                true "Violation ID"
// @param       body body     acknowledgeRequest true "acknowledgement"
// @success     204
// @failure     400 {object} ErrorResponse
// @failure     404 {object} ErrorResponse
// @failure     409 {object} ErrorResponse
// @security    ApiKeyAuth
// @router      /violations/{id}/ack [post]
func (api *RestApi) acknowledgeViolation(rw http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return
	}

	var req acknowledgeRequest
	if err := decode(r.Body, &req); err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return
	}

	if err := api.AlertManager.Acknowledge(r.Context(), id, req.User, req.Reason, req.ExcludeSample); err != nil {
		handleAppError(err, rw)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// violationStats godoc
// @summary     Violation counts broken down by rule, severity and characteristic
// @tags        Violations API
// @produce     json
// @param       characteristic_id query int false "Filter by characteristic"
// @success     200 {object} repository.ViolationStatsResult
// @security    ApiKeyAuth
// @router      /violations/stats [get]
func (api *RestApi) violationStats(rw http.ResponseWriter, r *http.Request) {
	var filter repository.ViolationStatsFilter
	if raw := r.URL.Query().Get("characteristic_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			handleError(err, http.StatusBadRequest, rw)
			return
		}
		filter.CharacteristicID = &id
	}

	result, err := api.AlertManager.Stats(r.Context(), filter)
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(result)
}

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveLive upgrades to the live-subscriber WebSocket channel. An
// unauthenticated connect is upgraded then immediately closed with code
// 4001, per SPEC_FULL.md §6.
func (api *RestApi) serveLive(rw http.ResponseWriter, r *http.Request) {
	if !checkAPIKey(api.APIKey, r) {
		conn, err := liveUpgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := websocket.FormatCloseMessage(4001, "unauthenticated")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return
	}
	api.Broadcaster.ServeHTTP(rw, r)
}
