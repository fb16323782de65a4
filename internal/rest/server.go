// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package rest is the operator HTTP surface: task listings and instance repair operations.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zentask/internal/config"
	"github.com/pbinitiative/zentask/internal/log"
	"github.com/pbinitiative/zentask/internal/rest/middleware"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/processor"
	"github.com/pbinitiative/zentask/pkg/reconcile"
	"github.com/pbinitiative/zentask/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	processor *processor.Processor
	store     storage.Storage
	addr      string
	server    *http.Server
	started   time.Time
}

func NewServer(proc *processor.Processor, store storage.Storage, conf config.Config) *Server {
	r := chi.NewRouter()
	s := Server{
		processor: proc,
		store:     store,
		addr:      conf.Server.Addr,
		server: &http.Server{
			ReadHeaderTimeout: 3 * time.Second,
			Handler:           r,
			Addr:              conf.Server.Addr,
		},
		started: time.Now(),
	}
	r.Use(middleware.Cors(conf.Server.AllowedOrigins))
	r.Use(middleware.Opentelemetry(conf))
	r.Use(middleware.NormalizeQuery())
	r.Route("/v1/process-instances/{processInstanceId}", func(r chi.Router) {
		r.Get("/", s.getProcessInstance)
		r.Get("/tasks", s.getTasks)
		r.Get("/events", s.getEvents)
		r.Post("/tasks/{taskGuid}/complete", s.completeTask)
		r.Post("/run", s.runEngineSteps)
		r.Post("/reset", s.resetProcess)
		r.Post("/suspend", s.suspend)
		r.Post("/resume", s.resume)
		r.Post("/terminate", s.terminate)
	})
	r.Route("/system", func(r chi.Router) {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
		r.Get("/status", s.getStatus)
	})
	return &s
}

func (s *Server) Start() (net.Listener, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, err
	}
	log.Info("Zentask REST server listening on %s", listener.Addr())
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Error starting server: %s", err)
		}
	}()
	return listener, nil
}

func (s *Server) Stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		log.Error("Error stopping server: %s", err)
	}
}

type StatusResponse struct {
	Status   string  `json:"status"`
	Database string  `json:"database"`
	Uptime   float64 `json:"uptimeInSeconds"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Status: "ok", Database: "ok", Uptime: time.Since(s.started).Seconds()}
	status := http.StatusOK
	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, r, status, resp)
}

type ProcessInstanceResponse struct {
	Id                     int64     `json:"id"`
	ProcessModelIdentifier string    `json:"processModelIdentifier"`
	ProcessInitiatorId     int64     `json:"processInitiatorId"`
	Status                 string    `json:"status"`
	StartInSeconds         *float64  `json:"startInSeconds,omitempty"`
	EndInSeconds           *float64  `json:"endInSeconds,omitempty"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

func toInstanceResponse(instance runtime.ProcessInstance) ProcessInstanceResponse {
	return ProcessInstanceResponse{
		Id:                     instance.Id,
		ProcessModelIdentifier: instance.ProcessModelIdentifier,
		ProcessInitiatorId:     instance.ProcessInitiatorId,
		Status:                 string(instance.Status),
		StartInSeconds:         instance.StartInSeconds,
		EndInSeconds:           instance.EndInSeconds,
		UpdatedAt:              instance.UpdatedAt,
	}
}

type TaskResponse struct {
	Guid             string   `json:"guid"`
	TaskSpec         string   `json:"taskSpec"`
	State            string   `json:"state"`
	TaskDefinitionId int64    `json:"taskDefinitionId"`
	BpmnProcessId    int64    `json:"bpmnProcessId"`
	Parent           *string  `json:"parent,omitempty"`
	Children         []string `json:"children"`
	LastStateChange  float64  `json:"lastStateChange"`
	StartInSeconds   *float64 `json:"startInSeconds,omitempty"`
	EndInSeconds     *float64 `json:"endInSeconds,omitempty"`
}

type EventResponse struct {
	Id        int64    `json:"id"`
	EventType string   `json:"eventType"`
	TaskGuid  *string  `json:"taskGuid,omitempty"`
	UserId    *int64   `json:"userId,omitempty"`
	Timestamp float64  `json:"timestamp"`
	Errors    []string `json:"errors,omitempty"`
}

type ResetRequest struct {
	TaskGuid string `json:"taskGuid"`
}

type CompleteTaskRequest struct {
	UserId int64          `json:"userId"`
	Data   map[string]any `json:"data"`
}

type OperationResponse struct {
	Instance   ProcessInstanceResponse `json:"instance"`
	Upserted   int                     `json:"upserted"`
	Deleted    int                     `json:"deleted"`
	TaskErrors []string                `json:"taskErrors,omitempty"`
}

func toOperationResponse(res reconcile.Result) OperationResponse {
	resp := OperationResponse{
		Instance: toInstanceResponse(res.Instance),
		Upserted: len(res.Upserted),
		Deleted:  len(res.Deleted),
	}
	for _, err := range res.TaskErrors {
		resp.TaskErrors = append(resp.TaskErrors, err.Error())
	}
	return resp
}

func processInstanceId(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "processInstanceId"), 10, 64)
	if err != nil {
		writeBadRequest(w, r, "processInstanceId has to be an integer")
		return 0, false
	}
	return id, true
}

func (s *Server) getProcessInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := processInstanceId(w, r)
	if !ok {
		return
	}
	instance, err := s.store.FindProcessInstanceById(r.Context(), id)
	if err != nil {
		writeProcessorError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toInstanceResponse(instance))
}

// getTasks lists the stored tasks, predicted ones only with ?predicted=true. With
// ?mostRecent=true only the latest task of every step is returned.
func (s *Server) getTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := processInstanceId(w, r)
	if !ok {
		return
	}
	predicted, err := boolParam(r, "predicted")
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	mostRecent, err := boolParam(r, "mostRecent")
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if _, err := s.store.FindProcessInstanceById(r.Context(), id); err != nil {
		writeProcessorError(w, r, err)
		return
	}
	views, err := reconcile.ListTasks(r.Context(), s.store, id, predicted)
	if err != nil {
		writeProcessorError(w, r, err)
		return
	}
	if mostRecent {
		views = reconcile.MostRecentTaskPerStep(views)
	}
	resp := make([]TaskResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, TaskResponse{
			Guid:             v.Guid,
			TaskSpec:         v.Props.TaskSpec,
			State:            v.State.String(),
			TaskDefinitionId: v.TaskDefinitionId,
			BpmnProcessId:    v.BpmnProcessId,
			Parent:           v.Props.Parent,
			Children:         v.Props.Children,
			LastStateChange:  v.Props.LastStateChange,
			StartInSeconds:   v.StartInSeconds,
			EndInSeconds:     v.EndInSeconds,
		})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := processInstanceId(w, r)
	if !ok {
		return
	}
	evts, err := s.store.FindProcessInstanceEvents(r.Context(), id)
	if err != nil {
		writeProcessorError(w, r, err)
		return
	}
	resp := make([]EventResponse, 0, len(evts))
	for _, ev := range evts {
		er := EventResponse{
			Id:        ev.Id,
			EventType: string(ev.EventType),
			TaskGuid:  ev.TaskGuid,
			UserId:    ev.UserId,
			Timestamp: ev.Timestamp,
		}
		details, err := s.store.FindProcessInstanceErrorDetails(r.Context(), ev.Id)
		if err != nil {
			writeProcessorError(w, r, err)
			return
		}
		for _, d := range details {
			er.Errors = append(er.Errors, d.Message)
		}
		resp = append(resp, er)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	id, ok := processInstanceId(w, r)
	if !ok {
		return
	}
	var req CompleteTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	res, err := s.processor.CompleteManualTask(r.Context(), id, chi.URLParam(r, "taskGuid"), req.UserId, req.Data)
	s.writeOperation(w, r, res, err)
}

func (s *Server) runEngineSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := processInstanceId(w, r)
	if !ok {
		return
	}
	res, err := s.processor.RunEngineSteps(r.Context(), id)
	s.writeOperation(w, r, res, err)
}

func (s *Server) resetProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := processInstanceId(w, r)
	if !ok {
		return
	}
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	if req.TaskGuid == "" {
		writeBadRequest(w, r, "taskGuid is required")
		return
	}
	res, err := s.processor.ResetProcess(r.Context(), id, req.TaskGuid)
	s.writeOperation(w, r, res, err)
}

func (s *Server) suspend(w http.ResponseWriter, r *http.Request) {
	id, ok := processInstanceId(w, r)
	if !ok {
		return
	}
	instance, err := s.processor.Suspend(r.Context(), id)
	s.writeOperation(w, r, reconcile.Result{Instance: instance}, err)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	id, ok := processInstanceId(w, r)
	if !ok {
		return
	}
	res, err := s.processor.Resume(r.Context(), id)
	s.writeOperation(w, r, res, err)
}

func (s *Server) terminate(w http.ResponseWriter, r *http.Request) {
	id, ok := processInstanceId(w, r)
	if !ok {
		return
	}
	res, err := s.processor.Terminate(r.Context(), id)
	s.writeOperation(w, r, res, err)
}

// writeOperation writes the outcome of a processor operation. A failed engine step is still
// persisted, its error is reported with the instance state.
func (s *Server) writeOperation(w http.ResponseWriter, r *http.Request, res reconcile.Result, err error) {
	if err != nil {
		writeProcessorError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOperationResponse(res))
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New(name + " has to be a boolean")
	}
	return b, nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, resp any) {
	body, err := json.Marshal(resp)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ApiError{Type: "ERROR", Message: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
