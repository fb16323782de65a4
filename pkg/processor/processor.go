// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package processor drives process instances: it takes the instance lock, restores the engine
// from storage, advances or repairs it and hands the resulting task tree to the reconciler.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/internal/appcontext"
	"github.com/pbinitiative/zentask/internal/config"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/definition"
	"github.com/pbinitiative/zentask/pkg/events"
	"github.com/pbinitiative/zentask/pkg/humantask"
	"github.com/pbinitiative/zentask/pkg/jsondata"
	otelPkg "github.com/pbinitiative/zentask/pkg/otel"
	"github.com/pbinitiative/zentask/pkg/reconcile"
	"github.com/pbinitiative/zentask/pkg/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type Processor struct {
	store       storage.Storage
	engines     EngineFactory
	definitions *definition.Cache
	data        *jsondata.Store
	resolver    *humantask.Resolver
	recorder    *events.Recorder
	reconciler  *reconcile.Reconciler
	running     *runningInstances
	metrics     *otelPkg.ProcessorMetrics
	tracer      trace.Tracer
	cfg         config.Processor
	workerId    string
	logger      hclog.Logger
	now         func() time.Time
}

// New creates the processor and its reconciliation pipeline, metrics may be nil.
func New(
	store storage.Storage,
	engines EngineFactory,
	cfg config.Processor,
	cacheCfg config.Cache,
	metrics *otelPkg.ProcessorMetrics,
	logger hclog.Logger,
	exporters ...events.Exporter,
) *Processor {
	definitions := definition.NewCache(store, cacheCfg.DefinitionCacheSize, cacheCfg.DefinitionCacheTTL, logger.Named("definition"))
	data := jsondata.NewStore(store, cacheCfg.JsonDataCacheSize, cacheCfg.JsonDataCacheTTL)
	resolver := humantask.NewResolver(store, cfg.AutoCreateLaneGroups, logger.Named("humantask"))
	recorder := events.NewRecorder(store, exporters...)
	return &Processor{
		store:       store,
		engines:     engines,
		definitions: definitions,
		data:        data,
		resolver:    resolver,
		recorder:    recorder,
		reconciler:  reconcile.NewReconciler(store, definitions, data, resolver, recorder, metrics, cfg, logger.Named("reconcile")),
		running:     newRunningInstances(),
		metrics:     metrics,
		tracer:      otel.GetTracerProvider().Tracer("zentask-processor"),
		cfg:         cfg,
		workerId:    fmt.Sprintf("node-%d-%s", cfg.NodeId, uuid.NewString()),
		logger:      logger,
		now:         time.Now,
	}
}

func (p *Processor) Resolver() *humantask.Resolver {
	return p.resolver
}

// WithDequeued runs fn while holding the lock of the instance. The lock is released on every
// exit path of fn.
func (p *Processor) WithDequeued(ctx context.Context, processInstanceId int64, fn func(ctx context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, p.cfg.LockTimeout)
	defer cancel()

	if err := p.running.lock(lockCtx, processInstanceId); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.contention(ctx, processInstanceId)
	}
	defer p.running.unlock(processInstanceId)

	if err := p.dequeue(ctx, lockCtx, processInstanceId); err != nil {
		return err
	}
	defer func() {
		if err := p.store.UnlockProcessInstance(context.WithoutCancel(ctx), processInstanceId, p.workerId); err != nil {
			p.logger.Error("Failed to release process instance lock", "instance", processInstanceId, "err", err)
		}
	}()

	ctx = appcontext.WithProcessInstanceId(ctx, processInstanceId)
	ctx = appcontext.WithWorkerId(ctx, p.workerId)
	return fn(ctx)
}

func (p *Processor) dequeue(ctx context.Context, lockCtx context.Context, processInstanceId int64) error {
	ticker := time.NewTicker(p.cfg.LockRetryInterval)
	defer ticker.Stop()
	for {
		now := p.now()
		locked, err := p.store.TryLockProcessInstance(ctx, processInstanceId, p.workerId, now, now.Add(-p.cfg.LockStaleAfter))
		if err != nil {
			return err
		}
		if locked {
			return nil
		}
		select {
		case <-ticker.C:
		case <-lockCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return p.contention(ctx, processInstanceId)
		}
	}
}

func (p *Processor) contention(ctx context.Context, processInstanceId int64) error {
	p.logger.Warn("Process instance lock not acquired", "instance", processInstanceId, "timeout", p.cfg.LockTimeout)
	if p.metrics != nil {
		p.metrics.LockContentions.Add(ctx, 1, metric.WithAttributes(attribute.Int64(otelPkg.AttributeProcessInstanceId, processInstanceId)))
	}
	return &LockContentionError{ProcessInstanceId: processInstanceId}
}

func (p *Processor) findInstance(ctx context.Context, processInstanceId int64) (runtime.ProcessInstance, error) {
	instance, err := p.store.FindProcessInstanceById(ctx, processInstanceId)
	if errors.Is(err, storage.ErrNotFound) {
		return instance, &NotFoundError{Entity: "process instance", Id: strconv.FormatInt(processInstanceId, 10)}
	}
	if err != nil {
		return instance, fmt.Errorf("failed to find process instance %d: %w", processInstanceId, err)
	}
	return instance, nil
}

func (p *Processor) startSpan(ctx context.Context, op string, processInstanceId int64) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String(otelPkg.AttributeProcessInstanceOp, op),
		attribute.Int64(otelPkg.AttributeProcessInstanceId, processInstanceId),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// commit reconciles the engine tree and stages evs into the same batch.
func (p *Processor) commit(ctx context.Context, instance runtime.ProcessInstance, engine Engine, opts reconcile.Options, evs ...events.Event) (reconcile.Result, error) {
	batch := opts.Batch
	if batch == nil {
		batch = p.store.NewBatch()
		opts.Batch = batch
	}
	for _, e := range evs {
		if _, err := p.recorder.Record(ctx, batch, instance.Id, e); err != nil {
			return reconcile.Result{}, err
		}
	}
	res, err := p.reconciler.Reconcile(ctx, instance, engine.Snapshot(runtime.TaskStateAnyMask), opts)
	if err != nil {
		return reconcile.Result{}, err
	}
	ended := res.Instance.Status == runtime.ProcessInstanceStatusComplete || res.Instance.Status == runtime.ProcessInstanceStatusTerminated
	if res.Instance.Status == runtime.ProcessInstanceStatusComplete && instance.Status != runtime.ProcessInstanceStatusComplete {
		if _, err := p.recorder.Record(ctx, batch, instance.Id, events.Event{Type: runtime.EventTypeProcessInstanceCompleted}); err != nil {
			return reconcile.Result{}, err
		}
	}
	if ended && instance.Status != res.Instance.Status && p.metrics != nil {
		metricsCtx := context.WithoutCancel(ctx)
		model := instance.ProcessModelIdentifier
		batch.AddPostFlushAction(ctx, func() {
			p.metrics.ProcessesEnded.Add(metricsCtx, 1, metric.WithAttributes(attribute.String(otelPkg.AttributeProcessModel, model)))
		})
	}
	if err := batch.Flush(ctx); err != nil {
		return reconcile.Result{}, fmt.Errorf("failed to commit process instance %d: %w", instance.Id, err)
	}
	for _, taskErr := range res.TaskErrors {
		p.logger.Warn("Task of process instance needs attention", "instance", instance.Id, "err", taskErr)
	}
	return res, nil
}

// stepEvents appends the error event of a failed engine step.
func stepEvents(stepErr error, evs ...events.Event) []events.Event {
	if stepErr == nil {
		return evs
	}
	return append(evs, events.Event{Type: runtime.EventTypeProcessInstanceError, TaskGuid: failedTaskGuid(stepErr), Err: stepErr})
}

func failedTaskGuid(err error) string {
	var ft failedTask
	if errors.As(err, &ft) {
		return ft.FailedTaskId().String()
	}
	return ""
}

func hasTask(snapshot runtime.WorkflowSnapshot, id uuid.UUID) bool {
	for _, t := range snapshot.Tasks {
		if t.Id == id {
			return true
		}
	}
	return false
}

func guids(ids []uuid.UUID) []string {
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		res = append(res, id.String())
	}
	return res
}

// StartProcess creates an instance of spec, runs the engine until it waits and persists the
// result. A failing engine step is persisted as well and returned as ProcessInstanceError.
func (p *Processor) StartProcess(ctx context.Context, spec *runtime.WorkflowSpec, modelIdentifier string, initiatorId int64, data map[string]any) (reconcile.Result, error) {
	if err := spec.Validate(); err != nil {
		return reconcile.Result{}, fmt.Errorf("invalid workflow spec of %s: %w", modelIdentifier, err)
	}
	now := p.now()
	instance := runtime.ProcessInstance{
		Id:                     p.store.GenerateId(),
		ProcessModelIdentifier: modelIdentifier,
		ProcessInitiatorId:     initiatorId,
		Status:                 runtime.ProcessInstanceStatusNotStarted,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	ctx, span := p.startSpan(ctx, "start-process", instance.Id)
	span.SetAttributes(attribute.String(otelPkg.AttributeProcessModel, modelIdentifier))

	if err := p.store.SaveProcessInstance(ctx, instance); err != nil {
		err = fmt.Errorf("failed to save process instance of %s: %w", modelIdentifier, err)
		endSpan(span, err)
		return reconcile.Result{}, err
	}

	var res reconcile.Result
	err := p.WithDequeued(ctx, instance.Id, func(ctx context.Context) error {
		engine, err := p.engines.NewEngine(spec, data)
		if err != nil {
			return fmt.Errorf("failed to create engine: %w", err)
		}
		stepErr := engine.DoEngineSteps(ctx)
		created := events.Event{Type: runtime.EventTypeProcessInstanceCreated, UserId: &initiatorId}
		res, err = p.commit(ctx, instance, engine, reconcile.Options{BatchStart: now}, stepEvents(stepErr, created)...)
		if err != nil {
			return err
		}
		if p.metrics != nil {
			p.metrics.ProcessesStarted.Add(ctx, 1, metric.WithAttributes(attribute.String(otelPkg.AttributeProcessModel, modelIdentifier)))
		}
		return stepErr
	})
	err = wrapError(instance.Id, failedTaskGuid(err), err)
	endSpan(span, err)
	if res.Instance.Id == 0 {
		res.Instance = instance
	}
	return res, err
}

// CompleteManualTask completes a READY manual task on behalf of userId and advances the engine.
// Only users assigned to the open human task of the task may complete it.
func (p *Processor) CompleteManualTask(ctx context.Context, processInstanceId int64, taskGuid string, userId int64, data map[string]any) (reconcile.Result, error) {
	ctx, span := p.startSpan(ctx, "complete-manual-task", processInstanceId)
	span.SetAttributes(attribute.String(otelPkg.AttributeTaskGuid, taskGuid))

	var res reconcile.Result
	err := p.completeManualTask(ctx, processInstanceId, taskGuid, userId, data, &res)
	guid := failedTaskGuid(err)
	if guid == "" {
		guid = taskGuid
	}
	err = wrapError(processInstanceId, guid, err)
	endSpan(span, err)
	return res, err
}

func (p *Processor) completeManualTask(ctx context.Context, processInstanceId int64, taskGuid string, userId int64, data map[string]any, res *reconcile.Result) error {
	id, err := uuid.Parse(taskGuid)
	if err != nil {
		return &NotFoundError{Entity: "task", Id: taskGuid}
	}
	return p.WithDequeued(ctx, processInstanceId, func(ctx context.Context) error {
		// checked under the lock, a pass holding it may close or reassign the human task
		allowed, err := p.resolver.CanUserCompleteTask(ctx, taskGuid, userId)
		if err != nil {
			return err
		}
		if !allowed {
			return &ProcessInstanceError{ProcessInstanceId: processInstanceId, TaskGuid: taskGuid, Err: ErrNotAuthorized}
		}
		instance, err := p.findInstance(ctx, processInstanceId)
		if err != nil {
			return err
		}
		if !instance.Status.IsActive() {
			return &ProcessInstanceError{ProcessInstanceId: processInstanceId, TaskGuid: taskGuid, Err: ErrInstanceNotActive}
		}
		engine, err := p.restore(ctx, instance)
		if err != nil {
			return err
		}
		if !hasTask(engine.Snapshot(runtime.TaskStateDefiniteMask), id) {
			return &NotFoundError{Entity: "task", Id: taskGuid}
		}
		batchStart := p.now()
		if err := engine.CompleteTask(id, data); err != nil {
			return err
		}
		stepErr := engine.DoEngineSteps(ctx)
		*res, err = p.commit(ctx, instance, engine, reconcile.Options{BatchStart: batchStart, CompletedBy: &userId}, stepEvents(stepErr)...)
		if err != nil {
			return err
		}
		return stepErr
	})
}

// RunEngineSteps advances an active instance as far as the engine can go without input.
// Instances that are not active are returned unchanged.
func (p *Processor) RunEngineSteps(ctx context.Context, processInstanceId int64) (reconcile.Result, error) {
	ctx, span := p.startSpan(ctx, "run-engine-steps", processInstanceId)
	var res reconcile.Result
	err := p.WithDequeued(ctx, processInstanceId, func(ctx context.Context) error {
		instance, err := p.findInstance(ctx, processInstanceId)
		if err != nil {
			return err
		}
		if !instance.Status.IsActive() {
			p.logger.Debug("Skipping inactive process instance", "instance", processInstanceId, "status", instance.Status)
			res.Instance = instance
			return nil
		}
		engine, err := p.restore(ctx, instance)
		if err != nil {
			return err
		}
		batchStart := p.now()
		stepErr := engine.DoEngineSteps(ctx)
		res, err = p.commit(ctx, instance, engine, reconcile.Options{BatchStart: batchStart}, stepEvents(stepErr)...)
		if err != nil {
			return err
		}
		return stepErr
	})
	err = wrapError(processInstanceId, failedTaskGuid(err), err)
	endSpan(span, err)
	return res, err
}

// ResetProcess rewinds the instance to the task identified by taskGuid and suspends it. Nothing
// is persisted when the task is not part of the instance.
func (p *Processor) ResetProcess(ctx context.Context, processInstanceId int64, taskGuid string) (reconcile.Result, error) {
	ctx, span := p.startSpan(ctx, "reset-process", processInstanceId)
	span.SetAttributes(attribute.String(otelPkg.AttributeTaskGuid, taskGuid))

	var res reconcile.Result
	err := p.WithDequeued(ctx, processInstanceId, func(ctx context.Context) error {
		instance, err := p.findInstance(ctx, processInstanceId)
		if err != nil {
			return err
		}
		if instance.Status == runtime.ProcessInstanceStatusTerminated {
			return &ProcessInstanceError{ProcessInstanceId: processInstanceId, TaskGuid: taskGuid, Err: ErrInstanceNotActive}
		}
		engine, err := p.restore(ctx, instance)
		if err != nil {
			return err
		}
		id, err := uuid.Parse(taskGuid)
		if err != nil || !hasTask(engine.Snapshot(runtime.TaskStateDefiniteMask), id) {
			return &NotFoundError{Entity: "task", Id: taskGuid}
		}

		batch := p.store.NewBatch()
		if _, err := p.recorder.Record(ctx, batch, instance.Id, events.Event{Type: runtime.EventTypeProcessInstanceRewound, TaskGuid: taskGuid}); err != nil {
			return err
		}
		discarded, err := engine.ResetToTask(id)
		if err != nil {
			return err
		}
		res, err = p.commit(ctx, instance, engine, reconcile.Options{
			Removed:     guids(discarded),
			SweepAbsent: true,
			Batch:       batch,
			Status:      runtime.ProcessInstanceStatusSuspended,
		})
		if err != nil {
			return err
		}
		p.logger.Info("Process instance rewound", "instance", processInstanceId, "task", taskGuid, "discarded", len(discarded), "deleted", len(res.Deleted))
		if p.metrics != nil {
			p.metrics.ProcessResets.Add(ctx, 1, metric.WithAttributes(attribute.String(otelPkg.AttributeProcessModel, instance.ProcessModelIdentifier)))
		}
		return nil
	})
	err = wrapError(processInstanceId, taskGuid, err)
	endSpan(span, err)
	return res, err
}

// Terminate cancels every unfinished task of the instance and marks it terminated.
func (p *Processor) Terminate(ctx context.Context, processInstanceId int64) (reconcile.Result, error) {
	ctx, span := p.startSpan(ctx, "terminate", processInstanceId)
	var res reconcile.Result
	err := p.WithDequeued(ctx, processInstanceId, func(ctx context.Context) error {
		instance, err := p.findInstance(ctx, processInstanceId)
		if err != nil {
			return err
		}
		if instance.Status == runtime.ProcessInstanceStatusComplete || instance.Status == runtime.ProcessInstanceStatusTerminated {
			return &ProcessInstanceError{ProcessInstanceId: processInstanceId, Err: ErrInstanceNotActive}
		}
		engine, err := p.restore(ctx, instance)
		if err != nil {
			return err
		}
		discarded := engine.Cancel()
		res, err = p.commit(ctx, instance, engine, reconcile.Options{
			Removed: guids(discarded),
			Status:  runtime.ProcessInstanceStatusTerminated,
		}, events.Event{Type: runtime.EventTypeProcessInstanceTerminated})
		return err
	})
	err = wrapError(processInstanceId, "", err)
	endSpan(span, err)
	return res, err
}

// Suspend stops background runners from advancing the instance.
func (p *Processor) Suspend(ctx context.Context, processInstanceId int64) (runtime.ProcessInstance, error) {
	ctx, span := p.startSpan(ctx, "suspend", processInstanceId)
	var instance runtime.ProcessInstance
	err := p.WithDequeued(ctx, processInstanceId, func(ctx context.Context) error {
		var err error
		instance, err = p.findInstance(ctx, processInstanceId)
		if err != nil {
			return err
		}
		if !instance.Status.IsActive() && instance.Status != runtime.ProcessInstanceStatusError {
			return &ProcessInstanceError{ProcessInstanceId: processInstanceId, Err: ErrInstanceNotActive}
		}
		batch := p.store.NewBatch()
		if _, err := p.recorder.Record(ctx, batch, instance.Id, events.Event{Type: runtime.EventTypeProcessInstanceSuspended}); err != nil {
			return err
		}
		instance.Status = runtime.ProcessInstanceStatusSuspended
		instance.UpdatedAt = p.now()
		if err := batch.SaveProcessInstance(ctx, instance); err != nil {
			return err
		}
		return batch.Flush(ctx)
	})
	err = wrapError(processInstanceId, "", err)
	endSpan(span, err)
	return instance, err
}

// Resume reactivates a suspended instance and advances it.
func (p *Processor) Resume(ctx context.Context, processInstanceId int64) (reconcile.Result, error) {
	ctx, span := p.startSpan(ctx, "resume", processInstanceId)
	var res reconcile.Result
	err := p.WithDequeued(ctx, processInstanceId, func(ctx context.Context) error {
		instance, err := p.findInstance(ctx, processInstanceId)
		if err != nil {
			return err
		}
		if instance.Status != runtime.ProcessInstanceStatusSuspended {
			return &ProcessInstanceError{ProcessInstanceId: processInstanceId, Err: ErrInstanceNotActive}
		}
		engine, err := p.restore(ctx, instance)
		if err != nil {
			return err
		}
		// status is recomputed from the tree once it is no longer suspended
		instance.Status = runtime.ProcessInstanceStatusRunning
		batchStart := p.now()
		stepErr := engine.DoEngineSteps(ctx)
		res, err = p.commit(ctx, instance, engine, reconcile.Options{BatchStart: batchStart},
			stepEvents(stepErr, events.Event{Type: runtime.EventTypeProcessInstanceResumed})...)
		if err != nil {
			return err
		}
		return stepErr
	})
	err = wrapError(processInstanceId, failedTaskGuid(err), err)
	endSpan(span, err)
	return res, err
}
