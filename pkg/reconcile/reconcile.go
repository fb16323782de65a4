// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package reconcile keeps the stored task model of a process instance in line with the task
// tree of the engine.
//
// One pass takes a snapshot of every engine task, stages definitions, data blobs, bpmn process
// records, task records and human tasks into one batch and commits it atomically.
package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/internal/config"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/definition"
	"github.com/pbinitiative/zentask/pkg/events"
	"github.com/pbinitiative/zentask/pkg/humantask"
	"github.com/pbinitiative/zentask/pkg/jsondata"
	otelPkg "github.com/pbinitiative/zentask/pkg/otel"
	"github.com/pbinitiative/zentask/pkg/ptr"
	"github.com/pbinitiative/zentask/pkg/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type Reconciler struct {
	store       storage.Storage
	definitions *definition.Cache
	data        *jsondata.Store
	resolver    *humantask.Resolver
	recorder    *events.Recorder
	metrics     *otelPkg.ProcessorMetrics
	tracer      trace.Tracer
	cfg         config.Processor
	logger      hclog.Logger
}

// NewReconciler creates the reconciler, metrics may be nil.
func NewReconciler(
	store storage.Storage,
	definitions *definition.Cache,
	data *jsondata.Store,
	resolver *humantask.Resolver,
	recorder *events.Recorder,
	metrics *otelPkg.ProcessorMetrics,
	cfg config.Processor,
	logger hclog.Logger,
) *Reconciler {
	return &Reconciler{
		store:       store,
		definitions: definitions,
		data:        data,
		resolver:    resolver,
		recorder:    recorder,
		metrics:     metrics,
		tracer:      otel.GetTracerProvider().Tracer("zentask-reconcile"),
		cfg:         cfg,
		logger:      logger,
	}
}

type Options struct {
	// Removed lists task guids the engine discarded in this step.
	Removed []string
	// BatchStart is when the engine step started, tasks finishing within the step start no later than this.
	BatchStart time.Time
	// CompletedBy is recorded on human tasks closed by the pass.
	CompletedBy *int64
	// SweepAbsent deletes every stored task and sub-process missing from the snapshot, not only unfinished ones.
	SweepAbsent bool
	// Batch, when set, receives the writes and is left for the caller to flush.
	Batch storage.Batch
	// Status overrides the status computed from the snapshot.
	Status runtime.ProcessInstanceStatus
}

type Result struct {
	Instance          runtime.ProcessInstance
	Upserted          []string
	Deleted           []string
	Skipped           []string
	HumanTasksCreated int
	// TaskErrors holds errors isolated to a single task, the rest of the pass was committed.
	TaskErrors []error
}

type pass struct {
	r        *Reconciler
	ctx      context.Context
	batch    storage.Batch
	instance runtime.ProcessInstance
	snapshot runtime.WorkflowSnapshot
	opts     Options
	lookup   *definition.Lookup
	now      time.Time

	existingTasks     map[string]runtime.Task
	existingProcesses map[string]runtime.BpmnProcess
	openHumanTasks    map[string]runtime.HumanTask
	snapshotTasks     map[string]runtime.TaskSnapshot
	taskHashes        map[string]string
	processHashes     map[uuid.UUID]string
	blobs             map[string][]byte
	processes         map[uuid.UUID]runtime.BpmnProcess
	processSpecNames  map[uuid.UUID]string

	result Result
}

// Reconcile synchronizes the stored task model of instance with snapshot.
func (r *Reconciler) Reconcile(ctx context.Context, instance runtime.ProcessInstance, snapshot runtime.WorkflowSnapshot, opts Options) (Result, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "reconcile", trace.WithAttributes(
		attribute.Int64(otelPkg.AttributeProcessInstanceId, instance.Id),
		attribute.Int(otelPkg.AttributeTaskCount, len(snapshot.Tasks)),
	))
	defer span.End()

	batch := opts.Batch
	ownBatch := batch == nil
	if ownBatch {
		batch = r.store.NewBatch()
	}
	p := &pass{
		r:        r,
		ctx:      ctx,
		batch:    batch,
		instance: instance,
		snapshot: snapshot,
		opts:     opts,
		lookup:   definition.NewLookup(),
		now:      start,
	}
	if p.opts.BatchStart.IsZero() {
		p.opts.BatchStart = start
	}
	if err := p.run(); err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	if ownBatch {
		if err := batch.Flush(ctx); err != nil {
			span.RecordError(err)
			return Result{}, fmt.Errorf("failed to commit reconciliation of process instance %d: %w", instance.Id, err)
		}
	}
	r.logger.Debug("Reconciled process instance", "instance", instance.Id, "upserted", len(p.result.Upserted), "deleted", len(p.result.Deleted), "skipped", len(p.result.Skipped))
	return p.result, nil
}

func (p *pass) run() error {
	if err := p.serializeData(); err != nil {
		return err
	}
	if err := p.load(); err != nil {
		return err
	}
	if err := p.storeDefinitions(); err != nil {
		return err
	}
	if err := p.r.data.StoreIfAbsent(p.ctx, p.batch, p.blobs); err != nil {
		return err
	}
	if err := p.storeProcesses(); err != nil {
		return err
	}
	if err := p.storeTasks(); err != nil {
		return err
	}
	if err := p.deleteTasks(); err != nil {
		return err
	}
	if err := p.syncHumanTasks(); err != nil {
		return err
	}
	if err := p.storeInstance(); err != nil {
		return err
	}
	p.recordMetrics()
	return nil
}

func (p *pass) persisted(t runtime.TaskSnapshot) bool {
	return p.r.cfg.PersistPredictedTasks || !t.State.IsPredicted()
}

// serializeData computes the hashes of all task and process data and checks the size ceiling.
func (p *pass) serializeData() error {
	p.taskHashes = make(map[string]string, len(p.snapshot.Tasks))
	p.processHashes = make(map[uuid.UUID]string, len(p.snapshot.Processes))
	p.blobs = make(map[string][]byte)
	for _, ps := range p.snapshot.Processes {
		hash, data, err := jsondata.Serialize(ps.Data)
		if err != nil {
			return fmt.Errorf("process %s: %w", ps.Id, err)
		}
		p.processHashes[ps.Id] = hash
		p.blobs[hash] = data
	}
	size := 0
	for _, t := range p.snapshot.Tasks {
		if !p.persisted(t) {
			continue
		}
		hash, data, err := jsondata.Serialize(t.Data)
		if err != nil {
			return fmt.Errorf("task %s: %w", t.Id, err)
		}
		p.taskHashes[t.Id.String()] = hash
		p.blobs[hash] = data
		size += len(data)
	}
	if p.r.cfg.MaxTaskDataSize > 0 && size > p.r.cfg.MaxTaskDataSize {
		return &DataSizeLimitExceededError{Size: size, Limit: p.r.cfg.MaxTaskDataSize}
	}
	return nil
}

func (p *pass) load() error {
	tasks, err := p.r.store.FindTasksByProcessInstanceId(p.ctx, p.instance.Id, runtime.TaskStateAnyMask)
	if err != nil {
		return err
	}
	p.existingTasks = make(map[string]runtime.Task, len(tasks))
	for _, t := range tasks {
		p.existingTasks[t.Guid] = t
	}

	processes, err := p.r.store.FindBpmnProcessesByProcessInstanceId(p.ctx, p.instance.Id)
	if err != nil {
		return err
	}
	p.existingProcesses = make(map[string]runtime.BpmnProcess, len(processes))
	for _, bp := range processes {
		p.existingProcesses[bp.Guid] = bp
	}

	humanTasks, err := p.r.store.FindHumanTasksByProcessInstanceId(p.ctx, p.instance.Id)
	if err != nil {
		return err
	}
	p.openHumanTasks = make(map[string]runtime.HumanTask)
	for _, ht := range humanTasks {
		if !ht.Completed {
			p.openHumanTasks[ht.TaskGuid] = ht
		}
	}

	p.snapshotTasks = make(map[string]runtime.TaskSnapshot, len(p.snapshot.Tasks))
	for _, t := range p.snapshot.Tasks {
		p.snapshotTasks[t.Id.String()] = t
	}
	return nil
}

func (p *pass) storeDefinitions() error {
	root, err := p.r.definitions.StoreWorkflowSpec(p.ctx, p.batch, p.lookup, p.snapshot.Spec)
	if err != nil {
		return err
	}
	if p.instance.BpmnProcessDefinitionId == nil || *p.instance.BpmnProcessDefinitionId != root.Id {
		id := root.Id
		p.instance.BpmnProcessDefinitionId = &id
	}
	return nil
}

// orderedProcesses returns the process snapshots with every parent ahead of its children.
func (p *pass) orderedProcesses() []runtime.ProcessSnapshot {
	res := make([]runtime.ProcessSnapshot, 0, len(p.snapshot.Processes))
	placed := make(map[uuid.UUID]bool, len(p.snapshot.Processes))
	for len(res) < len(p.snapshot.Processes) {
		progress := false
		for _, ps := range p.snapshot.Processes {
			if placed[ps.Id] {
				continue
			}
			if ps.ParentId != nil {
				spawner, ok := p.snapshotTasks[ps.ParentId.String()]
				if ok && !placed[spawner.ProcessId] {
					continue
				}
			}
			res = append(res, ps)
			placed[ps.Id] = true
			progress = true
		}
		if !progress {
			// cycles cannot happen in a tree, keep the remaining order as is
			for _, ps := range p.snapshot.Processes {
				if !placed[ps.Id] {
					res = append(res, ps)
					placed[ps.Id] = true
				}
			}
		}
	}
	return res
}

func (p *pass) storeProcesses() error {
	p.processes = make(map[uuid.UUID]runtime.BpmnProcess, len(p.snapshot.Processes))
	p.processSpecNames = make(map[uuid.UUID]string, len(p.snapshot.Processes))
	var topLevelId int64
	for _, ps := range p.orderedProcesses() {
		def, ok := p.lookup.Process(ps.SpecName)
		if !ok {
			// deferred spec, tasks of this process are retried on a later pass
			p.r.logger.Debug("Skipping process with deferred spec", "instance", p.instance.Id, "process", ps.SpecName)
			continue
		}
		guid := ps.Id.String()
		bp, exists := p.existingProcesses[guid]
		if !exists {
			bp = runtime.BpmnProcess{
				Id:                p.r.store.GenerateId(),
				Guid:              guid,
				ProcessInstanceId: p.instance.Id,
			}
		}
		before := bp

		if ps.ParentId == nil {
			bp.TopLevelProcessId = bp.Id
			bp.DirectParentProcessId = nil
			topLevelId = bp.Id
		} else {
			spawner, ok := p.snapshotTasks[ps.ParentId.String()]
			if !ok {
				return fmt.Errorf("process %s is spawned by unknown task %s", guid, ps.ParentId)
			}
			parent, ok := p.processes[spawner.ProcessId]
			if !ok {
				p.r.logger.Debug("Skipping process whose parent is deferred", "instance", p.instance.Id, "process", ps.SpecName)
				continue
			}
			parentId := parent.Id
			bp.DirectParentProcessId = &parentId
			bp.TopLevelProcessId = parent.TopLevelProcessId
		}

		bp.JsonDataHash = p.processHashes[ps.Id]
		bp.BpmnProcessDefinitionId = def.Id
		if bp.Properties == nil {
			bp.Properties = []byte("{}")
		}

		p.processes[ps.Id] = bp
		p.processSpecNames[ps.Id] = ps.SpecName
		if exists && processUnchanged(before, bp) {
			continue
		}
		if err := p.batch.SaveBpmnProcess(p.ctx, bp); err != nil {
			return fmt.Errorf("failed to stage bpmn process %s: %w", guid, err)
		}
	}
	if topLevelId != 0 {
		p.instance.BpmnProcessId = &topLevelId
	}
	return nil
}

func processUnchanged(a, b runtime.BpmnProcess) bool {
	return a.JsonDataHash == b.JsonDataHash &&
		a.BpmnProcessDefinitionId == b.BpmnProcessDefinitionId &&
		a.TopLevelProcessId == b.TopLevelProcessId &&
		ptr.Equal(a.DirectParentProcessId, b.DirectParentProcessId)
}

func (p *pass) storeTasks() error {
	batchStart := runtime.ToSeconds(p.opts.BatchStart)
	for _, t := range p.snapshot.Tasks {
		guid := t.Id.String()
		if !p.persisted(t) {
			continue
		}
		bp, ok := p.processes[t.ProcessId]
		if !ok {
			p.result.Skipped = append(p.result.Skipped, guid)
			continue
		}
		specName := p.processSpecNames[t.ProcessId]
		td, ok := p.lookup.TaskDefinition(specName, t.TaskSpec)
		if !ok {
			return fmt.Errorf("task %s: no definition for %s in process %s", guid, t.TaskSpec, specName)
		}
		props, err := runtime.CanonicalJSON(t.Properties())
		if err != nil {
			return fmt.Errorf("task %s: failed to serialize properties: %w", guid, err)
		}

		existing, exists := p.existingTasks[guid]
		task := runtime.Task{
			Id:                p.r.store.GenerateId(),
			Guid:              guid,
			BpmnProcessId:     bp.Id,
			ProcessInstanceId: p.instance.Id,
			TaskDefinitionId:  td.Id,
			State:             t.State,
			Properties:        props,
			JsonDataHash:      p.taskHashes[guid],
		}
		if exists {
			task.Id = existing.Id
			task.StartInSeconds = existing.StartInSeconds
			task.EndInSeconds = existing.EndInSeconds
		}
		becameFinished := t.State.IsFinished() && (!exists || !existing.State.IsFinished())
		task.StartInSeconds, task.EndInSeconds = taskTiming(t.State, task.StartInSeconds, task.EndInSeconds, runtime.ToSeconds(t.LastStateChange), batchStart, becameFinished)

		if exists && taskUnchanged(existing, task) {
			continue
		}
		if err := p.batch.SaveTask(p.ctx, task); err != nil {
			return fmt.Errorf("failed to stage task %s: %w", guid, err)
		}
		p.result.Upserted = append(p.result.Upserted, guid)

		if !exists || existing.State != t.State {
			if err := p.recordTransition(t, td); err != nil {
				return err
			}
		}
	}
	return nil
}

// taskTiming applies the timestamp rule: a reached task without a start starts at its last state
// change, or at the batch start when it already finished within this pass; a finished task ends
// at its last state change but never before its start.
func taskTiming(state runtime.TaskState, start, end *float64, lastStateChange, batchStart float64, becameFinished bool) (*float64, *float64) {
	if !state.IsReached() {
		return nil, nil
	}
	if start == nil {
		s := lastStateChange
		if becameFinished {
			s = min(batchStart, lastStateChange)
		}
		start = &s
	}
	if !state.IsFinished() {
		return start, nil
	}
	if end == nil {
		e := max(*start, lastStateChange)
		end = &e
	}
	return start, end
}

func taskUnchanged(a, b runtime.Task) bool {
	return a.State == b.State &&
		a.TaskDefinitionId == b.TaskDefinitionId &&
		a.BpmnProcessId == b.BpmnProcessId &&
		a.JsonDataHash == b.JsonDataHash &&
		bytes.Equal(a.Properties, b.Properties) &&
		ptr.Equal(a.StartInSeconds, b.StartInSeconds) &&
		ptr.Equal(a.EndInSeconds, b.EndInSeconds)
}

func (p *pass) recordTransition(t runtime.TaskSnapshot, td runtime.TaskDefinition) error {
	var eventType runtime.ProcessInstanceEventType
	switch t.State {
	case runtime.TaskStateCompleted:
		eventType = runtime.EventTypeTaskCompleted
	case runtime.TaskStateError:
		eventType = runtime.EventTypeTaskFailed
	case runtime.TaskStateCancelled:
		eventType = runtime.EventTypeTaskCancelled
	default:
		return nil
	}
	e := events.Event{Type: eventType, TaskGuid: t.Id.String()}
	if eventType == runtime.EventTypeTaskCompleted && runtime.TaskKind(td.Typename).IsManual() {
		e.UserId = p.opts.CompletedBy
	}
	_, err := p.r.recorder.Record(p.ctx, p.batch, p.instance.Id, e)
	return err
}

// deleteTasks removes the records of discarded tasks and of unfinished tasks that left the tree.
func (p *pass) deleteTasks() error {
	toDelete := make(map[string]runtime.Task)
	for _, guid := range p.opts.Removed {
		if _, inTree := p.snapshotTasks[guid]; inTree {
			continue
		}
		if t, ok := p.existingTasks[guid]; ok {
			toDelete[guid] = t
		}
	}
	for guid, t := range p.existingTasks {
		if _, inTree := p.snapshotTasks[guid]; inTree {
			continue
		}
		if p.opts.SweepAbsent || !t.State.IsFinished() {
			toDelete[guid] = t
		}
	}

	// predicted tasks that are no longer persisted are dropped too
	if !p.r.cfg.PersistPredictedTasks {
		for guid, t := range p.existingTasks {
			if st, inTree := p.snapshotTasks[guid]; inTree && st.State.IsPredicted() {
				toDelete[guid] = t
			}
		}
	}

	guids := make([]string, 0, len(toDelete))
	for guid := range toDelete {
		guids = append(guids, guid)
	}
	slices.Sort(guids)

	if len(guids) > 0 {
		if err := p.batch.DeleteTasks(p.ctx, guids...); err != nil {
			return fmt.Errorf("failed to stage deletion of %d tasks: %w", len(guids), err)
		}
	}
	for _, guid := range guids {
		delete(p.openHumanTasks, guid)
		if toDelete[guid].State.IsPredicted() {
			if _, err := p.r.recorder.Record(p.ctx, p.batch, p.instance.Id, events.Event{Type: runtime.EventTypeTaskSkipped, TaskGuid: guid}); err != nil {
				return err
			}
		}
	}
	p.result.Deleted = guids

	if p.opts.SweepAbsent {
		return p.pruneProcesses()
	}
	return nil
}

// pruneProcesses removes sub-process records whose process left the snapshot.
func (p *pass) pruneProcesses() error {
	live := make(map[string]bool, len(p.snapshot.Processes))
	for _, ps := range p.snapshot.Processes {
		live[ps.Id.String()] = true
	}
	ids := make([]int64, 0)
	for guid, bp := range p.existingProcesses {
		if live[guid] || bp.IsTopLevel() {
			continue
		}
		ids = append(ids, bp.Id)
	}
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)
	if err := p.batch.DeleteBpmnProcesses(p.ctx, ids...); err != nil {
		return fmt.Errorf("failed to stage deletion of %d bpmn processes: %w", len(ids), err)
	}
	return nil
}

func (p *pass) syncHumanTasks() error {
	for _, t := range p.snapshot.Tasks {
		guid := t.Id.String()
		if _, ok := p.processes[t.ProcessId]; !ok {
			continue
		}
		spec, ok := p.snapshot.TaskSpecFor(t)
		if !ok || !spec.Kind.IsManual() {
			continue
		}
		if t.State.Is(runtime.TaskStateReady | runtime.TaskStateWaiting) {
			if err := p.resolve(t, spec); err != nil {
				return err
			}
			continue
		}
		ht, open := p.openHumanTasks[guid]
		if !open {
			continue
		}
		ht.Completed = true
		ht.TaskStatus = t.State.String()
		ht.UpdatedAt = p.now
		if t.State == runtime.TaskStateCompleted {
			ht.CompletedByUserId = p.opts.CompletedBy
		}
		if err := p.batch.SaveHumanTask(p.ctx, ht); err != nil {
			return fmt.Errorf("failed to stage completion of human task %d: %w", ht.Id, err)
		}
	}
	return nil
}

func (p *pass) resolve(t runtime.TaskSnapshot, spec *runtime.TaskSpec) error {
	req := humantask.Request{
		Instance:          p.instance,
		Task:              t,
		Spec:              spec,
		ProcessIdentifier: p.processSpecNames[t.ProcessId],
	}
	res, err := p.r.resolver.ResolveAndSync(p.ctx, p.batch, req)
	var noOwners *humantask.NoPotentialOwnersForTaskError
	if errors.As(err, &noOwners) {
		p.r.logger.Warn("Manual task has no potential owners", "instance", p.instance.Id, "task", noOwners.TaskGuid, "lane", noOwners.Lane)
		p.result.TaskErrors = append(p.result.TaskErrors, err)
		if p.r.metrics != nil {
			p.r.metrics.NoPotentialOwners.Add(p.ctx, 1)
		}
		_, recErr := p.r.recorder.Record(p.ctx, p.batch, p.instance.Id, events.Event{
			Type:     runtime.EventTypeProcessInstanceError,
			TaskGuid: t.Id.String(),
			Err:      err,
		})
		return recErr
	}
	if err != nil {
		return err
	}
	if res.Created {
		p.result.HumanTasksCreated++
	}
	return nil
}

// computeStatus derives the instance status from the snapshot.
func computeStatus(snapshot runtime.WorkflowSnapshot) runtime.ProcessInstanceStatus {
	if snapshot.Completed {
		return runtime.ProcessInstanceStatusComplete
	}
	status := runtime.ProcessInstanceStatusRunning
	for _, t := range snapshot.Tasks {
		switch {
		case t.State == runtime.TaskStateError:
			return runtime.ProcessInstanceStatusError
		case t.State == runtime.TaskStateReady:
			if spec, ok := snapshot.TaskSpecFor(t); ok && spec.Kind.IsManual() {
				status = runtime.ProcessInstanceStatusUserInputRequired
			}
		case t.State == runtime.TaskStateWaiting && status == runtime.ProcessInstanceStatusRunning:
			status = runtime.ProcessInstanceStatusWaiting
		}
	}
	return status
}

func (p *pass) storeInstance() error {
	status := p.opts.Status
	if status == "" {
		status = p.instance.Status
		// suspended and terminated instances keep their status until changed explicitly
		if status != runtime.ProcessInstanceStatusSuspended && status != runtime.ProcessInstanceStatusTerminated {
			status = computeStatus(p.snapshot)
		}
	}
	now := runtime.ToSeconds(p.now)
	if p.instance.StartInSeconds == nil {
		p.instance.StartInSeconds = &now
	}
	if (status == runtime.ProcessInstanceStatusComplete || status == runtime.ProcessInstanceStatusTerminated) && p.instance.EndInSeconds == nil {
		p.instance.EndInSeconds = &now
	}
	p.instance.Status = status

	stored, err := p.r.store.FindProcessInstanceById(p.ctx, p.instance.Id)
	switch {
	case err == nil && instanceUnchanged(stored, p.instance):
		p.instance.UpdatedAt = stored.UpdatedAt
		p.result.Instance = p.instance
		return nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to find process instance %d: %w", p.instance.Id, err)
	}
	p.instance.UpdatedAt = p.now
	if err := p.batch.SaveProcessInstance(p.ctx, p.instance); err != nil {
		return fmt.Errorf("failed to stage process instance %d: %w", p.instance.Id, err)
	}
	p.result.Instance = p.instance
	return nil
}

func instanceUnchanged(a, b runtime.ProcessInstance) bool {
	return a.Status == b.Status &&
		a.ProcessModelIdentifier == b.ProcessModelIdentifier &&
		a.ProcessInitiatorId == b.ProcessInitiatorId &&
		ptr.Equal(a.BpmnProcessDefinitionId, b.BpmnProcessDefinitionId) &&
		ptr.Equal(a.BpmnProcessId, b.BpmnProcessId) &&
		ptr.Equal(a.StartInSeconds, b.StartInSeconds) &&
		ptr.Equal(a.EndInSeconds, b.EndInSeconds)
}

func (p *pass) recordMetrics() {
	m := p.r.metrics
	if m == nil {
		return
	}
	upserted := int64(len(p.result.Upserted))
	deleted := int64(len(p.result.Deleted))
	created := int64(p.result.HumanTasksCreated)
	start := p.now
	ctx := context.WithoutCancel(p.ctx)
	attrs := metric.WithAttributes(attribute.String(otelPkg.AttributeProcessModel, p.instance.ProcessModelIdentifier))
	p.batch.AddPostFlushAction(p.ctx, func() {
		m.ReconcilePasses.Add(ctx, 1, attrs)
		m.TasksUpserted.Add(ctx, upserted, attrs)
		m.TasksDeleted.Add(ctx, deleted, attrs)
		m.HumanTasksCreated.Add(ctx, created, attrs)
		m.ReconcileDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
	})
}
