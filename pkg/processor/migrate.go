// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package processor

import (
	"context"

	"github.com/google/uuid"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/events"
	"github.com/pbinitiative/zentask/pkg/reconcile"
)

// MigrateProcess rebinds the instance to spec. Tasks whose spec name exists in the matching
// process of spec are kept and re-pointed to the new task definitions, the rest are discarded
// together with their descendants and the sub-processes they spawned.
func (p *Processor) MigrateProcess(ctx context.Context, processInstanceId int64, spec *runtime.WorkflowSpec) (reconcile.Result, error) {
	ctx, span := p.startSpan(ctx, "migrate-process", processInstanceId)
	var res reconcile.Result
	err := p.WithDequeued(ctx, processInstanceId, func(ctx context.Context) error {
		if err := spec.Validate(); err != nil {
			return err
		}
		instance, err := p.findInstance(ctx, processInstanceId)
		if err != nil {
			return err
		}
		if instance.Status == runtime.ProcessInstanceStatusTerminated {
			return &ProcessInstanceError{ProcessInstanceId: processInstanceId, Err: ErrInstanceNotActive}
		}
		snapshot, err := p.loadSnapshot(ctx, instance)
		if err != nil {
			return err
		}
		migrated, discarded := migrateSnapshot(snapshot, spec)
		engine, err := p.engines.RestoreEngine(migrated)
		if err != nil {
			return err
		}
		res, err = p.commit(ctx, instance, engine, reconcile.Options{
			Removed:     guids(discarded),
			SweepAbsent: true,
		}, events.Event{Type: runtime.EventTypeProcessInstanceMigrated})
		if err != nil {
			return err
		}
		p.logger.Info("Process instance migrated", "instance", processInstanceId, "model", spec.Spec.Name, "discarded", len(discarded))
		return nil
	})
	err = wrapError(processInstanceId, "", err)
	endSpan(span, err)
	return res, err
}

// migrateSnapshot keeps the parts of snapshot that spec still describes.
func migrateSnapshot(snapshot runtime.WorkflowSnapshot, spec *runtime.WorkflowSpec) (runtime.WorkflowSnapshot, []uuid.UUID) {
	tasks := make(map[uuid.UUID]runtime.TaskSnapshot, len(snapshot.Tasks))
	for _, t := range snapshot.Tasks {
		tasks[t.Id] = t
	}
	processSpecs := make(map[uuid.UUID]*runtime.ProcessSpec, len(snapshot.Processes))
	for _, ps := range snapshot.Processes {
		if s, deferred, found := spec.ProcessSpec(ps.SpecName); found && !deferred {
			processSpecs[ps.Id] = s
		}
	}

	drop := make(map[uuid.UUID]bool)
	var dropTask func(id uuid.UUID)
	dropTask = func(id uuid.UUID) {
		if drop[id] {
			return
		}
		drop[id] = true
		for _, c := range tasks[id].ChildIds {
			dropTask(c)
		}
		// tasks of the process the task spawned
		for _, t := range snapshot.Tasks {
			if t.ProcessId == id {
				dropTask(t.Id)
			}
		}
	}
	for _, t := range snapshot.Tasks {
		ps, ok := processSpecs[t.ProcessId]
		if !ok {
			dropTask(t.Id)
			continue
		}
		if _, ok := ps.Task(t.TaskSpec); !ok {
			dropTask(t.Id)
		}
	}

	migrated := runtime.WorkflowSnapshot{
		Id:        snapshot.Id,
		Spec:      spec,
		Completed: snapshot.Completed,
	}
	var discarded []uuid.UUID
	for _, t := range snapshot.Tasks {
		if drop[t.Id] {
			discarded = append(discarded, t.Id)
			continue
		}
		kept := t
		kept.ChildIds = make([]uuid.UUID, 0, len(t.ChildIds))
		for _, c := range t.ChildIds {
			if !drop[c] {
				kept.ChildIds = append(kept.ChildIds, c)
			}
		}
		migrated.Tasks = append(migrated.Tasks, kept)
	}
	for _, ps := range snapshot.Processes {
		if _, ok := processSpecs[ps.Id]; !ok {
			continue
		}
		if ps.ParentId != nil && drop[*ps.ParentId] {
			continue
		}
		if ps.ParentId == nil || hasAnyTask(migrated, ps.Id) {
			migrated.Processes = append(migrated.Processes, ps)
		}
	}
	return migrated, discarded
}

func hasAnyTask(snapshot runtime.WorkflowSnapshot, processId uuid.UUID) bool {
	for _, t := range snapshot.Tasks {
		if t.ProcessId == processId {
			return true
		}
	}
	return false
}
