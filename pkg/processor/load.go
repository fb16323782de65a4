package processor

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
)

// LoadWorkflow rebuilds the engine of a stored instance. The returned engine is detached from
// storage, changes to it are only persisted through the processor operations.
func (p *Processor) LoadWorkflow(ctx context.Context, processInstanceId int64) (Engine, error) {
	instance, err := p.findInstance(ctx, processInstanceId)
	if err != nil {
		return nil, err
	}
	engine, err := p.restore(ctx, instance)
	return engine, wrapError(processInstanceId, "", err)
}

func (p *Processor) restore(ctx context.Context, instance runtime.ProcessInstance) (Engine, error) {
	snapshot, err := p.loadSnapshot(ctx, instance)
	if err != nil {
		return nil, err
	}
	engine, err := p.engines.RestoreEngine(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to restore engine: %w", err)
	}
	return engine, nil
}

// loadSnapshot assembles the engine snapshot of instance from the stored definitions, bpmn
// processes, tasks and data blobs.
func (p *Processor) loadSnapshot(ctx context.Context, instance runtime.ProcessInstance) (runtime.WorkflowSnapshot, error) {
	snapshot := runtime.WorkflowSnapshot{Completed: instance.Status == runtime.ProcessInstanceStatusComplete}
	if instance.BpmnProcessDefinitionId == nil {
		return snapshot, fmt.Errorf("process instance %d has no stored definition", instance.Id)
	}
	spec, err := p.definitions.LoadWorkflowSpec(ctx, *instance.BpmnProcessDefinitionId)
	if err != nil {
		return snapshot, err
	}
	snapshot.Spec = spec

	processes, err := p.store.FindBpmnProcessesByProcessInstanceId(ctx, instance.Id)
	if err != nil {
		return snapshot, fmt.Errorf("failed to load bpmn processes: %w", err)
	}
	processIds := make(map[int64]uuid.UUID, len(processes))
	for _, bp := range processes {
		id, err := uuid.Parse(bp.Guid)
		if err != nil {
			return snapshot, fmt.Errorf("bpmn process %d has invalid guid %q: %w", bp.Id, bp.Guid, err)
		}
		def, err := p.store.FindBpmnProcessDefinitionById(ctx, bp.BpmnProcessDefinitionId)
		if err != nil {
			return snapshot, fmt.Errorf("failed to load definition of bpmn process %s: %w", bp.Guid, err)
		}
		data, err := p.data.FetchMap(ctx, bp.JsonDataHash)
		if err != nil {
			return snapshot, err
		}
		ps := runtime.ProcessSnapshot{Id: id, SpecName: def.BpmnIdentifier, Data: data}
		if bp.IsTopLevel() {
			snapshot.Id = id
		} else {
			// a sub-process carries the id of the task that spawned it
			spawner := id
			ps.ParentId = &spawner
		}
		processIds[bp.Id] = id
		snapshot.Processes = append(snapshot.Processes, ps)
	}
	if snapshot.Id == uuid.Nil {
		return snapshot, fmt.Errorf("process instance %d has no top level bpmn process", instance.Id)
	}

	tasks, err := p.store.FindTasksByProcessInstanceId(ctx, instance.Id, runtime.TaskStateAnyMask)
	if err != nil {
		return snapshot, fmt.Errorf("failed to load tasks: %w", err)
	}
	slices.SortFunc(tasks, func(a, b runtime.Task) int { return cmp.Compare(a.Id, b.Id) })
	for _, t := range tasks {
		ts, err := p.taskSnapshot(ctx, t, processIds)
		if err != nil {
			return snapshot, err
		}
		snapshot.Tasks = append(snapshot.Tasks, ts)
	}
	return snapshot, nil
}

func (p *Processor) taskSnapshot(ctx context.Context, t runtime.Task, processIds map[int64]uuid.UUID) (runtime.TaskSnapshot, error) {
	var ts runtime.TaskSnapshot
	id, err := uuid.Parse(t.Guid)
	if err != nil {
		return ts, fmt.Errorf("task %d has invalid guid %q: %w", t.Id, t.Guid, err)
	}
	processId, ok := processIds[t.BpmnProcessId]
	if !ok {
		return ts, fmt.Errorf("task %s belongs to unknown bpmn process %d", t.Guid, t.BpmnProcessId)
	}
	props, err := t.TaskProperties()
	if err != nil {
		return ts, fmt.Errorf("task %s has invalid properties: %w", t.Guid, err)
	}
	data, err := p.data.FetchMap(ctx, t.JsonDataHash)
	if err != nil {
		return ts, err
	}
	ts = runtime.TaskSnapshot{
		Id:              id,
		ChildIds:        make([]uuid.UUID, 0, len(props.Children)),
		ProcessId:       processId,
		TaskSpec:        props.TaskSpec,
		State:           t.State,
		Data:            data,
		InternalData:    props.InternalData,
		LastStateChange: runtime.FromSeconds(props.LastStateChange),
	}
	if props.Parent != nil {
		parent, err := uuid.Parse(*props.Parent)
		if err != nil {
			return ts, fmt.Errorf("task %s has invalid parent %q: %w", t.Guid, *props.Parent, err)
		}
		ts.ParentId = &parent
	}
	for _, c := range props.Children {
		child, err := uuid.Parse(c)
		if err != nil {
			return ts, fmt.Errorf("task %s has invalid child %q: %w", t.Guid, c, err)
		}
		ts.ChildIds = append(ts.ChildIds, child)
	}
	return ts, nil
}
