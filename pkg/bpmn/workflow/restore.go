package workflow

import (
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
)

// Restore rebuilds a workflow from a snapshot, for example one assembled from stored records.
// Every process of the snapshot needs a loaded spec.
func Restore(snapshot runtime.WorkflowSnapshot, options ...Option) (*Workflow, error) {
	if snapshot.Spec == nil {
		return nil, errors.New("snapshot has no workflow spec")
	}
	w := newWorkflow(snapshot.Id, snapshot.Spec, options...)
	w.completed = snapshot.Completed

	procs := make(map[uuid.UUID]*process, len(snapshot.Processes))
	var subs []*process
	for _, ps := range snapshot.Processes {
		spec, deferred, found := w.spec.ProcessSpec(ps.SpecName)
		if !found || deferred {
			return nil, fmt.Errorf("process %s: spec %s is not available", ps.Id, ps.SpecName)
		}
		p := &process{id: ps.Id, specName: ps.SpecName, spec: spec, data: deepCopy(ps.Data)}
		procs[ps.Id] = p
		if ps.ParentId == nil {
			if len(w.processes) > 0 {
				return nil, fmt.Errorf("snapshot has more than one top level process")
			}
			w.processes = append(w.processes, p)
		} else {
			subs = append(subs, p)
		}
	}
	if len(w.processes) == 0 || w.processes[0].id != snapshot.Id {
		return nil, fmt.Errorf("snapshot has no top level process %s", snapshot.Id)
	}
	w.processes = append(w.processes, subs...)

	ordered := make([]*Task, 0, len(snapshot.Tasks))
	for _, ts := range snapshot.Tasks {
		p, ok := procs[ts.ProcessId]
		if !ok {
			return nil, fmt.Errorf("task %s belongs to unknown process %s", ts.Id, ts.ProcessId)
		}
		spec, ok := p.spec.Task(ts.TaskSpec)
		if !ok {
			return nil, fmt.Errorf("task %s: spec %s not found in process %s", ts.Id, ts.TaskSpec, p.specName)
		}
		t := &Task{
			id:              ts.Id,
			process:         p,
			spec:            spec,
			state:           ts.State,
			data:            deepCopy(ts.Data),
			internal:        maps.Clone(ts.InternalData),
			lastStateChange: ts.LastStateChange,
		}
		w.tasks[t.id] = t
		p.tasks = append(p.tasks, t)
		ordered = append(ordered, t)
	}
	for _, ts := range snapshot.Tasks {
		t := w.tasks[ts.Id]
		for _, childId := range ts.ChildIds {
			if c, ok := w.tasks[childId]; ok && c.parent == nil {
				c.parent = t
				t.children = append(t.children, c)
			}
		}
	}
	for _, t := range ordered {
		if t.parent != nil {
			continue
		}
		if t.process.start != nil {
			return nil, fmt.Errorf("process %s has more than one root task", t.process.id)
		}
		t.process.start = t
	}
	for _, ps := range snapshot.Processes {
		p := procs[ps.Id]
		if p.start == nil {
			return nil, fmt.Errorf("process %s has no tasks", ps.Id)
		}
		if ps.ParentId != nil {
			spawner, ok := w.tasks[*ps.ParentId]
			if !ok {
				return nil, fmt.Errorf("process %s is spawned by unknown task %s", ps.Id, *ps.ParentId)
			}
			p.spawner = spawner
		}
	}
	for _, t := range ordered {
		t.expanded = !(t.state == runtime.TaskStateCompleted && len(t.children) == 0 && !t.isInstance() && hasOutputs(t.spec))
	}
	w.predictAll()
	return w, nil
}

func hasOutputs(spec *runtime.TaskSpec) bool {
	return spec.Kind == runtime.TaskKindExclusiveGateway || len(spec.Outputs) > 0
}

// Factory creates and restores workflows with a shared set of options.
type Factory struct {
	options []Option
}

func NewFactory(options ...Option) *Factory {
	return &Factory{options: options}
}

func (f *Factory) New(spec *runtime.WorkflowSpec, data map[string]any) (*Workflow, error) {
	return New(spec, data, f.options...)
}

func (f *Factory) Restore(snapshot runtime.WorkflowSnapshot) (*Workflow, error) {
	return Restore(snapshot, f.options...)
}
