package runtime

import (
	"time"

	"github.com/google/uuid"
)

// TaskSnapshot is a point in time copy of one engine task. Relationships are expressed by
// id only so a snapshot list can be diffed without holding the engine tree.
type TaskSnapshot struct {
	Id              uuid.UUID
	ParentId        *uuid.UUID
	ChildIds        []uuid.UUID
	ProcessId       uuid.UUID // owning bpmn process
	TaskSpec        string
	State           TaskState
	Data            map[string]any
	InternalData    map[string]any
	LastStateChange time.Time
}

func (t TaskSnapshot) Properties() TaskProperties {
	props := TaskProperties{
		Children:        make([]string, 0, len(t.ChildIds)),
		TaskSpec:        t.TaskSpec,
		LastStateChange: ToSeconds(t.LastStateChange),
		InternalData:    t.InternalData,
	}
	if t.ParentId != nil {
		parent := t.ParentId.String()
		props.Parent = &parent
	}
	for _, c := range t.ChildIds {
		props.Children = append(props.Children, c.String())
	}
	return props
}

// ProcessSnapshot describes one running process. The top level process uses the
// workflow id, sub-processes use the id of the task that spawned them.
type ProcessSnapshot struct {
	Id       uuid.UUID
	ParentId *uuid.UUID
	SpecName string
	Data     map[string]any
}

type WorkflowSnapshot struct {
	Id        uuid.UUID
	Spec      *WorkflowSpec
	Processes []ProcessSnapshot
	Tasks     []TaskSnapshot
	Completed bool
}

func (w WorkflowSnapshot) Process(id uuid.UUID) (ProcessSnapshot, bool) {
	for _, p := range w.Processes {
		if p.Id == id {
			return p, true
		}
	}
	return ProcessSnapshot{}, false
}

func (w WorkflowSnapshot) TaskSpecFor(task TaskSnapshot) (*TaskSpec, bool) {
	process, ok := w.Process(task.ProcessId)
	if !ok {
		return nil, false
	}
	spec, deferred, found := w.Spec.ProcessSpec(process.SpecName)
	if !found || deferred {
		return nil, false
	}
	return spec.Task(task.TaskSpec)
}

// Filter returns the tasks whose state matches mask.
func (w WorkflowSnapshot) Filter(mask TaskState) []TaskSnapshot {
	res := make([]TaskSnapshot, 0, len(w.Tasks))
	for _, t := range w.Tasks {
		if t.State.Is(mask) {
			res = append(res, t)
		}
	}
	return res
}
