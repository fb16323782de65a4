package workflow

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
)

// Task is one node of the task tree. Tasks are owned by the Workflow and are not safe for
// use outside of it.
type Task struct {
	id              uuid.UUID
	parent          *Task
	children        []*Task
	process         *process
	spec            *runtime.TaskSpec
	state           runtime.TaskState
	data            map[string]any
	internal        map[string]any
	lastStateChange time.Time
	// expanded is false for a completed task whose outputs have not been created yet,
	// which happens after a reset to that task.
	expanded bool
}

func (t *Task) Id() uuid.UUID {
	return t.id
}

func (t *Task) State() runtime.TaskState {
	return t.state
}

func (t *Task) Spec() *runtime.TaskSpec {
	return t.spec
}

func (t *Task) Data() map[string]any {
	return maps.Clone(t.data)
}

func (t *Task) isInstance() bool {
	_, ok := t.internal[runtime.InternalInstanceMarker]
	return ok
}

func (t *Task) isMultiInstance() bool {
	return t.spec.MultiInstance != nil && !t.isInstance()
}

func (t *Task) instances() []*Task {
	res := make([]*Task, 0)
	for _, c := range t.children {
		if c.isInstance() {
			res = append(res, c)
		}
	}
	return res
}

func (t *Task) removeChild(child *Task) {
	t.children = slices.DeleteFunc(t.children, func(c *Task) bool { return c == child })
}

func (t *Task) snapshot() runtime.TaskSnapshot {
	s := runtime.TaskSnapshot{
		Id:              t.id,
		ChildIds:        make([]uuid.UUID, 0, len(t.children)),
		ProcessId:       t.process.id,
		TaskSpec:        t.spec.Name,
		State:           t.state,
		Data:            deepCopy(t.data),
		InternalData:    maps.Clone(t.internal),
		LastStateChange: t.lastStateChange,
	}
	if t.parent != nil {
		parentId := t.parent.id
		s.ParentId = &parentId
	}
	for _, c := range t.children {
		s.ChildIds = append(s.ChildIds, c.id)
	}
	return s
}

// process is one running bpmn process. Sub-processes share the id of the task that spawned them.
type process struct {
	id       uuid.UUID
	spawner  *Task
	specName string
	spec     *runtime.ProcessSpec
	data     map[string]any
	start    *Task
	tasks    []*Task
}

func (p *process) removeTask(t *Task) {
	p.tasks = slices.DeleteFunc(p.tasks, func(c *Task) bool { return c == t })
}

// deepCopy copies nested maps and slices of JSON-like data.
func deepCopy(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	res := make(map[string]any, len(data))
	for k, v := range data {
		res[k] = copyValue(v)
	}
	return res
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopy(val)
	case []any:
		res := make([]any, len(val))
		for i, item := range val {
			res[i] = copyValue(item)
		}
		return res
	default:
		return v
	}
}
