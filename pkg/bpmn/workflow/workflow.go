// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package workflow is a small in-memory engine that executes a runtime.WorkflowSpec as a tree
// of tasks. It supports sequential flow, exclusive gateways, script tasks, manual tasks, call
// activities, multi-instance tasks and predicted (LIKELY/MAYBE) tasks, and it can be reset to
// an earlier task or restored from a snapshot.
package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/script"
)

// Workflow is not safe for concurrent use, callers serialize access per process instance.
type Workflow struct {
	id        uuid.UUID
	spec      *runtime.WorkflowSpec
	processes []*process
	tasks     map[uuid.UUID]*Task
	completed bool

	js      script.JsRuntime
	feel    script.FeelRuntime
	predict bool
	now     func() time.Time
	logger  hclog.Logger
}

type Option = func(*Workflow)

func WithJsRuntime(js script.JsRuntime) Option {
	return func(w *Workflow) { w.js = js }
}

func WithFeelRuntime(feel script.FeelRuntime) Option {
	return func(w *Workflow) { w.feel = feel }
}

// WithPredictions makes the workflow keep LIKELY and MAYBE tasks for the paths ahead.
func WithPredictions(predict bool) Option {
	return func(w *Workflow) { w.predict = predict }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func WithLogger(logger hclog.Logger) Option {
	return func(w *Workflow) { w.logger = logger }
}

func newWorkflow(id uuid.UUID, spec *runtime.WorkflowSpec, options ...Option) *Workflow {
	w := &Workflow{
		id:     id,
		spec:   spec,
		tasks:  map[uuid.UUID]*Task{},
		now:    time.Now,
		logger: hclog.NewNullLogger(),
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// New creates a workflow for spec with its start task READY. Nothing runs until DoEngineSteps.
func New(spec *runtime.WorkflowSpec, data map[string]any, options ...Option) (*Workflow, error) {
	if spec == nil {
		return nil, fmt.Errorf("workflow spec is nil")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	w := newWorkflow(uuid.New(), spec, options...)
	top := &process{
		id:       w.id,
		specName: spec.Spec.Name,
		spec:     &spec.Spec,
		data:     deepCopy(data),
	}
	w.processes = append(w.processes, top)
	startSpec, _ := spec.Spec.Task(spec.Spec.Start)
	start := w.newTask(top, nil, startSpec, runtime.TaskStateReady)
	start.data = deepCopy(data)
	top.start = start
	w.predictAll()
	return w, nil
}

func (w *Workflow) Id() uuid.UUID {
	return w.id
}

func (w *Workflow) Spec() *runtime.WorkflowSpec {
	return w.spec
}

func (w *Workflow) IsCompleted() bool {
	return w.completed
}

// Task returns the task with the given id.
func (w *Workflow) Task(id uuid.UUID) (*Task, bool) {
	t, ok := w.tasks[id]
	return t, ok
}

// Tasks returns the tasks matching mask in tree order.
func (w *Workflow) Tasks(mask runtime.TaskState) []*Task {
	res := make([]*Task, 0, len(w.tasks))
	for _, t := range w.orderedTasks() {
		if t.state.Is(mask) {
			res = append(res, t)
		}
	}
	return res
}

// Snapshot copies the processes and the tasks matching mask.
func (w *Workflow) Snapshot(mask runtime.TaskState) runtime.WorkflowSnapshot {
	snap := runtime.WorkflowSnapshot{
		Id:        w.id,
		Spec:      w.spec,
		Processes: make([]runtime.ProcessSnapshot, 0, len(w.processes)),
		Tasks:     make([]runtime.TaskSnapshot, 0, len(w.tasks)),
		Completed: w.completed,
	}
	for _, p := range w.processes {
		ps := runtime.ProcessSnapshot{Id: p.id, SpecName: p.specName, Data: deepCopy(p.data)}
		if p.spawner != nil {
			spawnerId := p.spawner.id
			ps.ParentId = &spawnerId
		}
		snap.Processes = append(snap.Processes, ps)
	}
	for _, t := range w.Tasks(mask) {
		snap.Tasks = append(snap.Tasks, t.snapshot())
	}
	return snap
}

func (w *Workflow) newTask(p *process, parent *Task, spec *runtime.TaskSpec, state runtime.TaskState) *Task {
	t := &Task{
		id:              uuid.New(),
		parent:          parent,
		process:         p,
		spec:            spec,
		state:           state,
		data:            map[string]any{},
		lastStateChange: w.now(),
		expanded:        false,
	}
	if parent != nil {
		parent.children = append(parent.children, t)
	}
	p.tasks = append(p.tasks, t)
	w.tasks[t.id] = t
	return t
}

func (w *Workflow) setState(t *Task, state runtime.TaskState) {
	if t.state == state {
		return
	}
	w.logger.Trace("Task state change", "task", t.spec.Name, "id", t.id, "from", t.state, "to", state)
	t.state = state
	t.lastStateChange = w.now()
}

// removeSubtree drops t, its descendants and every sub-process spawned by them. It returns
// the ids of all removed tasks.
func (w *Workflow) removeSubtree(t *Task) []uuid.UUID {
	if t.parent != nil {
		t.parent.removeChild(t)
	}
	return w.drop(t)
}

func (w *Workflow) drop(t *Task) []uuid.UUID {
	removed := []uuid.UUID{t.id}
	for _, c := range t.children {
		removed = append(removed, w.drop(c)...)
	}
	t.children = nil
	for _, p := range w.spawnedBy(t) {
		removed = append(removed, w.dropProcess(p)...)
	}
	t.process.removeTask(t)
	delete(w.tasks, t.id)
	return removed
}

func (w *Workflow) dropProcess(p *process) []uuid.UUID {
	var removed []uuid.UUID
	if p.start != nil {
		removed = w.drop(p.start)
		p.start = nil
	}
	for i, candidate := range w.processes {
		if candidate == p {
			w.processes = append(w.processes[:i], w.processes[i+1:]...)
			break
		}
	}
	return removed
}

func (w *Workflow) spawnedBy(t *Task) []*process {
	var res []*process
	for _, p := range w.processes {
		if p.spawner == t {
			res = append(res, p)
		}
	}
	return res
}

// orderedTasks walks every process tree depth first, processes in creation order.
func (w *Workflow) orderedTasks() []*Task {
	res := make([]*Task, 0, len(w.tasks))
	var walk func(t *Task)
	walk = func(t *Task) {
		res = append(res, t)
		for _, c := range t.children {
			walk(c)
		}
	}
	for _, p := range w.processes {
		if p.start != nil {
			walk(p.start)
		}
	}
	return res
}

func (w *Workflow) alive(t *Task) bool {
	return w.tasks[t.id] == t
}
