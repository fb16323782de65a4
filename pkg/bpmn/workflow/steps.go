package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
)

// DoEngineSteps runs every READY task that needs no person until the workflow waits on
// manual tasks, fails or completes.
func (w *Workflow) DoEngineSteps(ctx context.Context) error {
	defer w.predictAll()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		progressed, err := w.step(ctx)
		if err != nil {
			w.updateCompleted()
			return err
		}
		if !progressed {
			break
		}
	}
	w.updateCompleted()
	return nil
}

func (w *Workflow) step(ctx context.Context) (bool, error) {
	progressed := false
	for _, t := range w.orderedTasks() {
		if !w.alive(t) {
			continue
		}
		var err error
		switch {
		case t.state == runtime.TaskStateCompleted && !t.expanded:
			err = w.expand(ctx, t)
			progressed = true
		case t.state == runtime.TaskStateReady && t.isMultiInstance():
			err = w.startMultiInstance(ctx, t)
			progressed = true
		case t.state == runtime.TaskStateReady && !t.spec.Kind.IsManual():
			err = w.run(ctx, t)
			progressed = true
		case t.state == runtime.TaskStateStarted:
			var advanced bool
			advanced, err = w.advance(ctx, t)
			progressed = progressed || advanced
		}
		if err != nil {
			return progressed, err
		}
	}
	return progressed, nil
}

// CompleteTask completes a READY or WAITING task, typically a manual one, merging data into
// its task data. Follow up with DoEngineSteps to run what comes next.
func (w *Workflow) CompleteTask(id uuid.UUID, data map[string]any) error {
	t, ok := w.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !t.state.Is(runtime.TaskStateReady | runtime.TaskStateWaiting) {
		return fmt.Errorf("%w: %s is %s", ErrTaskNotReady, t.spec.Name, t.state)
	}
	for k, v := range data {
		t.data[k] = copyValue(v)
	}
	err := w.complete(context.Background(), t)
	w.updateCompleted()
	w.predictAll()
	return err
}

func (w *Workflow) run(ctx context.Context, t *Task) error {
	if t.spec.Kind.SpawnsSubprocess() {
		return w.startSubprocess(t)
	}
	if t.spec.Kind == runtime.TaskKindScriptTask {
		if w.js == nil {
			return w.fail(t, errors.New("no javascript runtime configured"))
		}
		data, err := w.js.RunScript(ctx, t.spec.Script.Script, t.data)
		if err != nil {
			return w.fail(t, err)
		}
		t.data = data
	}
	return w.complete(ctx, t)
}

func (w *Workflow) fail(t *Task, err error) error {
	w.setState(t, runtime.TaskStateError)
	return &TaskError{TaskId: t.id, TaskSpec: t.spec.Name, Err: err}
}

func (w *Workflow) complete(ctx context.Context, t *Task) error {
	w.setState(t, runtime.TaskStateCompleted)
	t.process.data = deepCopy(t.data)
	return w.expand(ctx, t)
}

// expand creates the tasks that follow a completed task. A predicted child for the same spec
// becomes the real task and keeps its id, other predicted children are dropped.
func (w *Workflow) expand(ctx context.Context, t *Task) error {
	var outputs []string
	switch {
	case t.isInstance():
	case t.spec.Kind == runtime.TaskKindExclusiveGateway:
		target, err := w.chooseBranch(ctx, t)
		if err != nil {
			return w.fail(t, err)
		}
		outputs = []string{target}
	default:
		outputs = t.spec.Outputs
	}

	predicted := map[string]*Task{}
	for _, c := range slices.Clone(t.children) {
		if !c.state.IsPredicted() {
			continue
		}
		if _, dup := predicted[c.spec.Name]; !dup && slices.Contains(outputs, c.spec.Name) {
			predicted[c.spec.Name] = c
			continue
		}
		w.removeSubtree(c)
	}
	for _, name := range outputs {
		spec, ok := t.process.spec.Task(name)
		if !ok {
			return w.fail(t, fmt.Errorf("unknown output %s", name))
		}
		child, ok := predicted[name]
		if ok {
			w.setState(child, runtime.TaskStateReady)
		} else {
			child = w.newTask(t.process, t, spec, runtime.TaskStateReady)
		}
		child.data = deepCopy(t.data)
	}
	t.expanded = true
	return nil
}

func (w *Workflow) chooseBranch(ctx context.Context, t *Task) (string, error) {
	gw := t.spec.Gateway
	for _, flow := range gw.Conditions {
		if w.feel == nil {
			return "", errors.New("no FEEL runtime configured")
		}
		ok, err := w.feel.UnaryTest(ctx, flow.Condition, t.data)
		if err != nil {
			return "", err
		}
		if ok {
			return flow.Target, nil
		}
	}
	if gw.Default != "" {
		return gw.Default, nil
	}
	return "", fmt.Errorf("no condition of gateway %s matched", t.spec.Name)
}

func (w *Workflow) startSubprocess(t *Task) error {
	ref := t.spec.Call.ProcessRef
	spec, deferred, found := w.spec.ProcessSpec(ref)
	if !found || deferred {
		return w.fail(t, fmt.Errorf("sub-process spec %s is not available", ref))
	}
	sub := &process{
		id:       t.id,
		spawner:  t,
		specName: ref,
		spec:     spec,
		data:     deepCopy(t.data),
	}
	w.processes = append(w.processes, sub)
	startSpec, _ := spec.Task(spec.Start)
	sub.start = w.newTask(sub, nil, startSpec, runtime.TaskStateReady)
	sub.start.data = deepCopy(t.data)
	w.setState(t, runtime.TaskStateStarted)
	return nil
}

// advance completes a STARTED task once the work it waits on is done.
func (w *Workflow) advance(ctx context.Context, t *Task) (bool, error) {
	if t.isMultiInstance() {
		return w.advanceMultiInstance(ctx, t)
	}
	if !t.spec.Kind.SpawnsSubprocess() {
		return false, nil
	}
	subs := w.spawnedBy(t)
	if len(subs) == 0 {
		return true, w.startSubprocess(t)
	}
	sub := subs[0]
	if !w.processFinished(sub) {
		return false, nil
	}
	maps.Copy(t.data, deepCopy(sub.data))
	return true, w.complete(ctx, t)
}

func (w *Workflow) collection(t *Task) ([]any, error) {
	mi := t.spec.MultiInstance
	v, ok := t.data[mi.Collection]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("multi-instance collection %s is %T, expected a list", mi.Collection, v)
	}
	return items, nil
}

func (w *Workflow) startMultiInstance(ctx context.Context, t *Task) error {
	items, err := w.collection(t)
	if err != nil {
		return w.fail(t, err)
	}
	w.setState(t, runtime.TaskStateStarted)
	if len(items) == 0 {
		return w.complete(ctx, t)
	}
	n := len(items)
	if t.spec.MultiInstance.Sequential {
		n = 1
	}
	for i := 0; i < n; i++ {
		w.newInstance(t, i, items[i])
	}
	return nil
}

func (w *Workflow) newInstance(t *Task, index int, item any) *Task {
	inst := w.newTask(t.process, t, t.spec, runtime.TaskStateReady)
	inst.internal = map[string]any{runtime.InternalInstanceMarker: index}
	inst.data = deepCopy(t.data)
	if ev := t.spec.MultiInstance.ElementVariable; ev != "" {
		inst.data[ev] = copyValue(item)
	}
	return inst
}

func (w *Workflow) advanceMultiInstance(ctx context.Context, t *Task) (bool, error) {
	instances := t.instances()
	for _, inst := range instances {
		if inst.state != runtime.TaskStateCompleted && inst.state != runtime.TaskStateCancelled {
			return false, nil
		}
		if !inst.expanded {
			return false, nil
		}
	}
	items, err := w.collection(t)
	if err != nil {
		return true, w.fail(t, err)
	}
	if t.spec.MultiInstance.Sequential && len(instances) < len(items) {
		w.newInstance(t, len(instances), items[len(instances)])
		return true, nil
	}
	ev := t.spec.MultiInstance.ElementVariable
	for _, inst := range instances {
		for k, v := range inst.data {
			if k != ev {
				t.data[k] = copyValue(v)
			}
		}
	}
	return true, w.complete(ctx, t)
}

// processFinished reports whether every definite task of p is done and expanded.
func (w *Workflow) processFinished(p *process) bool {
	for _, t := range p.tasks {
		switch {
		case t.state.IsPredicted(), t.state == runtime.TaskStateCancelled:
		case t.state == runtime.TaskStateCompleted:
			if !t.expanded {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (w *Workflow) updateCompleted() {
	w.completed = len(w.processes) > 0 && w.processFinished(w.processes[0])
}
