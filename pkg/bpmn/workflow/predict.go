package workflow

import (
	"maps"
	"slices"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
)

type prediction struct {
	spec  *runtime.TaskSpec
	state runtime.TaskState
}

// predictAll keeps a LIKELY/MAYBE subtree below every unfinished task. Existing predicted
// tasks are reused by spec name so their ids stay stable between steps.
func (w *Workflow) predictAll() {
	if !w.predict {
		return
	}
	for _, t := range w.orderedTasks() {
		if !w.alive(t) || t.state.IsPredicted() || t.state.IsFinished() || t.isInstance() {
			continue
		}
		w.syncPredicted(t, true, map[string]bool{t.spec.Name: true})
	}
}

func (w *Workflow) syncPredicted(t *Task, likely bool, seen map[string]bool) {
	want := w.predictedOutputs(t, likely, seen)
	existing := map[string]*Task{}
	for _, c := range slices.Clone(t.children) {
		if !c.state.IsPredicted() {
			continue
		}
		_, dup := existing[c.spec.Name]
		wanted := slices.ContainsFunc(want, func(p prediction) bool { return p.spec.Name == c.spec.Name })
		if !dup && wanted {
			existing[c.spec.Name] = c
			continue
		}
		w.removeSubtree(c)
	}
	for _, p := range want {
		c, ok := existing[p.spec.Name]
		if !ok {
			c = w.newTask(t.process, t, p.spec, p.state)
		} else if c.state != p.state {
			c.state = p.state
		}
		next := maps.Clone(seen)
		next[p.spec.Name] = true
		w.syncPredicted(c, p.state == runtime.TaskStateLikely, next)
	}
}

// predictedOutputs lists the tasks expected after t. The default branch of a gateway keeps
// the likelihood of the gateway, conditional branches are MAYBE. Specs already on the
// predicted path are left out so loops do not expand forever.
func (w *Workflow) predictedOutputs(t *Task, likely bool, seen map[string]bool) []prediction {
	if t.spec.Kind == runtime.TaskKindEndEvent {
		return nil
	}
	state := runtime.TaskStateMaybe
	if likely {
		state = runtime.TaskStateLikely
	}
	var res []prediction
	add := func(name string, s runtime.TaskState) {
		if seen[name] || slices.ContainsFunc(res, func(p prediction) bool { return p.spec.Name == name }) {
			return
		}
		if spec, ok := t.process.spec.Task(name); ok {
			res = append(res, prediction{spec: spec, state: s})
		}
	}
	if gw := t.spec.Gateway; t.spec.Kind == runtime.TaskKindExclusiveGateway && gw != nil {
		if gw.Default != "" {
			add(gw.Default, state)
		}
		for _, flow := range gw.Conditions {
			add(flow.Target, runtime.TaskStateMaybe)
		}
		return res
	}
	for _, name := range t.spec.Outputs {
		add(name, state)
	}
	return res
}
