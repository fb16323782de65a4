package reconcile

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage"
)

// TaskView is a stored task with its decoded properties.
type TaskView struct {
	runtime.Task
	Props runtime.TaskProperties
}

// ListTasks returns the stored tasks of the instance ordered by last state change. Predicted
// tasks are left out unless includePredicted is set.
func ListTasks(ctx context.Context, store storage.TaskStorageReader, processInstanceId int64, includePredicted bool) ([]TaskView, error) {
	mask := runtime.TaskStateDefiniteMask
	if includePredicted {
		mask = runtime.TaskStateAnyMask
	}
	tasks, err := store.FindTasksByProcessInstanceId(ctx, processInstanceId, mask)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks of process instance %d: %w", processInstanceId, err)
	}
	res := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		props, err := t.TaskProperties()
		if err != nil {
			return nil, fmt.Errorf("task %s: failed to decode properties: %w", t.Guid, err)
		}
		res = append(res, TaskView{Task: t, Props: props})
	}
	slices.SortStableFunc(res, compareRecency)
	return res, nil
}

// compareRecency orders by last state change, an exact tie by guid.
func compareRecency(a, b TaskView) int {
	if c := cmp.Compare(a.Props.LastStateChange, b.Props.LastStateChange); c != 0 {
		return c
	}
	return cmp.Compare(a.Guid, b.Guid)
}

type stepKey struct {
	bpmnProcessId    int64
	taskDefinitionId int64
}

// MostRecentTaskPerStep keeps the latest task of every step (task definition within a bpmn
// process). The later last state change wins, an exact tie goes to the higher guid.
// Multi-instance and loop repetitions are never collapsed.
func MostRecentTaskPerStep(tasks []TaskView) []TaskView {
	latest := make(map[stepKey]TaskView, len(tasks))
	res := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		if t.Props.IsRepetition() {
			res = append(res, t)
			continue
		}
		key := stepKey{bpmnProcessId: t.BpmnProcessId, taskDefinitionId: t.TaskDefinitionId}
		current, ok := latest[key]
		if !ok || compareRecency(t, current) > 0 {
			latest[key] = t
		}
	}
	for _, t := range latest {
		res = append(res, t)
	}
	slices.SortStableFunc(res, compareRecency)
	return res
}
