package reconcile

import (
	"testing"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/stretchr/testify/assert"
)

func view(guid string, processId, definitionId int64, lastStateChange float64, internal map[string]any) TaskView {
	return TaskView{
		Task:  runtime.Task{Guid: guid, BpmnProcessId: processId, TaskDefinitionId: definitionId},
		Props: runtime.TaskProperties{LastStateChange: lastStateChange, InternalData: internal},
	}
}

func guids(views []TaskView) []string {
	res := make([]string, len(views))
	for i, v := range views {
		res[i] = v.Guid
	}
	return res
}

func TestMostRecentTaskPerStep(t *testing.T) {
	tasks := []TaskView{
		view("a1", 1, 10, 1, nil),
		view("a2", 1, 10, 3, nil),
		view("b1", 1, 20, 2, nil),
		// same step in another bpmn process is a different step
		view("a3", 2, 10, 1, nil),
		// ties go to the higher guid
		view("c1", 1, 30, 5, nil),
		view("c2", 1, 30, 5, nil),
		// repetitions are kept
		view("m1", 1, 40, 6, map[string]any{"instance": 0}),
		view("m2", 1, 40, 7, map[string]any{"instance": 1}),
	}

	res := MostRecentTaskPerStep(tasks)
	assert.Equal(t, []string{"a3", "b1", "a2", "c2", "m1", "m2"}, guids(res))
}
