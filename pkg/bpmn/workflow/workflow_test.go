package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/script/feel"
	"github.com/pbinitiative/zentask/pkg/script/js"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSpec(t *testing.T, name string) *runtime.WorkflowSpec {
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	defer f.Close()
	spec, err := runtime.LoadWorkflowSpec(f)
	require.NoError(t, err)
	return spec
}

func engineOptions(t *testing.T, predict bool) []Option {
	jsRuntime, err := js.NewJsRuntime(t.Context(), 2, 1)
	require.NoError(t, err)
	return []Option{
		WithJsRuntime(jsRuntime),
		WithFeelRuntime(feel.NewFeelRuntime()),
		WithPredictions(predict),
	}
}

func newWorkflowFor(t *testing.T, specFile string, data map[string]any, predict bool) *Workflow {
	w, err := New(loadSpec(t, specFile), data, engineOptions(t, predict)...)
	require.NoError(t, err)
	return w
}

func taskBySpec(t *testing.T, w *Workflow, specName string, mask runtime.TaskState) *Task {
	var found *Task
	for _, task := range w.Tasks(mask) {
		if task.spec.Name == specName {
			require.Nil(t, found, "more than one %s task", specName)
			found = task
		}
	}
	require.NotNil(t, found, "no %s task", specName)
	return found
}

func specNames(tasks []*Task) []string {
	res := make([]string, 0, len(tasks))
	for _, task := range tasks {
		res = append(res, task.spec.Name)
	}
	return res
}

func TestSequentialFlow(t *testing.T) {
	w := newWorkflowFor(t, "approval.yaml", map[string]any{"amount": 21}, true)
	require.NoError(t, w.DoEngineSteps(t.Context()))

	ready := w.Tasks(runtime.TaskStateReady)
	assert.Equal(t, []string{"approve"}, specNames(ready))
	assert.Equal(t, 42.0, ready[0].Data()["total"])
	assert.False(t, w.IsCompleted())

	end := taskBySpec(t, w, "end", runtime.TaskStateLikely)

	require.NoError(t, w.CompleteTask(ready[0].Id(), map[string]any{"approved": true}))
	require.NoError(t, w.DoEngineSteps(t.Context()))
	assert.True(t, w.IsCompleted())

	// the predicted end event became the real one
	completedEnd := taskBySpec(t, w, "end", runtime.TaskStateCompleted)
	assert.Equal(t, end.Id(), completedEnd.Id())
	assert.Equal(t, true, completedEnd.Data()["approved"])

	snap := w.Snapshot(runtime.TaskStateAnyMask)
	assert.True(t, snap.Completed)
	require.Len(t, snap.Processes, 1)
	assert.Equal(t, w.Id(), snap.Processes[0].Id)
	assert.Equal(t, true, snap.Processes[0].Data["approved"])
}

func TestSnapshotStructure(t *testing.T) {
	w := newWorkflowFor(t, "approval.yaml", map[string]any{"amount": 1}, true)
	require.NoError(t, w.DoEngineSteps(t.Context()))

	snap := w.Snapshot(runtime.TaskStateAnyMask)
	require.Len(t, snap.Tasks, 4)
	byId := map[uuid.UUID]runtime.TaskSnapshot{}
	for _, ts := range snap.Tasks {
		byId[ts.Id] = ts
	}
	for _, ts := range snap.Tasks {
		if ts.ParentId == nil {
			assert.Equal(t, "start", ts.TaskSpec)
			continue
		}
		parent, ok := byId[*ts.ParentId]
		require.True(t, ok)
		assert.Contains(t, parent.ChildIds, ts.Id)
		assert.Equal(t, w.Id(), ts.ProcessId)
	}

	definite := w.Snapshot(runtime.TaskStateDefiniteMask)
	assert.Len(t, definite.Tasks, 3)
}

func TestPredictionsDisabled(t *testing.T) {
	w := newWorkflowFor(t, "approval.yaml", map[string]any{"amount": 1}, false)
	require.NoError(t, w.DoEngineSteps(t.Context()))
	assert.Empty(t, w.Tasks(runtime.TaskStatePredictedMask))
	assert.Len(t, w.Tasks(runtime.TaskStateAnyMask), 3)
}

func TestGatewayPredictions(t *testing.T) {
	w := newWorkflowFor(t, "routing.yaml", map[string]any{"amount": 150.0}, true)

	assert.Equal(t, runtime.TaskStateLikely, taskBySpec(t, w, "auto_approve", runtime.TaskStateAnyMask).State())
	assert.Equal(t, runtime.TaskStateMaybe, taskBySpec(t, w, "manual_review", runtime.TaskStateAnyMask).State())
}

func TestGatewayBranches(t *testing.T) {
	w := newWorkflowFor(t, "routing.yaml", map[string]any{"amount": 150.0}, true)
	require.NoError(t, w.DoEngineSteps(t.Context()))
	assert.Equal(t, []string{"manual_review"}, specNames(w.Tasks(runtime.TaskStateReady)))
	assert.Empty(t, specNamesOf(w, "auto_approve"))

	w = newWorkflowFor(t, "routing.yaml", map[string]any{"amount": 50.0}, true)
	require.NoError(t, w.DoEngineSteps(t.Context()))
	assert.True(t, w.IsCompleted())
	assert.Empty(t, specNamesOf(w, "manual_review"))
}

func specNamesOf(w *Workflow, specName string) []string {
	var res []string
	for _, task := range w.Tasks(runtime.TaskStateAnyMask) {
		if task.spec.Name == specName {
			res = append(res, specName)
		}
	}
	return res
}

func TestCallActivity(t *testing.T) {
	w := newWorkflowFor(t, "call.yaml", map[string]any{"order": "A-1"}, true)
	require.NoError(t, w.DoEngineSteps(t.Context()))

	call := taskBySpec(t, w, "call", runtime.TaskStateStarted)
	sign := taskBySpec(t, w, "sign", runtime.TaskStateReady)
	assert.Equal(t, call.Id(), sign.process.id)
	assert.Equal(t, "A-1", sign.Data()["order"])

	snap := w.Snapshot(runtime.TaskStateAnyMask)
	require.Len(t, snap.Processes, 2)
	sub := snap.Processes[1]
	assert.Equal(t, "inner", sub.SpecName)
	require.NotNil(t, sub.ParentId)
	assert.Equal(t, call.Id(), *sub.ParentId)

	require.NoError(t, w.CompleteTask(sign.Id(), map[string]any{"signed": true}))
	require.NoError(t, w.DoEngineSteps(t.Context()))
	assert.True(t, w.IsCompleted())
	assert.Equal(t, runtime.TaskStateCompleted, call.State())
	assert.Equal(t, true, call.Data()["signed"])
}

func TestParallelMultiInstance(t *testing.T) {
	w := newWorkflowFor(t, "signing.yaml", map[string]any{"approvers": []any{"alice", "bob"}}, true)
	require.NoError(t, w.DoEngineSteps(t.Context()))

	parent := taskBySpec(t, w, "sign", runtime.TaskStateStarted)
	instances := w.Tasks(runtime.TaskStateReady)
	require.Len(t, instances, 2)
	assert.Equal(t, "alice", instances[0].Data()["approver"])
	assert.Equal(t, "bob", instances[1].Data()["approver"])
	for i, inst := range instances {
		assert.Equal(t, i, inst.internal[runtime.InternalInstanceMarker])
		assert.Same(t, parent, inst.parent)
	}

	require.NoError(t, w.CompleteTask(instances[0].Id(), map[string]any{"alice_signed": true}))
	require.NoError(t, w.DoEngineSteps(t.Context()))
	assert.Equal(t, runtime.TaskStateStarted, parent.State())

	require.NoError(t, w.CompleteTask(instances[1].Id(), map[string]any{"bob_signed": true}))
	require.NoError(t, w.DoEngineSteps(t.Context()))
	assert.True(t, w.IsCompleted())
	assert.Equal(t, true, parent.Data()["alice_signed"])
	assert.Equal(t, true, parent.Data()["bob_signed"])
}

func TestSequentialMultiInstance(t *testing.T) {
	spec := loadSpec(t, "signing.yaml")
	sign, _ := spec.Spec.Task("sign")
	sign.MultiInstance.Sequential = true
	w, err := New(spec, map[string]any{"approvers": []any{"alice", "bob"}}, engineOptions(t, false)...)
	require.NoError(t, err)
	require.NoError(t, w.DoEngineSteps(t.Context()))

	ready := w.Tasks(runtime.TaskStateReady)
	require.Len(t, ready, 1)
	assert.Equal(t, "alice", ready[0].Data()["approver"])
	require.NoError(t, w.CompleteTask(ready[0].Id(), nil))
	require.NoError(t, w.DoEngineSteps(t.Context()))

	ready = w.Tasks(runtime.TaskStateReady)
	require.Len(t, ready, 1)
	assert.Equal(t, "bob", ready[0].Data()["approver"])
	require.NoError(t, w.CompleteTask(ready[0].Id(), nil))
	require.NoError(t, w.DoEngineSteps(t.Context()))
	assert.True(t, w.IsCompleted())
}

func TestResetToCompletedTask(t *testing.T) {
	w := newWorkflowFor(t, "approval.yaml", map[string]any{"amount": 1}, true)
	require.NoError(t, w.DoEngineSteps(t.Context()))
	approve := taskBySpec(t, w, "approve", runtime.TaskStateReady)
	require.NoError(t, w.CompleteTask(approve.Id(), map[string]any{"approved": true}))
	require.NoError(t, w.DoEngineSteps(t.Context()))
	require.True(t, w.IsCompleted())

	review := taskBySpec(t, w, "review", runtime.TaskStateCompleted)
	end := taskBySpec(t, w, "end", runtime.TaskStateCompleted)
	discarded, err := w.ResetToTask(review.Id())
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{approve.Id(), end.Id()}, discarded)
	assert.False(t, w.IsCompleted())
	assert.Equal(t, runtime.TaskStateCompleted, review.State())
	assert.Empty(t, review.children)

	snap := w.Snapshot(runtime.TaskStateAnyMask)
	_, approvedKept := snap.Processes[0].Data["approved"]
	assert.False(t, approvedKept)

	require.NoError(t, w.DoEngineSteps(t.Context()))
	again := taskBySpec(t, w, "approve", runtime.TaskStateReady)
	assert.NotEqual(t, approve.Id(), again.Id())
}

func TestResetInsideSubprocess(t *testing.T) {
	w := newWorkflowFor(t, "call.yaml", nil, false)
	require.NoError(t, w.DoEngineSteps(t.Context()))
	sign := taskBySpec(t, w, "sign", runtime.TaskStateReady)
	require.NoError(t, w.CompleteTask(sign.Id(), nil))
	require.NoError(t, w.DoEngineSteps(t.Context()))
	require.True(t, w.IsCompleted())

	innerStart := taskBySpec(t, w, "inner_start", runtime.TaskStateCompleted)
	innerEnd := taskBySpec(t, w, "inner_end", runtime.TaskStateCompleted)
	end := taskBySpec(t, w, "end", runtime.TaskStateCompleted)
	call := taskBySpec(t, w, "call", runtime.TaskStateCompleted)

	discarded, err := w.ResetToTask(innerStart.Id())
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{sign.Id(), innerEnd.Id(), end.Id()}, discarded)
	assert.Equal(t, runtime.TaskStateStarted, call.State())
	assert.Len(t, w.Snapshot(runtime.TaskStateAnyMask).Processes, 2)

	require.NoError(t, w.DoEngineSteps(t.Context()))
	assert.Equal(t, []string{"sign"}, specNames(w.Tasks(runtime.TaskStateReady)))
}

func TestResetDropsSubprocessOfDiscardedTask(t *testing.T) {
	w := newWorkflowFor(t, "call.yaml", nil, false)
	require.NoError(t, w.DoEngineSteps(t.Context()))
	start := taskBySpec(t, w, "start", runtime.TaskStateCompleted)
	sign := taskBySpec(t, w, "sign", runtime.TaskStateReady)

	discarded, err := w.ResetToTask(start.Id())
	require.NoError(t, err)
	assert.Contains(t, discarded, sign.Id())
	assert.Len(t, w.Snapshot(runtime.TaskStateAnyMask).Processes, 1)
}

func TestResetToUnknownTask(t *testing.T) {
	w := newWorkflowFor(t, "approval.yaml", nil, false)
	_, err := w.ResetToTask(uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestCompleteTaskErrors(t *testing.T) {
	w := newWorkflowFor(t, "approval.yaml", map[string]any{"amount": 1}, false)
	require.NoError(t, w.DoEngineSteps(t.Context()))
	assert.ErrorIs(t, w.CompleteTask(uuid.New(), nil), ErrTaskNotFound)
	start := taskBySpec(t, w, "start", runtime.TaskStateCompleted)
	assert.ErrorIs(t, w.CompleteTask(start.Id(), nil), ErrTaskNotReady)
}

func TestCancel(t *testing.T) {
	w := newWorkflowFor(t, "approval.yaml", map[string]any{"amount": 1}, true)
	require.NoError(t, w.DoEngineSteps(t.Context()))
	approve := taskBySpec(t, w, "approve", runtime.TaskStateReady)
	end := taskBySpec(t, w, "end", runtime.TaskStateLikely)

	discarded := w.Cancel()
	assert.Equal(t, []uuid.UUID{end.Id()}, discarded)
	assert.Equal(t, runtime.TaskStateCancelled, approve.State())
	assert.Empty(t, w.Tasks(runtime.TaskStateNotFinishedMask))
}

func TestScriptErrorMarksTask(t *testing.T) {
	spec := loadSpec(t, "approval.yaml")
	review, _ := spec.Spec.Task("review")
	review.Script.Script = "throw new Error('no amount');"
	w, err := New(spec, nil, engineOptions(t, false)...)
	require.NoError(t, err)

	err = w.DoEngineSteps(t.Context())
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "review", taskErr.TaskSpec)
	assert.Equal(t, runtime.TaskStateError, taskBySpec(t, w, "review", runtime.TaskStateAnyMask).State())
	assert.False(t, w.IsCompleted())
}

func TestRestoreFromSnapshot(t *testing.T) {
	opts := engineOptions(t, true)
	w, err := New(loadSpec(t, "approval.yaml"), map[string]any{"amount": 3}, opts...)
	require.NoError(t, err)
	require.NoError(t, w.DoEngineSteps(t.Context()))
	approve := taskBySpec(t, w, "approve", runtime.TaskStateReady)
	end := taskBySpec(t, w, "end", runtime.TaskStateLikely)

	restored, err := Restore(w.Snapshot(runtime.TaskStateAnyMask), opts...)
	require.NoError(t, err)
	assert.Equal(t, w.Id(), restored.Id())
	assert.Equal(t, end.Id(), taskBySpec(t, restored, "end", runtime.TaskStateLikely).Id())

	require.NoError(t, restored.CompleteTask(approve.Id(), nil))
	require.NoError(t, restored.DoEngineSteps(t.Context()))
	assert.True(t, restored.IsCompleted())
}

func TestRestoreReExpandsResetTarget(t *testing.T) {
	opts := engineOptions(t, false)
	w, err := New(loadSpec(t, "call.yaml"), nil, opts...)
	require.NoError(t, err)
	require.NoError(t, w.DoEngineSteps(t.Context()))
	innerStart := taskBySpec(t, w, "inner_start", runtime.TaskStateCompleted)
	_, err = w.ResetToTask(innerStart.Id())
	require.NoError(t, err)

	restored, err := Restore(w.Snapshot(runtime.TaskStateAnyMask), opts...)
	require.NoError(t, err)
	assert.Empty(t, restored.Tasks(runtime.TaskStateReady))
	require.NoError(t, restored.DoEngineSteps(t.Context()))
	assert.Equal(t, []string{"sign"}, specNames(restored.Tasks(runtime.TaskStateReady)))
}

func TestRestoreRejectsDeferredSpec(t *testing.T) {
	w := newWorkflowFor(t, "call.yaml", nil, false)
	require.NoError(t, w.DoEngineSteps(t.Context()))
	snap := w.Snapshot(runtime.TaskStateAnyMask)
	spec := *snap.Spec
	spec.SubprocessSpecs = map[string]*runtime.ProcessSpec{"inner": nil}
	snap.Spec = &spec

	_, err := Restore(snap)
	assert.Error(t, err)
}
