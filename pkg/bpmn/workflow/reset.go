package workflow

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
)

// ResetToTask rewinds the workflow to the task with the given id and returns the ids of every
// discarded task.
//
// A completed target stays COMPLETED with the data it had at completion and is expanded again
// by the next engine step, an unfinished target becomes READY. All descendants of the target
// are discarded and the process data is restored to the target data. When the target lives in
// a sub-process the spawning task reverts to STARTED and loses its own descendants.
func (w *Workflow) ResetToTask(id uuid.UUID) ([]uuid.UUID, error) {
	t, ok := w.tasks[id]
	if !ok || t.state.IsPredicted() {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	var discarded []uuid.UUID
	for _, c := range slices.Clone(t.children) {
		discarded = append(discarded, w.removeSubtree(c)...)
	}
	if t.state != runtime.TaskStateCompleted {
		for _, p := range w.spawnedBy(t) {
			discarded = append(discarded, w.dropProcess(p)...)
		}
		w.setState(t, runtime.TaskStateReady)
	}
	t.expanded = false
	t.process.data = deepCopy(t.data)

	if t.isInstance() && t.parent != nil {
		discarded = append(discarded, w.rewindContainer(t.parent)...)
	}
	for p := t.process; p.spawner != nil; p = p.spawner.process {
		discarded = append(discarded, w.rewindContainer(p.spawner)...)
	}
	w.completed = false
	w.predictAll()
	return discarded, nil
}

// rewindContainer reverts a task that waits on nested work to STARTED and discards what
// followed it.
func (w *Workflow) rewindContainer(t *Task) []uuid.UUID {
	var discarded []uuid.UUID
	for _, c := range slices.Clone(t.children) {
		if !c.isInstance() {
			discarded = append(discarded, w.removeSubtree(c)...)
		}
	}
	w.setState(t, runtime.TaskStateStarted)
	t.expanded = false
	if t.isInstance() && t.parent != nil {
		discarded = append(discarded, w.rewindContainer(t.parent)...)
	}
	return discarded
}

// Cancel discards every FUTURE and predicted task and cancels the ones in progress. It returns
// the ids of the discarded tasks.
func (w *Workflow) Cancel() []uuid.UUID {
	var discarded []uuid.UUID
	for _, t := range w.orderedTasks() {
		if !w.alive(t) {
			continue
		}
		switch {
		case t.state.IsPredicted(), t.state == runtime.TaskStateFuture:
			discarded = append(discarded, w.removeSubtree(t)...)
		case t.state.Is(runtime.TaskStateReady | runtime.TaskStateWaiting | runtime.TaskStateStarted):
			w.setState(t, runtime.TaskStateCancelled)
		}
	}
	return discarded
}
