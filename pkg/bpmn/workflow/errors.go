package workflow

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskNotReady = errors.New("task is not ready")
)

// TaskError is returned when executing a task fails. The task is left in the ERROR state.
type TaskError struct {
	TaskId   uuid.UUID
	TaskSpec string
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %s", e.TaskSpec, e.TaskId, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func (e *TaskError) FailedTaskId() uuid.UUID {
	return e.TaskId
}
