// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package processor

import (
	"errors"
	"fmt"

	"github.com/pbinitiative/zentask/pkg/storage"
)

var (
	// ErrNotAuthorized is returned when a user completes a human task they are not assigned to.
	ErrNotAuthorized = errors.New("user is not assigned to the task")
	// ErrInstanceNotActive is returned for operations on instances in a status that does not allow them.
	ErrInstanceNotActive = errors.New("process instance is not in a status allowing the operation")
)

type NotFoundError struct {
	Entity string
	Id     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Id)
}

func (e *NotFoundError) Unwrap() error {
	return storage.ErrNotFound
}

// LockContentionError is returned when the instance lock could not be taken within the lock timeout.
type LockContentionError struct {
	ProcessInstanceId int64
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("process instance %d is locked by another worker", e.ProcessInstanceId)
}

func (e *LockContentionError) Unwrap() error {
	return storage.ErrLocked
}

// ProcessInstanceError wraps failures of an operation on one instance. TaskGuid is empty
// when the failure is not bound to a task.
type ProcessInstanceError struct {
	ProcessInstanceId int64
	TaskGuid          string
	Err               error
}

func (e *ProcessInstanceError) Error() string {
	if e.TaskGuid != "" {
		return fmt.Sprintf("process instance %d, task %s: %s", e.ProcessInstanceId, e.TaskGuid, e.Err)
	}
	return fmt.Sprintf("process instance %d: %s", e.ProcessInstanceId, e.Err)
}

func (e *ProcessInstanceError) Unwrap() error {
	return e.Err
}

// wrapError leaves errors the caller maps on their own untouched.
func wrapError(processInstanceId int64, taskGuid string, err error) error {
	if err == nil {
		return nil
	}
	var notFound *NotFoundError
	var contention *LockContentionError
	var instanceErr *ProcessInstanceError
	if errors.As(err, &notFound) || errors.As(err, &contention) || errors.As(err, &instanceErr) {
		return err
	}
	return &ProcessInstanceError{ProcessInstanceId: processInstanceId, TaskGuid: taskGuid, Err: err}
}
