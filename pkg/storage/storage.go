// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrLocked is returned when a process instance is held by another worker.
	ErrLocked = errors.New("process instance is locked")
)

// Storage is the interface for reading and writing the task model of process instances.
//
// Methods that are expected to return exactly one match MUST return ErrNotFound when the result does not exist
type Storage interface {
	DefinitionStorageReader
	DefinitionStorageWriter
	JsonDataStorageReader
	JsonDataStorageWriter
	ProcessInstanceStorageReader
	ProcessInstanceStorageWriter
	BpmnProcessStorageReader
	BpmnProcessStorageWriter
	TaskStorageReader
	TaskStorageWriter
	HumanTaskStorageReader
	HumanTaskStorageWriter
	IdentityStorageReader
	IdentityStorageWriter
	EventStorageReader
	EventStorageWriter
	ProcessInstanceQueue

	GenerateId() int64
	NewBatch() Batch
}

// Batch collects writes and applies them atomically on Flush. Writes are applied in the
// order in which they were added.
type Batch interface {
	DefinitionStorageWriter
	JsonDataStorageWriter
	ProcessInstanceStorageWriter
	BpmnProcessStorageWriter
	TaskStorageWriter
	HumanTaskStorageWriter
	EventStorageWriter
	GroupStorageWriter

	// AddPostFlushAction registers a function called after a successful flush
	AddPostFlushAction(ctx context.Context, action func())

	// Flush will write the batch into the storage in one transaction and prepares the batch for new statements
	Flush(ctx context.Context) error
}

type DefinitionStorageReader interface {
	FindBpmnProcessDefinitionById(ctx context.Context, id int64) (runtime.BpmnProcessDefinition, error)

	// FindBpmnProcessDefinitionBySingleHash finds the shared definition of a sub-process. Root
	// definitions carry a full model hash and are only found by FindBpmnProcessDefinitionByFullHash.
	FindBpmnProcessDefinitionBySingleHash(ctx context.Context, hash string) (runtime.BpmnProcessDefinition, error)

	FindBpmnProcessDefinitionByFullHash(ctx context.Context, hash string) (runtime.BpmnProcessDefinition, error)

	// FindTaskDefinitions returns all task definitions of a process definition ordered by identifier
	FindTaskDefinitions(ctx context.Context, bpmnProcessDefinitionId int64) ([]runtime.TaskDefinition, error)

	// FindChildDefinitionIds returns ids of definitions related to parentId as children
	FindChildDefinitionIds(ctx context.Context, parentId int64) ([]int64, error)
}

type DefinitionStorageWriter interface {
	// SaveBpmnProcessDefinition inserts the definition unless a row with the same full model hash, or
	// for definitions without one the same single hash, exists
	SaveBpmnProcessDefinition(ctx context.Context, definition runtime.BpmnProcessDefinition) error

	// SaveTaskDefinition inserts the task definition unless it already exists
	SaveTaskDefinition(ctx context.Context, definition runtime.TaskDefinition) error

	SaveBpmnProcessDefinitionRelationship(ctx context.Context, relationship runtime.BpmnProcessDefinitionRelationship) error
}

type JsonDataStorageReader interface {
	FindJsonData(ctx context.Context, hash string) (runtime.JsonData, error)
}

type JsonDataStorageWriter interface {
	// SaveJsonData inserts the data unless a row with the same hash exists
	SaveJsonData(ctx context.Context, data runtime.JsonData) error
}

type ProcessInstanceStorageReader interface {
	FindProcessInstanceById(ctx context.Context, id int64) (runtime.ProcessInstance, error)

	FindProcessInstancesByStatus(ctx context.Context, statuses ...runtime.ProcessInstanceStatus) ([]runtime.ProcessInstance, error)
}

type ProcessInstanceStorageWriter interface {
	// SaveProcessInstance persists the instance
	// and potentially overwrites prior data stored with given id
	SaveProcessInstance(ctx context.Context, instance runtime.ProcessInstance) error
}

type BpmnProcessStorageReader interface {
	FindBpmnProcessById(ctx context.Context, id int64) (runtime.BpmnProcess, error)

	FindBpmnProcessesByProcessInstanceId(ctx context.Context, processInstanceId int64) ([]runtime.BpmnProcess, error)
}

type BpmnProcessStorageWriter interface {
	// SaveBpmnProcess persists the bpmn process
	// and potentially overwrites prior data stored with given id
	SaveBpmnProcess(ctx context.Context, process runtime.BpmnProcess) error

	DeleteBpmnProcesses(ctx context.Context, ids ...int64) error
}

type TaskStorageReader interface {
	FindTaskByGuid(ctx context.Context, guid string) (runtime.Task, error)

	// FindTasksByProcessInstanceId returns tasks of the instance whose state matches mask
	FindTasksByProcessInstanceId(ctx context.Context, processInstanceId int64, mask runtime.TaskState) ([]runtime.Task, error)
}

type TaskStorageWriter interface {
	// SaveTask persists the task
	// and potentially overwrites prior data stored with given guid, the id of an existing row is kept
	SaveTask(ctx context.Context, task runtime.Task) error

	// DeleteTasks removes tasks and the human tasks layered over them
	DeleteTasks(ctx context.Context, guids ...string) error
}

type HumanTaskStorageReader interface {
	FindOpenHumanTaskByTaskGuid(ctx context.Context, taskGuid string) (runtime.HumanTask, error)

	FindHumanTasksByProcessInstanceId(ctx context.Context, processInstanceId int64) ([]runtime.HumanTask, error)

	FindOpenHumanTasksByLaneAssignmentId(ctx context.Context, groupId int64) ([]runtime.HumanTask, error)

	FindHumanTaskUsers(ctx context.Context, humanTaskId int64) ([]runtime.HumanTaskUser, error)
}

type HumanTaskStorageWriter interface {
	// SaveHumanTask persists the human task
	// and potentially overwrites prior data stored with given id
	SaveHumanTask(ctx context.Context, task runtime.HumanTask) error

	// SaveHumanTaskUser adds the user to the human task unless already assigned
	SaveHumanTaskUser(ctx context.Context, user runtime.HumanTaskUser) error
}

type IdentityStorageReader interface {
	FindUserById(ctx context.Context, id int64) (runtime.User, error)

	FindUserByUsername(ctx context.Context, username string) (runtime.User, error)

	FindGroupByIdentifier(ctx context.Context, identifier string) (runtime.Group, error)

	FindGroupMemberIds(ctx context.Context, groupId int64) ([]int64, error)
}

// IdentityStorageWriter is not part of Batch, identities are shared by all instances and
// written immediately.
type IdentityStorageWriter interface {
	SaveUser(ctx context.Context, user runtime.User) error
	GroupStorageWriter
	AddUserToGroup(ctx context.Context, userId int64, groupId int64) error
}

// GroupStorageWriter is also part of Batch. Lane groups created while syncing human tasks
// are staged with the human tasks bound to them.
type GroupStorageWriter interface {
	// SaveGroup inserts the group unless a group with the same identifier exists
	SaveGroup(ctx context.Context, group runtime.Group) error
}

type EventStorageReader interface {
	// FindProcessInstanceEvents returns events of the instance ordered by timestamp
	FindProcessInstanceEvents(ctx context.Context, processInstanceId int64) ([]runtime.ProcessInstanceEvent, error)

	FindProcessInstanceErrorDetails(ctx context.Context, eventId int64) ([]runtime.ProcessInstanceErrorDetail, error)
}

type EventStorageWriter interface {
	SaveProcessInstanceEvent(ctx context.Context, event runtime.ProcessInstanceEvent) error

	SaveProcessInstanceErrorDetail(ctx context.Context, detail runtime.ProcessInstanceErrorDetail) error
}

// ProcessInstanceQueue is the advisory lock taken before an instance is advanced.
type ProcessInstanceQueue interface {
	// TryLockProcessInstance takes the lock for lockedBy if it is free or was taken before staleBefore.
	// It returns false when another holder owns the lock.
	TryLockProcessInstance(ctx context.Context, processInstanceId int64, lockedBy string, now time.Time, staleBefore time.Time) (bool, error)

	UnlockProcessInstance(ctx context.Context, processInstanceId int64, lockedBy string) error
}
