// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/pbinitiative/zentask/internal/sql"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage"
)

var _ storage.DefinitionStorageReader = &DB{}

func (rq *DB) FindBpmnProcessDefinitionById(ctx context.Context, id int64) (runtime.BpmnProcessDefinition, error) {
	if def, ok := rq.pdCache.Get(id); ok {
		return def, nil
	}
	row, err := rq.Queries.FindBpmnProcessDefinitionById(ctx, id)
	if err != nil {
		return runtime.BpmnProcessDefinition{}, notFound(err, "failed to find bpmn process definition %d", id)
	}
	def := toBpmnProcessDefinition(row)
	rq.pdCache.Add(id, def)
	return def, nil
}

func (rq *DB) FindBpmnProcessDefinitionBySingleHash(ctx context.Context, hash string) (runtime.BpmnProcessDefinition, error) {
	row, err := rq.Queries.FindBpmnProcessDefinitionBySingleHash(ctx, hash)
	if err != nil {
		return runtime.BpmnProcessDefinition{}, notFound(err, "failed to find bpmn process definition by hash %s", hash)
	}
	return toBpmnProcessDefinition(row), nil
}

func (rq *DB) FindBpmnProcessDefinitionByFullHash(ctx context.Context, hash string) (runtime.BpmnProcessDefinition, error) {
	row, err := rq.Queries.FindBpmnProcessDefinitionByFullHash(ctx, hash)
	if err != nil {
		return runtime.BpmnProcessDefinition{}, notFound(err, "failed to find bpmn process definition by full hash %s", hash)
	}
	return toBpmnProcessDefinition(row), nil
}

func (rq *DB) FindTaskDefinitions(ctx context.Context, bpmnProcessDefinitionId int64) ([]runtime.TaskDefinition, error) {
	if defs, ok := rq.tdCache.Get(bpmnProcessDefinitionId); ok {
		return defs, nil
	}
	rows, err := rq.Queries.FindTaskDefinitions(ctx, bpmnProcessDefinitionId)
	if err != nil {
		return nil, fmt.Errorf("failed to find task definitions of %d: %w", bpmnProcessDefinitionId, err)
	}
	res := make([]runtime.TaskDefinition, len(rows))
	for i, r := range rows {
		res[i] = toTaskDefinition(r)
	}
	// definitions are written once together with their tasks, an empty result may still be filled by a pending batch
	if len(res) > 0 {
		rq.tdCache.Add(bpmnProcessDefinitionId, res)
	}
	return res, nil
}

func (rq *DB) FindChildDefinitionIds(ctx context.Context, parentId int64) ([]int64, error) {
	ids, err := rq.Queries.FindChildDefinitionIds(ctx, parentId)
	if err != nil {
		return nil, fmt.Errorf("failed to find child definitions of %d: %w", parentId, err)
	}
	return ids, nil
}

var _ storage.DefinitionStorageWriter = &DB{}

func (rq *DB) SaveBpmnProcessDefinition(ctx context.Context, definition runtime.BpmnProcessDefinition) error {
	return SaveBpmnProcessDefinitionWith(ctx, rq.Queries, definition)
}

func SaveBpmnProcessDefinitionWith(ctx context.Context, db *sql.Queries, definition runtime.BpmnProcessDefinition) error {
	createdAt := definition.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	err := db.SaveBpmnProcessDefinition(ctx, sql.SaveBpmnProcessDefinitionParams{
		ID:                   definition.Id,
		BpmnIdentifier:       definition.BpmnIdentifier,
		BpmnName:             definition.BpmnName,
		SingleProcessHash:    definition.SingleProcessHash,
		FullProcessModelHash: sql.ToNullString(definition.FullProcessModelHash),
		PropertiesJson:       definition.Properties,
		CreatedAt:            millis(createdAt),
	})
	if err != nil {
		return fmt.Errorf("failed to save bpmn process definition %d: %w", definition.Id, err)
	}
	return nil
}

func (rq *DB) SaveTaskDefinition(ctx context.Context, definition runtime.TaskDefinition) error {
	return SaveTaskDefinitionWith(ctx, rq.Queries, definition)
}

func SaveTaskDefinitionWith(ctx context.Context, db *sql.Queries, definition runtime.TaskDefinition) error {
	err := db.SaveTaskDefinition(ctx, sql.SaveTaskDefinitionParams{
		ID:                      definition.Id,
		BpmnProcessDefinitionID: definition.BpmnProcessDefinitionId,
		BpmnIdentifier:          definition.BpmnIdentifier,
		BpmnName:                definition.BpmnName,
		Typename:                definition.Typename,
		PropertiesJson:          definition.Properties,
	})
	if err != nil {
		return fmt.Errorf("failed to save task definition %s: %w", definition.BpmnIdentifier, err)
	}
	return nil
}

func (rq *DB) SaveBpmnProcessDefinitionRelationship(ctx context.Context, relationship runtime.BpmnProcessDefinitionRelationship) error {
	return SaveBpmnProcessDefinitionRelationshipWith(ctx, rq.Queries, relationship)
}

func SaveBpmnProcessDefinitionRelationshipWith(ctx context.Context, db *sql.Queries, relationship runtime.BpmnProcessDefinitionRelationship) error {
	err := db.SaveBpmnProcessDefinitionRelationship(ctx, sql.SaveBpmnProcessDefinitionRelationshipParams{
		ParentID: relationship.ParentId,
		ChildID:  relationship.ChildId,
	})
	if err != nil {
		return fmt.Errorf("failed to save definition relationship %d -> %d: %w", relationship.ParentId, relationship.ChildId, err)
	}
	return nil
}

var _ storage.JsonDataStorageReader = &DB{}

func (rq *DB) FindJsonData(ctx context.Context, hash string) (runtime.JsonData, error) {
	row, err := rq.Queries.FindJsonData(ctx, hash)
	if err != nil {
		return runtime.JsonData{}, notFound(err, "failed to find json data %s", hash)
	}
	return runtime.JsonData{Hash: row.Hash, Data: row.Data}, nil
}

var _ storage.JsonDataStorageWriter = &DB{}

func (rq *DB) SaveJsonData(ctx context.Context, data runtime.JsonData) error {
	return SaveJsonDataWith(ctx, rq.Queries, data)
}

func SaveJsonDataWith(ctx context.Context, db *sql.Queries, data runtime.JsonData) error {
	err := db.SaveJsonData(ctx, sql.SaveJsonDataParams{Hash: data.Hash, Data: data.Data})
	if err != nil {
		return fmt.Errorf("failed to save json data %s: %w", data.Hash, err)
	}
	return nil
}

var _ storage.ProcessInstanceStorageReader = &DB{}

func (rq *DB) FindProcessInstanceById(ctx context.Context, id int64) (runtime.ProcessInstance, error) {
	row, err := rq.Queries.FindProcessInstanceById(ctx, id)
	if err != nil {
		return runtime.ProcessInstance{}, notFound(err, "failed to find process instance %d", id)
	}
	return toProcessInstance(row), nil
}

func (rq *DB) FindProcessInstancesByStatus(ctx context.Context, statuses ...runtime.ProcessInstanceStatus) ([]runtime.ProcessInstance, error) {
	rows, err := rq.Queries.FindProcessInstancesByStatus(ctx, sql.JsonList(statuses))
	if err != nil {
		return nil, fmt.Errorf("failed to find process instances by status %v: %w", statuses, err)
	}
	res := make([]runtime.ProcessInstance, len(rows))
	for i, r := range rows {
		res[i] = toProcessInstance(r)
	}
	return res, nil
}

var _ storage.ProcessInstanceStorageWriter = &DB{}

func (rq *DB) SaveProcessInstance(ctx context.Context, instance runtime.ProcessInstance) error {
	return SaveProcessInstanceWith(ctx, rq.Queries, instance)
}

func SaveProcessInstanceWith(ctx context.Context, db *sql.Queries, instance runtime.ProcessInstance) error {
	now := time.Now()
	createdAt := instance.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := instance.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	err := db.SaveProcessInstance(ctx, sql.SaveProcessInstanceParams{
		ID:                      instance.Id,
		ProcessModelIdentifier:  instance.ProcessModelIdentifier,
		ProcessInitiatorID:      instance.ProcessInitiatorId,
		BpmnProcessDefinitionID: sql.ToNullInt64(instance.BpmnProcessDefinitionId),
		BpmnProcessID:           sql.ToNullInt64(instance.BpmnProcessId),
		Status:                  string(instance.Status),
		StartInSeconds:          sql.ToNullFloat64(instance.StartInSeconds),
		EndInSeconds:            sql.ToNullFloat64(instance.EndInSeconds),
		CreatedAt:               millis(createdAt),
		UpdatedAt:               millis(updatedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to save process instance %d: %w", instance.Id, err)
	}
	return nil
}

var _ storage.BpmnProcessStorageReader = &DB{}

func (rq *DB) FindBpmnProcessById(ctx context.Context, id int64) (runtime.BpmnProcess, error) {
	row, err := rq.Queries.FindBpmnProcessById(ctx, id)
	if err != nil {
		return runtime.BpmnProcess{}, notFound(err, "failed to find bpmn process %d", id)
	}
	return toBpmnProcess(row), nil
}

func (rq *DB) FindBpmnProcessesByProcessInstanceId(ctx context.Context, processInstanceId int64) ([]runtime.BpmnProcess, error) {
	rows, err := rq.Queries.FindBpmnProcessesByProcessInstanceId(ctx, processInstanceId)
	if err != nil {
		return nil, fmt.Errorf("failed to find bpmn processes of instance %d: %w", processInstanceId, err)
	}
	res := make([]runtime.BpmnProcess, len(rows))
	for i, r := range rows {
		res[i] = toBpmnProcess(r)
	}
	return res, nil
}

var _ storage.BpmnProcessStorageWriter = &DB{}

func (rq *DB) SaveBpmnProcess(ctx context.Context, process runtime.BpmnProcess) error {
	return SaveBpmnProcessWith(ctx, rq.Queries, process)
}

func SaveBpmnProcessWith(ctx context.Context, db *sql.Queries, process runtime.BpmnProcess) error {
	var guid *string
	if process.Guid != "" {
		guid = &process.Guid
	}
	err := db.SaveBpmnProcess(ctx, sql.SaveBpmnProcessParams{
		ID:                      process.Id,
		Guid:                    sql.ToNullString(guid),
		BpmnProcessDefinitionID: process.BpmnProcessDefinitionId,
		ProcessInstanceID:       process.ProcessInstanceId,
		TopLevelProcessID:       process.TopLevelProcessId,
		DirectParentProcessID:   sql.ToNullInt64(process.DirectParentProcessId),
		JsonDataHash:            process.JsonDataHash,
		PropertiesJson:          process.Properties,
	})
	if err != nil {
		return fmt.Errorf("failed to save bpmn process %d: %w", process.Id, err)
	}
	return nil
}

func (rq *DB) DeleteBpmnProcesses(ctx context.Context, ids ...int64) error {
	return DeleteBpmnProcessesWith(ctx, rq.Queries, ids...)
}

func DeleteBpmnProcessesWith(ctx context.Context, db *sql.Queries, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := db.DeleteBpmnProcesses(ctx, sql.JsonList(ids)); err != nil {
		return fmt.Errorf("failed to delete bpmn processes %v: %w", ids, err)
	}
	return nil
}

var _ storage.TaskStorageReader = &DB{}

func (rq *DB) FindTaskByGuid(ctx context.Context, guid string) (runtime.Task, error) {
	row, err := rq.Queries.FindTaskByGuid(ctx, guid)
	if err != nil {
		return runtime.Task{}, notFound(err, "failed to find task %s", guid)
	}
	return toTask(row)
}

func (rq *DB) FindTasksByProcessInstanceId(ctx context.Context, processInstanceId int64, mask runtime.TaskState) ([]runtime.Task, error) {
	states := mask.States()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.String()
	}
	rows, err := rq.Queries.FindTasksByProcessInstanceId(ctx, sql.FindTasksByProcessInstanceIdParams{
		ProcessInstanceID: processInstanceId,
		States:            sql.JsonList(names),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find tasks of instance %d: %w", processInstanceId, err)
	}
	res := make([]runtime.Task, len(rows))
	for i, r := range rows {
		res[i], err = toTask(r)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

var _ storage.TaskStorageWriter = &DB{}

func (rq *DB) SaveTask(ctx context.Context, task runtime.Task) error {
	return SaveTaskWith(ctx, rq.Queries, task)
}

func SaveTaskWith(ctx context.Context, db *sql.Queries, task runtime.Task) error {
	err := db.SaveTask(ctx, sql.SaveTaskParams{
		ID:                task.Id,
		Guid:              task.Guid,
		BpmnProcessID:     task.BpmnProcessId,
		ProcessInstanceID: task.ProcessInstanceId,
		TaskDefinitionID:  task.TaskDefinitionId,
		State:             task.State.String(),
		PropertiesJson:    task.Properties,
		JsonDataHash:      task.JsonDataHash,
		StartInSeconds:    sql.ToNullFloat64(task.StartInSeconds),
		EndInSeconds:      sql.ToNullFloat64(task.EndInSeconds),
	})
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.Guid, err)
	}
	return nil
}

func (rq *DB) DeleteTasks(ctx context.Context, guids ...string) error {
	return DeleteTasksWith(ctx, rq.Queries, guids...)
}

// DeleteTasksWith removes the tasks, human tasks follow through the cascading foreign key.
func DeleteTasksWith(ctx context.Context, db *sql.Queries, guids ...string) error {
	if len(guids) == 0 {
		return nil
	}
	if err := db.DeleteTasks(ctx, sql.JsonList(guids)); err != nil {
		return fmt.Errorf("failed to delete %d tasks: %w", len(guids), err)
	}
	return nil
}

var _ storage.HumanTaskStorageReader = &DB{}

func (rq *DB) FindOpenHumanTaskByTaskGuid(ctx context.Context, taskGuid string) (runtime.HumanTask, error) {
	row, err := rq.Queries.FindOpenHumanTaskByTaskGuid(ctx, taskGuid)
	if err != nil {
		return runtime.HumanTask{}, notFound(err, "failed to find open human task for %s", taskGuid)
	}
	return toHumanTask(row), nil
}

func (rq *DB) FindHumanTasksByProcessInstanceId(ctx context.Context, processInstanceId int64) ([]runtime.HumanTask, error) {
	rows, err := rq.Queries.FindHumanTasksByProcessInstanceId(ctx, processInstanceId)
	if err != nil {
		return nil, fmt.Errorf("failed to find human tasks of instance %d: %w", processInstanceId, err)
	}
	return toHumanTasks(rows), nil
}

func (rq *DB) FindOpenHumanTasksByLaneAssignmentId(ctx context.Context, groupId int64) ([]runtime.HumanTask, error) {
	rows, err := rq.Queries.FindOpenHumanTasksByLaneAssignmentId(ctx, groupId)
	if err != nil {
		return nil, fmt.Errorf("failed to find open human tasks of group %d: %w", groupId, err)
	}
	return toHumanTasks(rows), nil
}

func (rq *DB) FindHumanTaskUsers(ctx context.Context, humanTaskId int64) ([]runtime.HumanTaskUser, error) {
	rows, err := rq.Queries.FindHumanTaskUsers(ctx, humanTaskId)
	if err != nil {
		return nil, fmt.Errorf("failed to find users of human task %d: %w", humanTaskId, err)
	}
	res := make([]runtime.HumanTaskUser, len(rows))
	for i, r := range rows {
		res[i] = runtime.HumanTaskUser{
			HumanTaskId: r.HumanTaskID,
			UserId:      r.UserID,
			AddedBy:     runtime.HumanTaskUserAddedBy(r.AddedBy),
		}
	}
	return res, nil
}

var _ storage.HumanTaskStorageWriter = &DB{}

func (rq *DB) SaveHumanTask(ctx context.Context, task runtime.HumanTask) error {
	return SaveHumanTaskWith(ctx, rq.Queries, task)
}

func SaveHumanTaskWith(ctx context.Context, db *sql.Queries, task runtime.HumanTask) error {
	now := time.Now()
	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := task.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	err := db.SaveHumanTask(ctx, sql.SaveHumanTaskParams{
		ID:                    task.Id,
		ProcessInstanceID:     task.ProcessInstanceId,
		TaskGuid:              task.TaskGuid,
		TaskName:              task.TaskName,
		TaskTitle:             task.TaskTitle,
		TaskType:              task.TaskType,
		TaskStatus:            task.TaskStatus,
		LaneName:              sql.ToNullString(task.LaneName),
		LaneAssignmentID:      sql.ToNullInt64(task.LaneAssignmentId),
		BpmnProcessIdentifier: task.BpmnProcessIdentifier,
		Completed:             task.Completed,
		CompletedByUserID:     sql.ToNullInt64(task.CompletedByUserId),
		CreatedAt:             millis(createdAt),
		UpdatedAt:             millis(updatedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to save human task %d: %w", task.Id, err)
	}
	return nil
}

func (rq *DB) SaveHumanTaskUser(ctx context.Context, user runtime.HumanTaskUser) error {
	return SaveHumanTaskUserWith(ctx, rq.Queries, user)
}

func SaveHumanTaskUserWith(ctx context.Context, db *sql.Queries, user runtime.HumanTaskUser) error {
	err := db.SaveHumanTaskUser(ctx, sql.SaveHumanTaskUserParams{
		HumanTaskID: user.HumanTaskId,
		UserID:      user.UserId,
		AddedBy:     string(user.AddedBy),
	})
	if err != nil {
		return fmt.Errorf("failed to add user %d to human task %d: %w", user.UserId, user.HumanTaskId, err)
	}
	return nil
}

var _ storage.IdentityStorageReader = &DB{}

func (rq *DB) FindUserById(ctx context.Context, id int64) (runtime.User, error) {
	row, err := rq.Queries.FindUserById(ctx, id)
	if err != nil {
		return runtime.User{}, notFound(err, "failed to find user %d", id)
	}
	return toUser(row), nil
}

func (rq *DB) FindUserByUsername(ctx context.Context, username string) (runtime.User, error) {
	row, err := rq.Queries.FindUserByUsername(ctx, username)
	if err != nil {
		return runtime.User{}, notFound(err, "failed to find user %s", username)
	}
	return toUser(row), nil
}

func (rq *DB) FindGroupByIdentifier(ctx context.Context, identifier string) (runtime.Group, error) {
	row, err := rq.Queries.FindGroupByIdentifier(ctx, identifier)
	if err != nil {
		return runtime.Group{}, notFound(err, "failed to find group %s", identifier)
	}
	return runtime.Group{Id: row.ID, Identifier: row.Identifier, Name: row.Name}, nil
}

func (rq *DB) FindGroupMemberIds(ctx context.Context, groupId int64) ([]int64, error) {
	ids, err := rq.Queries.FindGroupMemberIds(ctx, groupId)
	if err != nil {
		return nil, fmt.Errorf("failed to find members of group %d: %w", groupId, err)
	}
	return ids, nil
}

var _ storage.IdentityStorageWriter = &DB{}

func (rq *DB) SaveUser(ctx context.Context, user runtime.User) error {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	err := rq.Queries.SaveUser(ctx, sql.SaveUserParams{
		ID:          user.Id,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		CreatedAt:   millis(createdAt),
	})
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.Username, err)
	}
	return nil
}

func (rq *DB) SaveGroup(ctx context.Context, group runtime.Group) error {
	return SaveGroupWith(ctx, rq.Queries, group)
}

func SaveGroupWith(ctx context.Context, db *sql.Queries, group runtime.Group) error {
	err := db.SaveGroup(ctx, sql.SaveGroupParams{
		ID:         group.Id,
		Identifier: group.Identifier,
		Name:       group.Name,
	})
	if err != nil {
		return fmt.Errorf("failed to save group %s: %w", group.Identifier, err)
	}
	return nil
}

func (rq *DB) AddUserToGroup(ctx context.Context, userId int64, groupId int64) error {
	err := rq.Queries.AddUserToGroup(ctx, sql.AddUserToGroupParams{UserID: userId, GroupID: groupId})
	if err != nil {
		return fmt.Errorf("failed to add user %d to group %d: %w", userId, groupId, err)
	}
	return nil
}

var _ storage.EventStorageReader = &DB{}

func (rq *DB) FindProcessInstanceEvents(ctx context.Context, processInstanceId int64) ([]runtime.ProcessInstanceEvent, error) {
	rows, err := rq.Queries.FindProcessInstanceEvents(ctx, processInstanceId)
	if err != nil {
		return nil, fmt.Errorf("failed to find events of instance %d: %w", processInstanceId, err)
	}
	res := make([]runtime.ProcessInstanceEvent, len(rows))
	for i, r := range rows {
		res[i] = runtime.ProcessInstanceEvent{
			Id:                r.ID,
			ProcessInstanceId: r.ProcessInstanceID,
			TaskGuid:          sql.FromNullString(r.TaskGuid),
			EventType:         runtime.ProcessInstanceEventType(r.EventType),
			UserId:            sql.FromNullInt64(r.UserID),
			Timestamp:         r.Timestamp,
		}
	}
	return res, nil
}

func (rq *DB) FindProcessInstanceErrorDetails(ctx context.Context, eventId int64) ([]runtime.ProcessInstanceErrorDetail, error) {
	rows, err := rq.Queries.FindProcessInstanceErrorDetails(ctx, eventId)
	if err != nil {
		return nil, fmt.Errorf("failed to find error details of event %d: %w", eventId, err)
	}
	res := make([]runtime.ProcessInstanceErrorDetail, len(rows))
	for i, r := range rows {
		res[i] = runtime.ProcessInstanceErrorDetail{
			Id:                     r.ID,
			ProcessInstanceEventId: r.ProcessInstanceEventID,
			Message:                r.Message,
			Stacktrace:             r.Stacktrace,
		}
	}
	return res, nil
}

var _ storage.EventStorageWriter = &DB{}

func (rq *DB) SaveProcessInstanceEvent(ctx context.Context, event runtime.ProcessInstanceEvent) error {
	return SaveProcessInstanceEventWith(ctx, rq.Queries, event)
}

func SaveProcessInstanceEventWith(ctx context.Context, db *sql.Queries, event runtime.ProcessInstanceEvent) error {
	err := db.SaveProcessInstanceEvent(ctx, sql.SaveProcessInstanceEventParams{
		ID:                event.Id,
		ProcessInstanceID: event.ProcessInstanceId,
		TaskGuid:          sql.ToNullString(event.TaskGuid),
		EventType:         string(event.EventType),
		UserID:            sql.ToNullInt64(event.UserId),
		Timestamp:         event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to save event %s of instance %d: %w", event.EventType, event.ProcessInstanceId, err)
	}
	return nil
}

func (rq *DB) SaveProcessInstanceErrorDetail(ctx context.Context, detail runtime.ProcessInstanceErrorDetail) error {
	return SaveProcessInstanceErrorDetailWith(ctx, rq.Queries, detail)
}

func SaveProcessInstanceErrorDetailWith(ctx context.Context, db *sql.Queries, detail runtime.ProcessInstanceErrorDetail) error {
	err := db.SaveProcessInstanceErrorDetail(ctx, sql.SaveProcessInstanceErrorDetailParams{
		ID:                     detail.Id,
		ProcessInstanceEventID: detail.ProcessInstanceEventId,
		Message:                detail.Message,
		Stacktrace:             detail.Stacktrace,
	})
	if err != nil {
		return fmt.Errorf("failed to save error detail of event %d: %w", detail.ProcessInstanceEventId, err)
	}
	return nil
}

var _ storage.ProcessInstanceQueue = &DB{}

func (rq *DB) TryLockProcessInstance(ctx context.Context, processInstanceId int64, lockedBy string, now time.Time, staleBefore time.Time) (bool, error) {
	res, err := rq.Queries.LockProcessInstance(ctx, sql.LockProcessInstanceParams{
		ProcessInstanceID:  processInstanceId,
		LockedBy:           lockedBy,
		LockedAtInSeconds:  runtime.ToSeconds(now),
		StaleBeforeSeconds: runtime.ToSeconds(staleBefore),
	})
	if err != nil {
		return false, fmt.Errorf("failed to lock process instance %d: %w", processInstanceId, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lock result of process instance %d: %w", processInstanceId, err)
	}
	return affected > 0, nil
}

func (rq *DB) UnlockProcessInstance(ctx context.Context, processInstanceId int64, lockedBy string) error {
	err := rq.Queries.UnlockProcessInstance(ctx, sql.UnlockProcessInstanceParams{
		ProcessInstanceID: processInstanceId,
		LockedBy:          lockedBy,
	})
	if err != nil {
		return fmt.Errorf("failed to unlock process instance %d: %w", processInstanceId, err)
	}
	return nil
}
