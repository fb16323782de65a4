package persistence

import (
	"fmt"

	"github.com/pbinitiative/zentask/internal/sql"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
)

func toBpmnProcessDefinition(r sql.BpmnProcessDefinition) runtime.BpmnProcessDefinition {
	return runtime.BpmnProcessDefinition{
		Id:                   r.ID,
		BpmnIdentifier:       r.BpmnIdentifier,
		BpmnName:             r.BpmnName,
		SingleProcessHash:    r.SingleProcessHash,
		FullProcessModelHash: sql.FromNullString(r.FullProcessModelHash),
		Properties:           r.PropertiesJson,
		CreatedAt:            fromMillis(r.CreatedAt),
	}
}

func toTaskDefinition(r sql.TaskDefinition) runtime.TaskDefinition {
	return runtime.TaskDefinition{
		Id:                      r.ID,
		BpmnProcessDefinitionId: r.BpmnProcessDefinitionID,
		BpmnIdentifier:          r.BpmnIdentifier,
		BpmnName:                r.BpmnName,
		Typename:                r.Typename,
		Properties:              r.PropertiesJson,
	}
}

func toProcessInstance(r sql.ProcessInstance) runtime.ProcessInstance {
	return runtime.ProcessInstance{
		Id:                      r.ID,
		ProcessModelIdentifier:  r.ProcessModelIdentifier,
		ProcessInitiatorId:      r.ProcessInitiatorID,
		BpmnProcessDefinitionId: sql.FromNullInt64(r.BpmnProcessDefinitionID),
		BpmnProcessId:           sql.FromNullInt64(r.BpmnProcessID),
		Status:                  runtime.ProcessInstanceStatus(r.Status),
		StartInSeconds:          sql.FromNullFloat64(r.StartInSeconds),
		EndInSeconds:            sql.FromNullFloat64(r.EndInSeconds),
		CreatedAt:               fromMillis(r.CreatedAt),
		UpdatedAt:               fromMillis(r.UpdatedAt),
	}
}

func toBpmnProcess(r sql.BpmnProcess) runtime.BpmnProcess {
	return runtime.BpmnProcess{
		Id:                      r.ID,
		Guid:                    r.Guid.String,
		BpmnProcessDefinitionId: r.BpmnProcessDefinitionID,
		ProcessInstanceId:       r.ProcessInstanceID,
		TopLevelProcessId:       r.TopLevelProcessID,
		DirectParentProcessId:   sql.FromNullInt64(r.DirectParentProcessID),
		JsonDataHash:            r.JsonDataHash,
		Properties:              r.PropertiesJson,
	}
}

func toTask(r sql.Task) (runtime.Task, error) {
	state, err := runtime.ParseTaskState(r.State)
	if err != nil {
		return runtime.Task{}, fmt.Errorf("task %s: %w", r.Guid, err)
	}
	return runtime.Task{
		Id:                r.ID,
		Guid:              r.Guid,
		BpmnProcessId:     r.BpmnProcessID,
		ProcessInstanceId: r.ProcessInstanceID,
		TaskDefinitionId:  r.TaskDefinitionID,
		State:             state,
		Properties:        r.PropertiesJson,
		JsonDataHash:      r.JsonDataHash,
		StartInSeconds:    sql.FromNullFloat64(r.StartInSeconds),
		EndInSeconds:      sql.FromNullFloat64(r.EndInSeconds),
	}, nil
}

func toHumanTask(r sql.HumanTask) runtime.HumanTask {
	return runtime.HumanTask{
		Id:                    r.ID,
		ProcessInstanceId:     r.ProcessInstanceID,
		TaskGuid:              r.TaskGuid,
		TaskName:              r.TaskName,
		TaskTitle:             r.TaskTitle,
		TaskType:              r.TaskType,
		TaskStatus:            r.TaskStatus,
		LaneName:              sql.FromNullString(r.LaneName),
		LaneAssignmentId:      sql.FromNullInt64(r.LaneAssignmentID),
		BpmnProcessIdentifier: r.BpmnProcessIdentifier,
		Completed:             r.Completed,
		CompletedByUserId:     sql.FromNullInt64(r.CompletedByUserID),
		CreatedAt:             fromMillis(r.CreatedAt),
		UpdatedAt:             fromMillis(r.UpdatedAt),
	}
}

func toHumanTasks(rows []sql.HumanTask) []runtime.HumanTask {
	res := make([]runtime.HumanTask, len(rows))
	for i, r := range rows {
		res[i] = toHumanTask(r)
	}
	return res
}

func toUser(r sql.UserAccount) runtime.User {
	return runtime.User{
		Id:          r.ID,
		Username:    r.Username,
		DisplayName: r.DisplayName,
		Email:       r.Email,
		CreatedAt:   fromMillis(r.CreatedAt),
	}
}
