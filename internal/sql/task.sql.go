package sql

import (
	"context"
	"database/sql"
)

const findTaskByGuid = `-- name: FindTaskByGuid :one
SELECT id, guid, bpmn_process_id, process_instance_id, task_definition_id, state, properties_json, json_data_hash,
       start_in_seconds, end_in_seconds
FROM task
WHERE guid = ?
`

func (q *Queries) FindTaskByGuid(ctx context.Context, guid string) (Task, error) {
	row := q.db.QueryRowContext(ctx, findTaskByGuid, guid)
	var i Task
	err := row.Scan(
		&i.ID,
		&i.Guid,
		&i.BpmnProcessID,
		&i.ProcessInstanceID,
		&i.TaskDefinitionID,
		&i.State,
		&i.PropertiesJson,
		&i.JsonDataHash,
		&i.StartInSeconds,
		&i.EndInSeconds,
	)
	return i, err
}

const findTasksByProcessInstanceId = `-- name: FindTasksByProcessInstanceId :many
SELECT id, guid, bpmn_process_id, process_instance_id, task_definition_id, state, properties_json, json_data_hash,
       start_in_seconds, end_in_seconds
FROM task
WHERE process_instance_id = ?1 AND state IN (SELECT value FROM json_each(?2))
ORDER BY id
`

type FindTasksByProcessInstanceIdParams struct {
	ProcessInstanceID int64  `json:"process_instance_id"`
	States            string `json:"states"`
}

func (q *Queries) FindTasksByProcessInstanceId(ctx context.Context, arg FindTasksByProcessInstanceIdParams) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx, findTasksByProcessInstanceId, arg.ProcessInstanceID, arg.States)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Task{}
	for rows.Next() {
		var i Task
		if err := rows.Scan(
			&i.ID,
			&i.Guid,
			&i.BpmnProcessID,
			&i.ProcessInstanceID,
			&i.TaskDefinitionID,
			&i.State,
			&i.PropertiesJson,
			&i.JsonDataHash,
			&i.StartInSeconds,
			&i.EndInSeconds,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const saveTask = `-- name: SaveTask :exec
INSERT INTO task
(id, guid, bpmn_process_id, process_instance_id, task_definition_id, state, properties_json, json_data_hash,
 start_in_seconds, end_in_seconds)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (guid) DO UPDATE SET
    bpmn_process_id = excluded.bpmn_process_id,
    task_definition_id = excluded.task_definition_id,
    state = excluded.state,
    properties_json = excluded.properties_json,
    json_data_hash = excluded.json_data_hash,
    start_in_seconds = excluded.start_in_seconds,
    end_in_seconds = excluded.end_in_seconds
`

type SaveTaskParams struct {
	ID                int64           `json:"id"`
	Guid              string          `json:"guid"`
	BpmnProcessID     int64           `json:"bpmn_process_id"`
	ProcessInstanceID int64           `json:"process_instance_id"`
	TaskDefinitionID  int64           `json:"task_definition_id"`
	State             string          `json:"state"`
	PropertiesJson    []byte          `json:"properties_json"`
	JsonDataHash      string          `json:"json_data_hash"`
	StartInSeconds    sql.NullFloat64 `json:"start_in_seconds"`
	EndInSeconds      sql.NullFloat64 `json:"end_in_seconds"`
}

func (q *Queries) SaveTask(ctx context.Context, arg SaveTaskParams) error {
	_, err := q.db.ExecContext(ctx, saveTask,
		arg.ID,
		arg.Guid,
		arg.BpmnProcessID,
		arg.ProcessInstanceID,
		arg.TaskDefinitionID,
		arg.State,
		arg.PropertiesJson,
		arg.JsonDataHash,
		arg.StartInSeconds,
		arg.EndInSeconds,
	)
	return err
}

const deleteTasks = `-- name: DeleteTasks :exec
DELETE FROM task
WHERE guid IN (SELECT value FROM json_each(?1))
`

// DeleteTasks takes the guids as a json array, human tasks are removed by cascade
func (q *Queries) DeleteTasks(ctx context.Context, guids string) error {
	_, err := q.db.ExecContext(ctx, deleteTasks, guids)
	return err
}
