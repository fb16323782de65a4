package sql

import (
	"context"
	"database/sql"
)

const humanTaskColumns = `id, process_instance_id, task_guid, task_name, task_title, task_type, task_status, lane_name,
       lane_assignment_id, bpmn_process_identifier, completed, completed_by_user_id, created_at, updated_at`

const findOpenHumanTaskByTaskGuid = `-- name: FindOpenHumanTaskByTaskGuid :one
SELECT ` + humanTaskColumns + `
FROM human_task
WHERE task_guid = ? AND completed = 0
`

func scanHumanTask(scan func(dest ...any) error) (HumanTask, error) {
	var i HumanTask
	err := scan(
		&i.ID,
		&i.ProcessInstanceID,
		&i.TaskGuid,
		&i.TaskName,
		&i.TaskTitle,
		&i.TaskType,
		&i.TaskStatus,
		&i.LaneName,
		&i.LaneAssignmentID,
		&i.BpmnProcessIdentifier,
		&i.Completed,
		&i.CompletedByUserID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func (q *Queries) FindOpenHumanTaskByTaskGuid(ctx context.Context, taskGuid string) (HumanTask, error) {
	row := q.db.QueryRowContext(ctx, findOpenHumanTaskByTaskGuid, taskGuid)
	return scanHumanTask(row.Scan)
}

const findHumanTasksByProcessInstanceId = `-- name: FindHumanTasksByProcessInstanceId :many
SELECT ` + humanTaskColumns + `
FROM human_task
WHERE process_instance_id = ?
ORDER BY id
`

func (q *Queries) FindHumanTasksByProcessInstanceId(ctx context.Context, processInstanceID int64) ([]HumanTask, error) {
	return q.queryHumanTasks(ctx, findHumanTasksByProcessInstanceId, processInstanceID)
}

const findOpenHumanTasksByLaneAssignmentId = `-- name: FindOpenHumanTasksByLaneAssignmentId :many
SELECT ` + humanTaskColumns + `
FROM human_task
WHERE lane_assignment_id = ? AND completed = 0
ORDER BY id
`

func (q *Queries) FindOpenHumanTasksByLaneAssignmentId(ctx context.Context, laneAssignmentID int64) ([]HumanTask, error) {
	return q.queryHumanTasks(ctx, findOpenHumanTasksByLaneAssignmentId, laneAssignmentID)
}

func (q *Queries) queryHumanTasks(ctx context.Context, query string, args ...interface{}) ([]HumanTask, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []HumanTask{}
	for rows.Next() {
		i, err := scanHumanTask(rows.Scan)
		if err != nil {
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

const saveHumanTask = `-- name: SaveHumanTask :exec
INSERT INTO human_task
(` + humanTaskColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    task_name = excluded.task_name,
    task_title = excluded.task_title,
    task_type = excluded.task_type,
    task_status = excluded.task_status,
    lane_name = excluded.lane_name,
    lane_assignment_id = excluded.lane_assignment_id,
    bpmn_process_identifier = excluded.bpmn_process_identifier,
    completed = excluded.completed,
    completed_by_user_id = excluded.completed_by_user_id,
    updated_at = excluded.updated_at
`

type SaveHumanTaskParams struct {
	ID                    int64          `json:"id"`
	ProcessInstanceID     int64          `json:"process_instance_id"`
	TaskGuid              string         `json:"task_guid"`
	TaskName              string         `json:"task_name"`
	TaskTitle             string         `json:"task_title"`
	TaskType              string         `json:"task_type"`
	TaskStatus            string         `json:"task_status"`
	LaneName              sql.NullString `json:"lane_name"`
	LaneAssignmentID      sql.NullInt64  `json:"lane_assignment_id"`
	BpmnProcessIdentifier string         `json:"bpmn_process_identifier"`
	Completed             bool           `json:"completed"`
	CompletedByUserID     sql.NullInt64  `json:"completed_by_user_id"`
	CreatedAt             int64          `json:"created_at"`
	UpdatedAt             int64          `json:"updated_at"`
}

func (q *Queries) SaveHumanTask(ctx context.Context, arg SaveHumanTaskParams) error {
	_, err := q.db.ExecContext(ctx, saveHumanTask,
		arg.ID,
		arg.ProcessInstanceID,
		arg.TaskGuid,
		arg.TaskName,
		arg.TaskTitle,
		arg.TaskType,
		arg.TaskStatus,
		arg.LaneName,
		arg.LaneAssignmentID,
		arg.BpmnProcessIdentifier,
		arg.Completed,
		arg.CompletedByUserID,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const findHumanTaskUsers = `-- name: FindHumanTaskUsers :many
SELECT human_task_id, user_id, added_by
FROM human_task_user
WHERE human_task_id = ?
ORDER BY user_id
`

func (q *Queries) FindHumanTaskUsers(ctx context.Context, humanTaskID int64) ([]HumanTaskUser, error) {
	rows, err := q.db.QueryContext(ctx, findHumanTaskUsers, humanTaskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []HumanTaskUser{}
	for rows.Next() {
		var i HumanTaskUser
		if err := rows.Scan(&i.HumanTaskID, &i.UserID, &i.AddedBy); err != nil {
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

const saveHumanTaskUser = `-- name: SaveHumanTaskUser :exec
INSERT INTO human_task_user (human_task_id, user_id, added_by)
VALUES (?, ?, ?)
ON CONFLICT DO NOTHING
`

type SaveHumanTaskUserParams struct {
	HumanTaskID int64  `json:"human_task_id"`
	UserID      int64  `json:"user_id"`
	AddedBy     string `json:"added_by"`
}

func (q *Queries) SaveHumanTaskUser(ctx context.Context, arg SaveHumanTaskUserParams) error {
	_, err := q.db.ExecContext(ctx, saveHumanTaskUser, arg.HumanTaskID, arg.UserID, arg.AddedBy)
	return err
}
