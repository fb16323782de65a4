package sql

import (
	"context"
	"database/sql"
)

const findProcessInstanceById = `-- name: FindProcessInstanceById :one
SELECT id, process_model_identifier, process_initiator_id, bpmn_process_definition_id, bpmn_process_id, status,
       start_in_seconds, end_in_seconds, created_at, updated_at
FROM process_instance
WHERE id = ?
`

func (q *Queries) FindProcessInstanceById(ctx context.Context, id int64) (ProcessInstance, error) {
	row := q.db.QueryRowContext(ctx, findProcessInstanceById, id)
	var i ProcessInstance
	err := row.Scan(
		&i.ID,
		&i.ProcessModelIdentifier,
		&i.ProcessInitiatorID,
		&i.BpmnProcessDefinitionID,
		&i.BpmnProcessID,
		&i.Status,
		&i.StartInSeconds,
		&i.EndInSeconds,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const findProcessInstancesByStatus = `-- name: FindProcessInstancesByStatus :many
SELECT id, process_model_identifier, process_initiator_id, bpmn_process_definition_id, bpmn_process_id, status,
       start_in_seconds, end_in_seconds, created_at, updated_at
FROM process_instance
WHERE status IN (SELECT value FROM json_each(?1))
ORDER BY id
`

// FindProcessInstancesByStatus takes the statuses as a json array
func (q *Queries) FindProcessInstancesByStatus(ctx context.Context, statuses string) ([]ProcessInstance, error) {
	rows, err := q.db.QueryContext(ctx, findProcessInstancesByStatus, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ProcessInstance{}
	for rows.Next() {
		var i ProcessInstance
		if err := rows.Scan(
			&i.ID,
			&i.ProcessModelIdentifier,
			&i.ProcessInitiatorID,
			&i.BpmnProcessDefinitionID,
			&i.BpmnProcessID,
			&i.Status,
			&i.StartInSeconds,
			&i.EndInSeconds,
			&i.CreatedAt,
			&i.UpdatedAt,
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

const saveProcessInstance = `-- name: SaveProcessInstance :exec
INSERT INTO process_instance
(id, process_model_identifier, process_initiator_id, bpmn_process_definition_id, bpmn_process_id, status,
 start_in_seconds, end_in_seconds, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    process_model_identifier = excluded.process_model_identifier,
    bpmn_process_definition_id = excluded.bpmn_process_definition_id,
    bpmn_process_id = excluded.bpmn_process_id,
    status = excluded.status,
    start_in_seconds = excluded.start_in_seconds,
    end_in_seconds = excluded.end_in_seconds,
    updated_at = excluded.updated_at
`

type SaveProcessInstanceParams struct {
	ID                      int64           `json:"id"`
	ProcessModelIdentifier  string          `json:"process_model_identifier"`
	ProcessInitiatorID      int64           `json:"process_initiator_id"`
	BpmnProcessDefinitionID sql.NullInt64   `json:"bpmn_process_definition_id"`
	BpmnProcessID           sql.NullInt64   `json:"bpmn_process_id"`
	Status                  string          `json:"status"`
	StartInSeconds          sql.NullFloat64 `json:"start_in_seconds"`
	EndInSeconds            sql.NullFloat64 `json:"end_in_seconds"`
	CreatedAt               int64           `json:"created_at"`
	UpdatedAt               int64           `json:"updated_at"`
}

func (q *Queries) SaveProcessInstance(ctx context.Context, arg SaveProcessInstanceParams) error {
	_, err := q.db.ExecContext(ctx, saveProcessInstance,
		arg.ID,
		arg.ProcessModelIdentifier,
		arg.ProcessInitiatorID,
		arg.BpmnProcessDefinitionID,
		arg.BpmnProcessID,
		arg.Status,
		arg.StartInSeconds,
		arg.EndInSeconds,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const lockProcessInstance = `-- name: LockProcessInstance :execresult
INSERT INTO process_instance_queue (process_instance_id, locked_by, locked_at_in_seconds)
VALUES (?1, ?2, ?3)
ON CONFLICT (process_instance_id) DO UPDATE SET
    locked_by = excluded.locked_by,
    locked_at_in_seconds = excluded.locked_at_in_seconds
WHERE process_instance_queue.locked_by IS NULL OR process_instance_queue.locked_at_in_seconds < ?4
`

type LockProcessInstanceParams struct {
	ProcessInstanceID  int64   `json:"process_instance_id"`
	LockedBy           string  `json:"locked_by"`
	LockedAtInSeconds  float64 `json:"locked_at_in_seconds"`
	StaleBeforeSeconds float64 `json:"stale_before_seconds"`
}

func (q *Queries) LockProcessInstance(ctx context.Context, arg LockProcessInstanceParams) (sql.Result, error) {
	return q.db.ExecContext(ctx, lockProcessInstance,
		arg.ProcessInstanceID,
		arg.LockedBy,
		arg.LockedAtInSeconds,
		arg.StaleBeforeSeconds,
	)
}

const unlockProcessInstance = `-- name: UnlockProcessInstance :exec
UPDATE process_instance_queue
SET locked_by = NULL, locked_at_in_seconds = NULL
WHERE process_instance_id = ? AND locked_by = ?
`

type UnlockProcessInstanceParams struct {
	ProcessInstanceID int64  `json:"process_instance_id"`
	LockedBy          string `json:"locked_by"`
}

func (q *Queries) UnlockProcessInstance(ctx context.Context, arg UnlockProcessInstanceParams) error {
	_, err := q.db.ExecContext(ctx, unlockProcessInstance, arg.ProcessInstanceID, arg.LockedBy)
	return err
}
