package sql

import (
	"context"
	"database/sql"
)

const findBpmnProcessById = `-- name: FindBpmnProcessById :one
SELECT id, guid, bpmn_process_definition_id, process_instance_id, top_level_process_id, direct_parent_process_id,
       json_data_hash, properties_json
FROM bpmn_process
WHERE id = ?
`

func (q *Queries) FindBpmnProcessById(ctx context.Context, id int64) (BpmnProcess, error) {
	row := q.db.QueryRowContext(ctx, findBpmnProcessById, id)
	var i BpmnProcess
	err := row.Scan(
		&i.ID,
		&i.Guid,
		&i.BpmnProcessDefinitionID,
		&i.ProcessInstanceID,
		&i.TopLevelProcessID,
		&i.DirectParentProcessID,
		&i.JsonDataHash,
		&i.PropertiesJson,
	)
	return i, err
}

const findBpmnProcessesByProcessInstanceId = `-- name: FindBpmnProcessesByProcessInstanceId :many
SELECT id, guid, bpmn_process_definition_id, process_instance_id, top_level_process_id, direct_parent_process_id,
       json_data_hash, properties_json
FROM bpmn_process
WHERE process_instance_id = ?
ORDER BY id
`

func (q *Queries) FindBpmnProcessesByProcessInstanceId(ctx context.Context, processInstanceID int64) ([]BpmnProcess, error) {
	rows, err := q.db.QueryContext(ctx, findBpmnProcessesByProcessInstanceId, processInstanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []BpmnProcess{}
	for rows.Next() {
		var i BpmnProcess
		if err := rows.Scan(
			&i.ID,
			&i.Guid,
			&i.BpmnProcessDefinitionID,
			&i.ProcessInstanceID,
			&i.TopLevelProcessID,
			&i.DirectParentProcessID,
			&i.JsonDataHash,
			&i.PropertiesJson,
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

const saveBpmnProcess = `-- name: SaveBpmnProcess :exec
INSERT INTO bpmn_process
(id, guid, bpmn_process_definition_id, process_instance_id, top_level_process_id, direct_parent_process_id,
 json_data_hash, properties_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    bpmn_process_definition_id = excluded.bpmn_process_definition_id,
    direct_parent_process_id = excluded.direct_parent_process_id,
    json_data_hash = excluded.json_data_hash,
    properties_json = excluded.properties_json
`

type SaveBpmnProcessParams struct {
	ID                      int64          `json:"id"`
	Guid                    sql.NullString `json:"guid"`
	BpmnProcessDefinitionID int64          `json:"bpmn_process_definition_id"`
	ProcessInstanceID       int64          `json:"process_instance_id"`
	TopLevelProcessID       int64          `json:"top_level_process_id"`
	DirectParentProcessID   sql.NullInt64  `json:"direct_parent_process_id"`
	JsonDataHash            string         `json:"json_data_hash"`
	PropertiesJson          []byte         `json:"properties_json"`
}

func (q *Queries) SaveBpmnProcess(ctx context.Context, arg SaveBpmnProcessParams) error {
	_, err := q.db.ExecContext(ctx, saveBpmnProcess,
		arg.ID,
		arg.Guid,
		arg.BpmnProcessDefinitionID,
		arg.ProcessInstanceID,
		arg.TopLevelProcessID,
		arg.DirectParentProcessID,
		arg.JsonDataHash,
		arg.PropertiesJson,
	)
	return err
}

const deleteBpmnProcesses = `-- name: DeleteBpmnProcesses :exec
DELETE FROM bpmn_process
WHERE id IN (SELECT value FROM json_each(?1))
`

// DeleteBpmnProcesses takes the ids as a json array
func (q *Queries) DeleteBpmnProcesses(ctx context.Context, ids string) error {
	_, err := q.db.ExecContext(ctx, deleteBpmnProcesses, ids)
	return err
}
