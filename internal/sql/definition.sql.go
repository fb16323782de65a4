package sql

import (
	"context"
	"database/sql"
)

const findBpmnProcessDefinitionById = `-- name: FindBpmnProcessDefinitionById :one
SELECT id, bpmn_identifier, bpmn_name, single_process_hash, full_process_model_hash, properties_json, created_at
FROM bpmn_process_definition
WHERE id = ?
`

func (q *Queries) FindBpmnProcessDefinitionById(ctx context.Context, id int64) (BpmnProcessDefinition, error) {
	row := q.db.QueryRowContext(ctx, findBpmnProcessDefinitionById, id)
	var i BpmnProcessDefinition
	err := row.Scan(
		&i.ID,
		&i.BpmnIdentifier,
		&i.BpmnName,
		&i.SingleProcessHash,
		&i.FullProcessModelHash,
		&i.PropertiesJson,
		&i.CreatedAt,
	)
	return i, err
}

const findBpmnProcessDefinitionBySingleHash = `-- name: FindBpmnProcessDefinitionBySingleHash :one
SELECT id, bpmn_identifier, bpmn_name, single_process_hash, full_process_model_hash, properties_json, created_at
FROM bpmn_process_definition
WHERE single_process_hash = ? AND full_process_model_hash IS NULL
`

func (q *Queries) FindBpmnProcessDefinitionBySingleHash(ctx context.Context, singleProcessHash string) (BpmnProcessDefinition, error) {
	row := q.db.QueryRowContext(ctx, findBpmnProcessDefinitionBySingleHash, singleProcessHash)
	var i BpmnProcessDefinition
	err := row.Scan(
		&i.ID,
		&i.BpmnIdentifier,
		&i.BpmnName,
		&i.SingleProcessHash,
		&i.FullProcessModelHash,
		&i.PropertiesJson,
		&i.CreatedAt,
	)
	return i, err
}

const findBpmnProcessDefinitionByFullHash = `-- name: FindBpmnProcessDefinitionByFullHash :one
SELECT id, bpmn_identifier, bpmn_name, single_process_hash, full_process_model_hash, properties_json, created_at
FROM bpmn_process_definition
WHERE full_process_model_hash = ?
`

func (q *Queries) FindBpmnProcessDefinitionByFullHash(ctx context.Context, fullProcessModelHash string) (BpmnProcessDefinition, error) {
	row := q.db.QueryRowContext(ctx, findBpmnProcessDefinitionByFullHash, fullProcessModelHash)
	var i BpmnProcessDefinition
	err := row.Scan(
		&i.ID,
		&i.BpmnIdentifier,
		&i.BpmnName,
		&i.SingleProcessHash,
		&i.FullProcessModelHash,
		&i.PropertiesJson,
		&i.CreatedAt,
	)
	return i, err
}

const saveBpmnProcessDefinition = `-- name: SaveBpmnProcessDefinition :exec
INSERT INTO bpmn_process_definition
(id, bpmn_identifier, bpmn_name, single_process_hash, full_process_model_hash, properties_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
`

type SaveBpmnProcessDefinitionParams struct {
	ID                   int64          `json:"id"`
	BpmnIdentifier       string         `json:"bpmn_identifier"`
	BpmnName             string         `json:"bpmn_name"`
	SingleProcessHash    string         `json:"single_process_hash"`
	FullProcessModelHash sql.NullString `json:"full_process_model_hash"`
	PropertiesJson       []byte         `json:"properties_json"`
	CreatedAt            int64          `json:"created_at"`
}

func (q *Queries) SaveBpmnProcessDefinition(ctx context.Context, arg SaveBpmnProcessDefinitionParams) error {
	_, err := q.db.ExecContext(ctx, saveBpmnProcessDefinition,
		arg.ID,
		arg.BpmnIdentifier,
		arg.BpmnName,
		arg.SingleProcessHash,
		arg.FullProcessModelHash,
		arg.PropertiesJson,
		arg.CreatedAt,
	)
	return err
}

const findTaskDefinitions = `-- name: FindTaskDefinitions :many
SELECT id, bpmn_process_definition_id, bpmn_identifier, bpmn_name, typename, properties_json
FROM task_definition
WHERE bpmn_process_definition_id = ?
ORDER BY bpmn_identifier
`

func (q *Queries) FindTaskDefinitions(ctx context.Context, bpmnProcessDefinitionID int64) ([]TaskDefinition, error) {
	rows, err := q.db.QueryContext(ctx, findTaskDefinitions, bpmnProcessDefinitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TaskDefinition{}
	for rows.Next() {
		var i TaskDefinition
		if err := rows.Scan(
			&i.ID,
			&i.BpmnProcessDefinitionID,
			&i.BpmnIdentifier,
			&i.BpmnName,
			&i.Typename,
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

const saveTaskDefinition = `-- name: SaveTaskDefinition :exec
INSERT INTO task_definition
(id, bpmn_process_definition_id, bpmn_identifier, bpmn_name, typename, properties_json)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
`

type SaveTaskDefinitionParams struct {
	ID                      int64  `json:"id"`
	BpmnProcessDefinitionID int64  `json:"bpmn_process_definition_id"`
	BpmnIdentifier          string `json:"bpmn_identifier"`
	BpmnName                string `json:"bpmn_name"`
	Typename                string `json:"typename"`
	PropertiesJson          []byte `json:"properties_json"`
}

func (q *Queries) SaveTaskDefinition(ctx context.Context, arg SaveTaskDefinitionParams) error {
	_, err := q.db.ExecContext(ctx, saveTaskDefinition,
		arg.ID,
		arg.BpmnProcessDefinitionID,
		arg.BpmnIdentifier,
		arg.BpmnName,
		arg.Typename,
		arg.PropertiesJson,
	)
	return err
}

const findChildDefinitionIds = `-- name: FindChildDefinitionIds :many
SELECT child_id
FROM bpmn_process_definition_relationship
WHERE parent_id = ?
ORDER BY child_id
`

func (q *Queries) FindChildDefinitionIds(ctx context.Context, parentID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, findChildDefinitionIds, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []int64{}
	for rows.Next() {
		var child_id int64
		if err := rows.Scan(&child_id); err != nil {
			return nil, err
		}
		items = append(items, child_id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const saveBpmnProcessDefinitionRelationship = `-- name: SaveBpmnProcessDefinitionRelationship :exec
INSERT INTO bpmn_process_definition_relationship (parent_id, child_id)
VALUES (?, ?)
ON CONFLICT DO NOTHING
`

type SaveBpmnProcessDefinitionRelationshipParams struct {
	ParentID int64 `json:"parent_id"`
	ChildID  int64 `json:"child_id"`
}

func (q *Queries) SaveBpmnProcessDefinitionRelationship(ctx context.Context, arg SaveBpmnProcessDefinitionRelationshipParams) error {
	_, err := q.db.ExecContext(ctx, saveBpmnProcessDefinitionRelationship, arg.ParentID, arg.ChildID)
	return err
}
