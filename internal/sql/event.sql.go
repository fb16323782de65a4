package sql

import (
	"context"
	"database/sql"
)

const findProcessInstanceEvents = `-- name: FindProcessInstanceEvents :many
SELECT id, process_instance_id, task_guid, event_type, user_id, timestamp
FROM process_instance_event
WHERE process_instance_id = ?
ORDER BY timestamp, id
`

func (q *Queries) FindProcessInstanceEvents(ctx context.Context, processInstanceID int64) ([]ProcessInstanceEvent, error) {
	rows, err := q.db.QueryContext(ctx, findProcessInstanceEvents, processInstanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ProcessInstanceEvent{}
	for rows.Next() {
		var i ProcessInstanceEvent
		if err := rows.Scan(
			&i.ID,
			&i.ProcessInstanceID,
			&i.TaskGuid,
			&i.EventType,
			&i.UserID,
			&i.Timestamp,
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

const saveProcessInstanceEvent = `-- name: SaveProcessInstanceEvent :exec
INSERT INTO process_instance_event (id, process_instance_id, task_guid, event_type, user_id, timestamp)
VALUES (?, ?, ?, ?, ?, ?)
`

type SaveProcessInstanceEventParams struct {
	ID                int64          `json:"id"`
	ProcessInstanceID int64          `json:"process_instance_id"`
	TaskGuid          sql.NullString `json:"task_guid"`
	EventType         string         `json:"event_type"`
	UserID            sql.NullInt64  `json:"user_id"`
	Timestamp         float64        `json:"timestamp"`
}

func (q *Queries) SaveProcessInstanceEvent(ctx context.Context, arg SaveProcessInstanceEventParams) error {
	_, err := q.db.ExecContext(ctx, saveProcessInstanceEvent,
		arg.ID,
		arg.ProcessInstanceID,
		arg.TaskGuid,
		arg.EventType,
		arg.UserID,
		arg.Timestamp,
	)
	return err
}

const findProcessInstanceErrorDetails = `-- name: FindProcessInstanceErrorDetails :many
SELECT id, process_instance_event_id, message, stacktrace
FROM process_instance_error_detail
WHERE process_instance_event_id = ?
ORDER BY id
`

func (q *Queries) FindProcessInstanceErrorDetails(ctx context.Context, processInstanceEventID int64) ([]ProcessInstanceErrorDetail, error) {
	rows, err := q.db.QueryContext(ctx, findProcessInstanceErrorDetails, processInstanceEventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ProcessInstanceErrorDetail{}
	for rows.Next() {
		var i ProcessInstanceErrorDetail
		if err := rows.Scan(&i.ID, &i.ProcessInstanceEventID, &i.Message, &i.Stacktrace); err != nil {
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

const saveProcessInstanceErrorDetail = `-- name: SaveProcessInstanceErrorDetail :exec
INSERT INTO process_instance_error_detail (id, process_instance_event_id, message, stacktrace)
VALUES (?, ?, ?, ?)
`

type SaveProcessInstanceErrorDetailParams struct {
	ID                     int64  `json:"id"`
	ProcessInstanceEventID int64  `json:"process_instance_event_id"`
	Message                string `json:"message"`
	Stacktrace             string `json:"stacktrace"`
}

func (q *Queries) SaveProcessInstanceErrorDetail(ctx context.Context, arg SaveProcessInstanceErrorDetailParams) error {
	_, err := q.db.ExecContext(ctx, saveProcessInstanceErrorDetail, arg.ID, arg.ProcessInstanceEventID, arg.Message, arg.Stacktrace)
	return err
}
