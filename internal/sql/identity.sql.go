package sql

import (
	"context"
)

const findUserById = `-- name: FindUserById :one
SELECT id, username, display_name, email, created_at
FROM user_account
WHERE id = ?
`

func (q *Queries) FindUserById(ctx context.Context, id int64) (UserAccount, error) {
	row := q.db.QueryRowContext(ctx, findUserById, id)
	var i UserAccount
	err := row.Scan(&i.ID, &i.Username, &i.DisplayName, &i.Email, &i.CreatedAt)
	return i, err
}

const findUserByUsername = `-- name: FindUserByUsername :one
SELECT id, username, display_name, email, created_at
FROM user_account
WHERE username = ?
`

func (q *Queries) FindUserByUsername(ctx context.Context, username string) (UserAccount, error) {
	row := q.db.QueryRowContext(ctx, findUserByUsername, username)
	var i UserAccount
	err := row.Scan(&i.ID, &i.Username, &i.DisplayName, &i.Email, &i.CreatedAt)
	return i, err
}

const saveUser = `-- name: SaveUser :exec
INSERT INTO user_account (id, username, display_name, email, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    username = excluded.username,
    display_name = excluded.display_name,
    email = excluded.email
`

type SaveUserParams struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	CreatedAt   int64  `json:"created_at"`
}

func (q *Queries) SaveUser(ctx context.Context, arg SaveUserParams) error {
	_, err := q.db.ExecContext(ctx, saveUser, arg.ID, arg.Username, arg.DisplayName, arg.Email, arg.CreatedAt)
	return err
}

const findGroupByIdentifier = `-- name: FindGroupByIdentifier :one
SELECT id, identifier, name
FROM user_group
WHERE identifier = ?
`

func (q *Queries) FindGroupByIdentifier(ctx context.Context, identifier string) (UserGroup, error) {
	row := q.db.QueryRowContext(ctx, findGroupByIdentifier, identifier)
	var i UserGroup
	err := row.Scan(&i.ID, &i.Identifier, &i.Name)
	return i, err
}

const saveGroup = `-- name: SaveGroup :exec
INSERT INTO user_group (id, identifier, name)
VALUES (?, ?, ?)
ON CONFLICT DO NOTHING
`

type SaveGroupParams struct {
	ID         int64  `json:"id"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

func (q *Queries) SaveGroup(ctx context.Context, arg SaveGroupParams) error {
	_, err := q.db.ExecContext(ctx, saveGroup, arg.ID, arg.Identifier, arg.Name)
	return err
}

const findGroupMemberIds = `-- name: FindGroupMemberIds :many
SELECT user_id
FROM user_group_assignment
WHERE group_id = ?
ORDER BY user_id
`

func (q *Queries) FindGroupMemberIds(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, findGroupMemberIds, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []int64{}
	for rows.Next() {
		var user_id int64
		if err := rows.Scan(&user_id); err != nil {
			return nil, err
		}
		items = append(items, user_id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const addUserToGroup = `-- name: AddUserToGroup :exec
INSERT INTO user_group_assignment (user_id, group_id)
VALUES (?, ?)
ON CONFLICT DO NOTHING
`

type AddUserToGroupParams struct {
	UserID  int64 `json:"user_id"`
	GroupID int64 `json:"group_id"`
}

func (q *Queries) AddUserToGroup(ctx context.Context, arg AddUserToGroupParams) error {
	_, err := q.db.ExecContext(ctx, addUserToGroup, arg.UserID, arg.GroupID)
	return err
}
