package sql

import (
	"context"
)

const findJsonData = `-- name: FindJsonData :one
SELECT hash, data
FROM json_data
WHERE hash = ?
`

func (q *Queries) FindJsonData(ctx context.Context, hash string) (JsonDatum, error) {
	row := q.db.QueryRowContext(ctx, findJsonData, hash)
	var i JsonDatum
	err := row.Scan(&i.Hash, &i.Data)
	return i, err
}

const saveJsonData = `-- name: SaveJsonData :exec
INSERT INTO json_data (hash, data)
VALUES (?, ?)
ON CONFLICT (hash) DO NOTHING
`

type SaveJsonDataParams struct {
	Hash string `json:"hash"`
	Data []byte `json:"data"`
}

func (q *Queries) SaveJsonData(ctx context.Context, arg SaveJsonDataParams) error {
	_, err := q.db.ExecContext(ctx, saveJsonData, arg.Hash, arg.Data)
	return err
}
