package sql

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rqlite/rqlite/v8/command/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToParameters(t *testing.T) {
	params, err := ToParameters(
		"text",
		int64(7),
		1.5,
		true,
		[]byte("blob"),
		sql.NullInt64{},
		sql.NullString{String: "s", Valid: true},
		sql.NullFloat64{},
		nil,
	)
	require.NoError(t, err)
	require.Len(t, params, 9)
	assert.Equal(t, "text", params[0].GetS())
	assert.Equal(t, int64(7), params[1].GetI())
	assert.Equal(t, 1.5, params[2].GetD())
	assert.True(t, params[3].GetB())
	assert.Equal(t, []byte("blob"), params[4].GetY())
	assert.Nil(t, params[5].GetValue())
	assert.Equal(t, "s", params[6].GetS())
	assert.Nil(t, params[7].GetValue())
	assert.Nil(t, params[8].GetValue())

	_, err = ToParameters(struct{}{})
	assert.Error(t, err)
}

func TestScanRows(t *testing.T) {
	values := &proto.Values{Parameters: []*proto.Parameter{
		{Value: &proto.Parameter_I{I: 1}},
		{Value: &proto.Parameter_S{S: "guid"}},
		nil,
		{Value: &proto.Parameter_D{D: 2.5}},
		{Value: &proto.Parameter_Y{Y: []byte(`{}`)}},
		{Value: &proto.Parameter_I{I: 1}},
	}}
	rows := ConstructRows(context.Background(), []string{"id", "guid", "parent", "start", "props", "completed"}, []*proto.Values{values})

	var (
		id        int64
		guid      string
		parent    sql.NullInt64
		start     sql.NullFloat64
		props     []byte
		completed bool
	)
	assert.True(t, rows.Next())
	require.NoError(t, rows.Scan(&id, &guid, &parent, &start, &props, &completed))
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "guid", guid)
	assert.False(t, parent.Valid)
	assert.Equal(t, sql.NullFloat64{Float64: 2.5, Valid: true}, start)
	assert.Equal(t, []byte(`{}`), props)
	assert.True(t, completed)
	assert.False(t, rows.Next())

	assert.Error(t, rows.Scan(&id))
}

func TestRowWithoutValues(t *testing.T) {
	row := ConstructRow(context.Background(), []string{"id"}, nil, nil)
	var id int64
	assert.ErrorIs(t, row.Scan(&id), sql.ErrNoRows)
}

func TestJsonList(t *testing.T) {
	assert.Equal(t, `["READY","STARTED"]`, JsonList([]string{"READY", "STARTED"}))
	assert.Equal(t, `[]`, JsonList[int64](nil))
}

func TestGetMigrations(t *testing.T) {
	migrations, err := GetMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Contains(t, migrations[0], "CREATE TABLE IF NOT EXISTS task")
}
