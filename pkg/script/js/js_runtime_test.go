package js

import (
	"context"
	"testing"
	"time"

	"github.com/pbinitiative/zentask/internal/appcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuntime(t *testing.T) *JsRuntime {
	r, err := NewJsRuntime(t.Context(), 2, 1)
	require.NoError(t, err)
	return r
}

func TestRunScriptUpdatesData(t *testing.T) {
	r := newRuntime(t)
	input := map[string]any{"amount": 10}

	res, err := r.RunScript(t.Context(), "data.amount = data.amount * 2; data.approved = false;", input)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"amount": 20.0, "approved": false}, res)
	assert.Equal(t, map[string]any{"amount": 10}, input)
}

func TestRunScriptReturnsReplacement(t *testing.T) {
	r := newRuntime(t)
	res, err := r.RunScript(t.Context(), "return {total: data.items.length};", map[string]any{"items": []any{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": 3.0}, res)
}

func TestRunScriptNilData(t *testing.T) {
	r := newRuntime(t)
	res, err := r.RunScript(t.Context(), "data = {x: 1}; return data;", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1.0}, res)
}

func TestRunScriptSeesProcessInstanceId(t *testing.T) {
	r := newRuntime(t)
	ctx := appcontext.WithProcessInstanceId(t.Context(), 42)
	res, err := r.RunScript(ctx, "data.instance = processInstanceId;", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 42.0, res["instance"])
}

func TestRunScriptErrors(t *testing.T) {
	r := newRuntime(t)

	_, err := r.RunScript(t.Context(), "data.x = ;", map[string]any{})
	assert.ErrorContains(t, err, "failed to compile script")

	_, err = r.RunScript(t.Context(), "throw new Error('boom');", map[string]any{})
	assert.ErrorContains(t, err, "boom")

	_, err = r.RunScript(t.Context(), "return 5;", map[string]any{})
	assert.Error(t, err)
}

func TestRunScriptIsInterrupted(t *testing.T) {
	r := newRuntime(t)
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := r.RunScript(ctx, "while (true) {}", map[string]any{})
	require.Error(t, err)

	// the pool recovers a runner afterwards
	res, err := r.RunScript(t.Context(), "data.ok = true;", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, res["ok"])
}
