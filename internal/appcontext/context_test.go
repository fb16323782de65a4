package appcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessInstanceId(t *testing.T) {
	ctx := WithProcessInstanceId(context.Background(), 42)

	valFromCtx, found := ProcessInstanceIdFromContext(ctx)
	assert.True(t, found)
	assert.Equal(t, int64(42), valFromCtx)

	valFromCtx, found = ProcessInstanceIdFromContext(context.Background())
	assert.False(t, found)
	assert.Equal(t, int64(0), valFromCtx)
}

func TestWorkerId(t *testing.T) {
	ctx := WithWorkerId(context.Background(), "worker-1")

	valFromCtx, found := WorkerIdFromContext(ctx)
	assert.True(t, found)
	assert.Equal(t, "worker-1", valFromCtx)

	_, found = WorkerIdFromContext(context.Background())
	assert.False(t, found)
}
