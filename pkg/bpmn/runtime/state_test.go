package runtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStateMasks(t *testing.T) {
	assert.True(t, TaskStateLikely.IsPredicted())
	assert.False(t, TaskStateFuture.IsPredicted())
	assert.True(t, TaskStateCancelled.IsFinished())
	assert.False(t, TaskStateStarted.IsFinished())
	assert.False(t, TaskStateFuture.IsReached())
	assert.True(t, TaskStateWaiting.IsReached())
	assert.False(t, TaskStateMaybe.Is(TaskStateDefiniteMask))
	assert.True(t, TaskStateError.Is(TaskStateDefiniteMask))
}

func TestTaskStateStates(t *testing.T) {
	assert.Equal(t, []TaskState{TaskStateMaybe, TaskStateLikely}, TaskStatePredictedMask.States())
	assert.Len(t, TaskStateAnyMask.States(), 9)
	assert.Empty(t, TaskState(0).States())
}

func TestTaskStateText(t *testing.T) {
	for _, state := range TaskStateAnyMask.States() {
		parsed, err := ParseTaskState(state.String())
		require.NoError(t, err)
		assert.Equal(t, state, parsed)
	}

	parsed, err := ParseTaskState("ready")
	assert.NoError(t, err)
	assert.Equal(t, TaskStateReady, parsed)

	_, err = ParseTaskState("DONE")
	assert.Error(t, err)

	data, err := json.Marshal(map[string]TaskState{"state": TaskStateCompleted})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"state":"COMPLETED"}`, string(data))
}
