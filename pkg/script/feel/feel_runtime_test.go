package feel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnaryTest(t *testing.T) {
	r := NewFeelRuntime()
	vars := map[string]any{"amount": 150.0, "approved": true}

	ok, err := r.UnaryTest(t.Context(), "= amount > 100", vars)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.UnaryTest(t.Context(), "amount < 100", vars)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.UnaryTest(t.Context(), "approved", vars)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnaryTestRejectsNonBoolean(t *testing.T) {
	r := NewFeelRuntime()
	_, err := r.UnaryTest(t.Context(), "", nil)
	assert.Error(t, err)
}
