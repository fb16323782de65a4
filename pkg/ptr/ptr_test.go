package ptr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqual(t *testing.T) {
	assert.True(t, Equal[int64](nil, nil))
	assert.False(t, Equal(To(int64(1)), nil))
	assert.False(t, Equal(nil, To(int64(1))))
	assert.True(t, Equal(To(int64(1)), To(int64(1))))
	assert.False(t, Equal(To(1.5), To(2.5)))
}

func TestDeref(t *testing.T) {
	assert.Equal(t, "x", Deref(To("x"), "def"))
	assert.Equal(t, "def", Deref[string](nil, "def"))
}
