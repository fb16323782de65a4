package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentHashIgnoresMapOrder(t *testing.T) {
	a := map[string]any{"b": 2, "a": []any{"x", map[string]any{"z": true, "y": nil}}}
	b := map[string]any{"a": []any{"x", map[string]any{"y": nil, "z": true}}, "b": 2}

	hashA, dataA, err := ContentHash(a)
	assert.NoError(t, err)
	hashB, dataB, err := ContentHash(b)
	assert.NoError(t, err)

	assert.Equal(t, hashA, hashB)
	assert.Equal(t, dataA, dataB)
	assert.Equal(t, `{"a":["x",{"y":null,"z":true}],"b":2}`, string(dataA))
}

func TestContentHashDiffersOnValue(t *testing.T) {
	hashA, _, err := ContentHash(map[string]any{"a": 1})
	assert.NoError(t, err)
	hashB, _, err := ContentHash(map[string]any{"a": 2})
	assert.NoError(t, err)
	assert.NotEqual(t, hashA, hashB)
}

func TestIdFromHashIsStableAndPositive(t *testing.T) {
	hash := HashBytes([]byte("definition"))
	assert.Equal(t, IdFromHash(hash), IdFromHash(hash))
	assert.Greater(t, IdFromHash(hash), int64(0))
	assert.NotEqual(t, IdFromHash(hash), IdFromHash(HashBytes([]byte("other"))))
}
