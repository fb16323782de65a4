package zenflake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeMask(t *testing.T) {
	nodeId := int64(4)
	gen, err := NewGenerator(nodeId)
	assert.NoError(t, err)

	id := gen.Generate()
	assert.Equal(t, nodeId, GetNodeId(id))
}

func TestGeneratedIdsAreUnique(t *testing.T) {
	gen, err := NewGenerator(1)
	assert.NoError(t, err)

	seen := make(map[int64]struct{})
	for range 1000 {
		id := gen.Generate()
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestNodeIdOutOfRange(t *testing.T) {
	_, err := NewGenerator(nodeMax + 1)
	assert.Error(t, err)
}
