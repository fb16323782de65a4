package zenflake

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Node 0 is reserved for ids generated by tooling outside of a running processor.

var (
	// NodeBits holds the number of bits to use for Node
	// Remember, you have a total 22 bits to share between Node/Step
	NodeBits uint8 = 10

	// StepBits holds the number of bits to use for Step
	// Remember, you have a total 22 bits to share between Node/Step
	StepBits uint8 = 12

	// internal values of bwmarrin/snowflake
	nodeMax   int64 = -1 ^ (-1 << NodeBits)
	nodeMask        = nodeMax << StepBits
	nodeShift       = StepBits
)

// Generator hands out unique row ids for records created by one processor node.
type Generator struct {
	node *snowflake.Node
}

func NewGenerator(nodeId int64) (*Generator, error) {
	if nodeId < 0 || nodeId > nodeMax {
		return nil, fmt.Errorf("snowflake node id %d out of range [0, %d]", nodeId, nodeMax)
	}
	snowflake.NodeBits = NodeBits
	snowflake.StepBits = StepBits
	node, err := snowflake.NewNode(nodeId)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	return &Generator{node: node}, nil
}

func (g *Generator) Generate() int64 {
	return g.node.Generate().Int64()
}

func GetNodeMask() int64 {
	return nodeMask
}

// GetNodeId returns the id of the node that generated id.
func GetNodeId(id int64) int64 {
	return (id & GetNodeMask()) >> int64(nodeShift)
}
