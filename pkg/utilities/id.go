package utilities

import (
	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake IDs from a single node so that IDs produced
// in the same millisecond still differ by sequence number.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator builds a generator for nodeID. Out of range node IDs fall
// back to node 1.
func NewIDGenerator(nodeID int64) *IDGenerator {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		node, _ = snowflake.NewNode(1)
	}
	return &IDGenerator{node: node}
}

// Next returns the next snowflake ID as a decimal string.
func (g *IDGenerator) Next() string {
	return g.node.Generate().String()
}
