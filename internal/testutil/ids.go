package testutil

import (
	"fmt"
	"sync/atomic"
)

// FixedIDGenerator returns the same run identifier every time, so golden
// output does not depend on UUID generation.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a fixed generator. An empty id becomes
// "test-run-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedIDGenerator{id: id}
}

// NewID returns the fixed identifier.
func (g *FixedIDGenerator) NewID() string {
	return g.id
}

// SequentialIDGenerator returns "run-0001", "run-0002", and so on.
type SequentialIDGenerator struct {
	n atomic.Int64
}

// NewID returns the next identifier in sequence.
func (g *SequentialIDGenerator) NewID() string {
	return fmt.Sprintf("run-%04d", g.n.Add(1))
}
