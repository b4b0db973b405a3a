package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedIDGenerator(t *testing.T) {
	gen := NewFixedIDGenerator("0192-fixed")
	assert.Equal(t, "0192-fixed", gen.NewID())
	assert.Equal(t, "0192-fixed", gen.NewID())

	assert.Equal(t, "test-run-default", NewFixedIDGenerator("").NewID())
}

func TestSequentialIDGenerator(t *testing.T) {
	var gen SequentialIDGenerator
	assert.Equal(t, "run-0001", gen.NewID())
	assert.Equal(t, "run-0002", gen.NewID())
}
