package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceTokenGenerator(t *testing.T) {
	g := NewSequenceTokenGenerator("fold")
	assert.Equal(t, "fold-1", g.Generate())
	assert.Equal(t, "fold-2", g.Generate())
	assert.Equal(t, "fold-3", g.Generate())
}

func TestSequenceTokenGeneratorDefaultPrefix(t *testing.T) {
	g := NewSequenceTokenGenerator("")
	assert.Equal(t, "test-run-1", g.Generate())
}

func TestSequenceTokenGeneratorIndependentInstances(t *testing.T) {
	first := NewSequenceTokenGenerator("a")
	second := NewSequenceTokenGenerator("a")
	assert.Equal(t, first.Generate(), second.Generate())
}
