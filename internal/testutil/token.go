package testutil

import (
	"fmt"
	"sync"
)

// SequenceTokenGenerator produces run tokens "prefix-1", "prefix-2", ...
//
// Unlike strategy.FixedGenerator it never exhausts, so data-driven
// scenarios can run any number of strategies while staying byte-stable
// for golden comparison.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceTokenGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int64
}

// NewSequenceTokenGenerator creates a generator with the given prefix.
// An empty prefix defaults to "test-run".
func NewSequenceTokenGenerator(prefix string) *SequenceTokenGenerator {
	if prefix == "" {
		prefix = "test-run"
	}
	return &SequenceTokenGenerator{prefix: prefix}
}

// Generate returns the next token in the sequence.
//
// Implements strategy.TokenGenerator.
func (g *SequenceTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
