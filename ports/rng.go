package ports

import (
	"math/rand"
)

// RNGPort provides random number generation for the placeholder inference
// and heatmap rendering
type RNGPort interface {
	// Stream returns a new generator for a named operation. With a fixed seed
	// the sequence of streams is reproducible; every call yields a new stream.
	Stream(name string) *rand.Rand
}
