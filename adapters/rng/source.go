package rng

import (
	"hash/fnv"
	"math/rand"
	"sync/atomic"
	"time"

	"biomark/ports"
)

// Source hands out independent math/rand streams derived from one base seed
type Source struct {
	base    int64
	counter atomic.Uint64
}

var _ ports.RNGPort = (*Source)(nil)

// NewSource creates a source. A zero seed is replaced by the current time,
// which is what production runs use.
func NewSource(seed int64) *Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Source{base: seed}
}

// Seed returns the base seed
func (s *Source) Seed() int64 {
	return s.base
}

// Stream returns a new generator for a named operation
func (s *Source) Stream(name string) *rand.Rand {
	n := s.counter.Add(1)
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	seed := s.base ^ int64(h.Sum64()) ^ int64(n*0x9E3779B97F4A7C15)
	return rand.New(rand.NewSource(seed))
}
