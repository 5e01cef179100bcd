// Package rng provides the deterministic random stream adapter.
package rng

import (
	"hash/fnv"
	"math/rand"

	"gomix/ports"
)

// HashedStreams derives independent streams by hashing the operation name
// into the seed, so "fit" and "calibrate" never share a sequence even under
// the same run seed.
type HashedStreams struct{}

// New creates the stream factory.
func New() ports.RNG {
	return HashedStreams{}
}

// SeededStream implements ports.RNG.
func (HashedStreams) SeededStream(name string, seed int64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.New(rand.NewSource(seed ^ int64(h.Sum64())))
}
