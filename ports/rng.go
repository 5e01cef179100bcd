package ports

import (
	"math/rand"
)

// RNG provides seeded random number generation for deterministic operations.
// Every stochastic component receives a stream explicitly; nothing reads
// ambient global randomness, so concurrent pipeline instances stay safe and
// reproducible.
type RNG interface {
	// SeededStream creates a deterministic random number generator for a
	// named operation. The same (name, seed) pair always yields the same
	// stream, and distinct names yield independent streams.
	SeededStream(name string, seed int64) *rand.Rand
}
