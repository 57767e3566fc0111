package trafficshaper

import (
	"math/rand"
	"testing"
)

func newSeededRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// withSeededRand swaps rngSource for a deterministic one for the duration
// of the test, restoring the original afterward.
func withSeededRand(t *testing.T, seed int64) {
	t.Helper()
	original := rngSource
	rngSource = &lockedRand{rnd: newSeededRand(seed)}
	t.Cleanup(func() { rngSource = original })
}
