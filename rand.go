package trafficshaper

import (
	"math/rand"
	"sync"
)

// lockedRand wraps a *rand.Rand with a mutex so it is safe to use as the
// package-wide default source even though the engine itself is meant to be
// driven from a single goroutine — Payload.Corrupt, for instance, may be
// called from caller-owned code running anywhere.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Intn(n)
}

// rngSource is the default randomness source for Bernoulli draws (drop,
// corrupt, duplicate, bandwidth-drop decisions) and Payload.Corrupt's byte
// selection. Tests that need determinism construct their own *rand.Rand and
// swap it in via a package-level override in a _test.go file rather than
// mutating global state outside of tests.
var rngSource = &lockedRand{rnd: rand.New(rand.NewSource(1))}

// bernoulli draws a single Bernoulli trial with success probability p,
// clamped to [0,1]; p<=0 always returns false, p>=1 always returns true.
func bernoulli(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return rngSource.Float64() < p
}
