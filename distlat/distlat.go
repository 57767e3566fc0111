// Package distlat provides latency-sampler constructors for use as a
// trafficshaper.LatencyFunc, reproducing original_source/src/latency.rs's
// normal_distribution and skewed_distribution helpers. It is a sibling
// package, not a core engine dependency: the engine consumes any
// caller-supplied sampler as an opaque function, keeping distribution
// construction out of the core.
package distlat

import (
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// Normal returns a latency sampler drawing from a normal distribution with
// the given mean and standard deviation (in milliseconds), clamped to
// [0, max]. A non-positive sampled value means no delay. The returned
// function is not safe for concurrent use — trafficshaper invokes the
// sampler from a single poll loop, matching the reference's FnMut.
func Normal(mean, stdDev, max float64) func() (time.Duration, bool) {
	dist := distuv.Normal{Mu: mean, Sigma: stdDev, Src: rand.NewSource(1)}
	return func() (time.Duration, bool) {
		ms := clamp(dist.Rand(), 0, max)
		if ms <= 0 {
			return 0, false
		}
		return time.Duration(ms) * time.Millisecond, true
	}
}

// SkewNormal returns a latency sampler drawing from a skew-normal
// distribution (location, scale, shape, in the Azzalini parameterization),
// clamped to [0, max]. gonum's distuv package has no skew-normal
// distribution, so this samples two independent gonum-backed standard
// normals and applies the standard Azzalini transform on top of them,
// rather than hand-rolling the underlying normal generator itself.
func SkewNormal(location, scale, shape, max float64) func() (time.Duration, bool) {
	src := rand.NewSource(1)
	standard := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	return func() (time.Duration, bool) {
		u0 := standard.Rand()
		u1 := standard.Rand()
		var z float64
		if u1 < shape*u0 {
			z = u0
		} else {
			z = -u0
		}
		ms := clamp(location+scale*z, 0, max)
		if ms <= 0 {
			return 0, false
		}
		return time.Duration(ms) * time.Millisecond, true
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
