package trafficshaper

import (
	"errors"
	"time"
)

// ErrInvalidWindow is returned by NewBandwidthLimiter when window is zero or
// negative, per §4.1's "window = 0 is rejected by construction".
var ErrInvalidWindow = errors.New(`trafficshaper: bandwidth window must be positive`)

// BandwidthLimiter is a fixed-capacity sliding window over the last window
// duration, expressed in abstract byte-like units. It is permissive: it
// always accepts AddRequest, even over limit — callers decide whether to
// emit by consulting LimitReached first. A zero-value limit (see
// NewBandwidthLimiter) disables limiting entirely; LimitReached always
// reports false and CapacityLeft always reports an unbounded value in that
// case.
type BandwidthLimiter struct {
	limit         int
	currentBurden int
	window        time.Duration
	records       *ring[int64, int]
}

// NewBandwidthLimiter constructs a limiter with the given capacity (bytes)
// and sliding window duration. limit == 0 disables the limiter (every method
// becomes a no-op / always-permissive). A non-positive window is a
// configuration fault and returns ErrInvalidWindow, even when limit == 0, so
// misconfiguration is caught early rather than silently ignored.
func NewBandwidthLimiter(limit int, window time.Duration) (*BandwidthLimiter, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	if limit < 0 {
		limit = 0
	}
	return &BandwidthLimiter{
		limit:   limit,
		window:  window,
		records: newRing[int64, int](8),
	}, nil
}

// disabled reports whether this limiter has no effective limit.
func (b *BandwidthLimiter) disabled() bool {
	return b == nil || b.limit == 0
}

// CapacityLeft returns max(0, limit - currentBurden). A disabled limiter
// reports math.MaxInt.
func (b *BandwidthLimiter) CapacityLeft() int {
	if b.disabled() {
		return int(^uint(0) >> 1)
	}
	if left := b.limit - b.currentBurden; left > 0 {
		return left
	}
	return 0
}

// CurrentBurden returns the raw accumulated weight of records currently in
// the window (0 when disabled). Exposed for Engine's Stats snapshot (see
// SPEC_FULL.md supplemented feature 5); the reference implementation has no
// equivalent public accessor.
func (b *BandwidthLimiter) CurrentBurden() int {
	if b.disabled() {
		return 0
	}
	return b.currentBurden
}

// LimitReached reports whether CapacityLeft() == 0. Always false when
// disabled.
func (b *BandwidthLimiter) LimitReached() bool {
	if b.disabled() {
		return false
	}
	return b.CapacityLeft() == 0
}

// DeadlineDuration reports how long until the oldest record reaches the end
// of the window, relative to now; Update evicts it (freeing its weight) once
// now is strictly past that point. The second return is false if there are
// no records, or the limiter is disabled.
func (b *BandwidthLimiter) DeadlineDuration(now time.Time) (time.Duration, bool) {
	if b.disabled() {
		return 0, false
	}
	oldest, _, ok := b.records.Front()
	if !ok {
		return 0, false
	}
	deadline := time.Unix(0, oldest).Add(b.window)
	remaining := deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Update evicts every record older than now-window, subtracting each
// discarded weight from currentBurden. Records are appended in monotonic
// order (see AddRequest), so eviction is a contiguous-prefix scan.
func (b *BandwidthLimiter) Update(now time.Time) {
	if b.disabled() {
		return
	}
	cutoff := now.Add(-b.window).UnixNano()
	n := 0
	for n < b.records.Len() {
		ts, _ := b.records.Get(n)
		if ts >= cutoff {
			break
		}
		n++
	}
	if n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		_, weight := b.records.Get(i)
		b.currentBurden -= weight
	}
	b.records.RemoveBefore(n)
}

// AddRequest records weight bytes consumed at now, then evicts anything that
// has aged out of the window. It is permissive: it records the request even
// if this pushes currentBurden past limit.
func (b *BandwidthLimiter) AddRequest(weight int, now time.Time) {
	if b.disabled() {
		return
	}
	ts := now.UnixNano()
	b.records.Insert(b.records.Search(ts), ts, weight)
	b.currentBurden += weight
	b.Update(now)
}
