package trafficshaper

import "time"

// timeNow is var-indirected, per catrate/limiter.go's own timeNow = time.Now
// pattern, so tests can substitute a deterministic clock. Engine.Poll always
// takes an explicit now argument instead of reading this directly; the one
// exception is Engine.Stats, which has no caller-supplied time and falls
// back to timeNow() for its wall-clock snapshot.
var timeNow = time.Now

// fallbackWakeInterval is the default wake period used when the queue is
// non-empty but has no known deadline and the bandwidth limiter has no
// pending eviction, per §4.3 step 5.
const fallbackWakeInterval = 20 * time.Millisecond
