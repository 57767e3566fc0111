package trafficshaper

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of an Engine's runtime counters (§3
// ShaperState's "counters (total, dropped, per-second)"; see SPEC_FULL.md
// supplemented feature 5). Safe to read from any goroutine.
type Stats struct {
	// Total is the number of items accepted from the upstream source.
	Total int64
	// Dropped is the number of those items discarded, for any reason
	// (ordinary loss or bandwidth-gated loss).
	Dropped int64
	// EmittedBytesPerSecond is the accumulated byte weight emitted within
	// the trailing one-second window.
	EmittedBytesPerSecond int64
}

type engineCounters struct {
	total   atomic.Int64
	dropped atomic.Int64
}

// Engine is the pull-side shaping heart (§2 "ShapingEngine", §4.3). It owns
// an upstream Source, a Queue, a latency sampler, probability parameters, a
// BandwidthLimiter, and an optional LiveSettings channel. Not safe for
// concurrent Poll calls — it is designed to be driven from one logical
// caller at a time (§5); Stats is the one exception, safe from any
// goroutine.
type Engine[T Item] struct {
	source       Source[T]
	settings     resolvedSettings
	liveSettings *LiveSettings
	queue        Queue[T]
	limiter      *BandwidthLimiter
	sourceEnded  bool
	droppedFlag  bool
	nextWake     time.Time

	counters engineCounters

	statsMu     sync.Mutex
	statsWindow *BandwidthLimiter
}

// NewEngine constructs an Engine over source, applying the given initial
// settings. Returns an error if settings fails validation (§7
// "Configuration fault... surfaced at construction").
func NewEngine[T Item](source Source[T], settings Settings) (*Engine[T], error) {
	statsWindow, err := NewBandwidthLimiter(math.MaxInt, time.Second)
	if err != nil {
		// unreachable: math.MaxInt and time.Second are always valid.
		return nil, err
	}
	e := &Engine[T]{
		source:      source,
		settings:    defaultResolvedSettings(),
		statsWindow: statsWindow,
	}
	e.queue = NewQueue[T](e.settings.ordering)
	if err := e.applySettings(settings); err != nil {
		return nil, err
	}
	return e, nil
}

// ApplySettings merges a partial update into the engine's live
// configuration (§4.3 "apply_settings merges a partial update"). Rejects
// and leaves state untouched on a configuration fault.
func (e *Engine[T]) ApplySettings(settings Settings) error {
	if err := e.applySettings(settings); err != nil {
		return err
	}
	logSettingsChanged()
	return nil
}

func (e *Engine[T]) applySettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	orderingChanged := false
	if o, ok := settings.Ordering.Get(); ok && o != e.settings.ordering {
		orderingChanged = true
	}
	bandwidthChanged := false
	if _, ok := settings.BandwidthLimit.Get(); ok {
		bandwidthChanged = true
	}

	e.settings.merge(settings)

	if orderingChanged {
		// An ordering change discards in-flight items by rebuilding the
		// queue empty. Callers that need retention should quiesce first.
		e.queue = NewQueue[T](e.settings.ordering)
	}
	if bandwidthChanged {
		e.rebuildLimiter()
	}
	return nil
}

func (e *Engine[T]) rebuildLimiter() {
	cfg := e.settings.bandwidthLimit
	if cfg == nil || cfg.BytesPerSecond <= 0 {
		e.limiter = nil
		return
	}
	lim, err := NewBandwidthLimiter(cfg.BytesPerSecond, time.Second)
	if err != nil {
		e.limiter = nil
		return
	}
	e.limiter = lim
}

// SettingsChannel returns the producer side of this engine's LiveSettings,
// constructing one on first use (§4.5, §6 "settings_channel() accessor").
func (e *Engine[T]) SettingsChannel() *LiveSettings {
	if e.liveSettings == nil {
		e.liveSettings = NewLiveSettings()
	}
	return e.liveSettings
}

// Ordering reports the engine's current ordering policy.
func (e *Engine[T]) Ordering() Ordering {
	return e.settings.ordering
}

// Pending reports whether the engine holds any item, ready or delayed.
func (e *Engine[T]) Pending() bool {
	return e.queue.Pending()
}

// PendingImmediate reports whether a Poll(now) would currently be able to
// pop a ready item from the queue, ignoring whether it would then clear the
// bandwidth limiter (see SPEC_FULL.md supplemented feature 3).
func (e *Engine[T]) PendingImmediate(now time.Time) bool {
	return e.queue.PendingImmediate(now)
}

// HasDroppedItem reports whether an item has been dropped since the last
// ResetDroppedItem, backing the SinkAdapter's dropped-flag flush mechanism
// (§4.4).
func (e *Engine[T]) HasDroppedItem() bool {
	return e.droppedFlag
}

// ResetDroppedItem clears the dropped flag.
func (e *Engine[T]) ResetDroppedItem() {
	e.droppedFlag = false
}

// NextWake reports when the caller should next invoke Poll, as computed by
// the most recent NotReady-returning Poll call (§4.3 step 5). Meaningless
// before the first Poll call.
func (e *Engine[T]) NextWake() time.Time {
	return e.nextWake
}

// Stats returns a snapshot of the engine's counters. Safe to call
// concurrently with Poll.
func (e *Engine[T]) Stats() Stats {
	now := timeNow()
	e.statsMu.Lock()
	e.statsWindow.Update(now)
	emitted := int64(e.statsWindow.CurrentBurden())
	e.statsMu.Unlock()
	return Stats{
		Total:                 e.counters.total.Load(),
		Dropped:               e.counters.dropped.Load(),
		EmittedBytesPerSecond: emitted,
	}
}

// Poll advances the engine by one tick, per §4.3's per-poll algorithm:
// absorb a pending settings update, drain the upstream source into the
// queue, expire ripened delayed items, then attempt to emit one item.
func (e *Engine[T]) Poll(now time.Time) (T, PollState) {
	var zero T

	// 1. Absorb settings update (non-blocking, at most one per poll).
	if settings, ok := e.liveSettings.tryRecv(); ok {
		_ = e.ApplySettings(settings)
	}

	// 2. Intake phase, skipped under Backpressure while anything is
	// pending.
	if e.settings.ordering != Backpressure || !e.queue.Pending() {
		if e.drainSource(now) {
			return zero, ReadyEnd
		}
	}

	// 3. Expire phase.
	e.queue.Expire(now)

	// 4. Emit phase.
	if item, ok := e.queue.PopFront(now); ok {
		if e.tryEmit(item, now) {
			return item, ReadyItem
		}
		// Bandwidth limit reached: push back to the front with no delay
		// and fall through to scheduling a wake.
		e.queue.PushFront(item)
	}

	// 5. Schedule wake.
	e.nextWake = e.computeNextWake(now)

	if e.sourceEnded && !e.queue.Pending() {
		return zero, ReadyEnd
	}
	return zero, NotReady
}

// drainSource repeatedly polls the upstream source, processing and
// enqueueing every immediately-available item; under Backpressure it stops
// as soon as an admitted item is pending. Returns true if the source has
// ended and the queue is now empty (i.e. the caller should report ReadyEnd
// immediately, without attempting the emit phase).
func (e *Engine[T]) drainSource(now time.Time) bool {
	for {
		item, state := e.source.Poll()
		switch state {
		case ReadyItem:
			e.intake(item, now)
			if e.settings.ordering == Backpressure && e.queue.Pending() {
				return false
			}
		case ReadyEnd:
			e.sourceEnded = true
			return !e.queue.Pending()
		default: // NotReady
			return false
		}
	}
}

// intake runs one admitted item through the bandwidth-drop, loss,
// corruption, latency-sampling, and duplication decisions, in that exact
// order (§4.3 step 2), then enqueues it.
func (e *Engine[T]) intake(item T, now time.Time) {
	e.counters.total.Add(1)

	if cfg := e.settings.bandwidthLimit; cfg != nil && cfg.DropRatio > 0 {
		eligible := !cfg.OnlyDropWhenLimitReached
		if cfg.OnlyDropWhenLimitReached && e.limiter != nil {
			e.limiter.Update(now)
			eligible = e.limiter.LimitReached()
		}
		if eligible && bernoulli(cfg.DropRatio) {
			e.counters.dropped.Add(1)
			e.droppedFlag = true
			logDropped(`bandwidth`)
			return
		}
	}

	if bernoulli(e.settings.dropProbability) {
		e.counters.dropped.Add(1)
		e.droppedFlag = true
		logDropped(`probability`)
		return
	}

	if bernoulli(e.settings.corruptProbability) {
		item.Corrupt()
	}

	var delay time.Duration
	var hasDelay bool
	if e.settings.latency != nil {
		delay, hasDelay = e.settings.latency()
	}

	if bernoulli(e.settings.duplicateProbability) {
		if dup, ok := duplicate(item); ok {
			e.queue.Push(dup, 0, false, now)
		} else {
			logDuplicateUnsupported()
		}
	}

	if hasDelay && delay > 0 {
		logDelayed(delay)
	}
	e.queue.Push(item, delay, hasDelay, now)
}

// tryEmit attempts to release item under the bandwidth limiter, returning
// true on success (and recording the emission for Stats).
func (e *Engine[T]) tryEmit(item T, now time.Time) bool {
	if e.limiter == nil {
		e.recordEmit(item, now)
		return true
	}
	e.limiter.Update(now)
	if e.limiter.LimitReached() {
		logBandwidthLimitExceeded()
		return false
	}
	e.limiter.AddRequest(item.ByteLen(), now)
	e.recordEmit(item, now)
	return true
}

func (e *Engine[T]) recordEmit(item T, now time.Time) {
	e.statsMu.Lock()
	e.statsWindow.AddRequest(item.ByteLen(), now)
	e.statsMu.Unlock()
}

// computeNextWake picks the earliest instant that could make Poll
// productive: the queue's own deadline, or when bandwidth capacity frees,
// whichever is sooner, falling back to a fixed short interval when neither
// is known (§4.3 step 5). The limiter only evicts records strictly older
// than now-window, so capacity frees one nanosecond after DeadlineDuration.
func (e *Engine[T]) computeNextWake(now time.Time) time.Time {
	wake, haveWake := e.queue.Deadline()
	if e.limiter != nil {
		if dd, ok := e.limiter.DeadlineDuration(now); ok {
			if cand := now.Add(dd + time.Nanosecond); !haveWake || cand.Before(wake) {
				wake = cand
				haveWake = true
			}
		}
	}
	if !haveWake {
		wake = now.Add(fallbackWakeInterval)
	}
	return wake
}
