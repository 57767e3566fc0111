package trafficshaper

import (
	"errors"
	"time"
)

// Patch is an explicit "leave alone" vs. "replace with this value" wrapper,
// the shape behind Settings' partial-update semantics (§4.3
// "apply_settings... only fields explicitly present are replaced"). The
// reference uses a double Option<Option<T>> for fields whose value is
// itself optional (latency_distribution, bandwidth_limit); here that
// collapses into a single Patch[T] wrapping a nilable T (a function value or
// a pointer), with a zero value meaning "nothing set", same convention as
// other generic config container types in this codebase family.
type Patch[T any] struct {
	value T
	set   bool
}

// Set constructs a Patch that replaces the target field with v when applied.
func Set[T any](v T) Patch[T] {
	return Patch[T]{value: v, set: true}
}

// Get returns the patched value and whether the patch is set.
func (p Patch[T]) Get() (T, bool) {
	return p.value, p.set
}

func (p Patch[T]) apply(dst *T) {
	if p.set {
		*dst = p.value
	}
}

// LatencyFunc samples a per-item delay. A nil return duration (ok == false)
// means no delay is added. Invoked at most once per surviving item, at
// intake time (§3 invariant).
type LatencyFunc func() (delay time.Duration, ok bool)

// BandwidthLimitConfig configures the sliding-window throttle and its
// interaction with drop decisions. A nil *BandwidthLimitConfig disables
// bandwidth limiting entirely.
type BandwidthLimitConfig struct {
	// BytesPerSecond is the window capacity; the window itself is fixed at
	// one second, matching the reference's set_bandwidth_limit.
	BytesPerSecond int
	// DropRatio is the Bernoulli probability of shedding an intake item for
	// bandwidth reasons, independent of the ordinary drop_probability.
	DropRatio float64
	// OnlyDropWhenLimitReached gates DropRatio's evaluation on
	// LimitReached(); when false, drops can happen even under the limit
	// ("random thinning", per §9's open question — preserved as intentional).
	OnlyDropWhenLimitReached bool
}

// Settings is a partial-update configuration patch for an Engine or
// SinkAdapter (§6 "Settings schema"). Every field defaults to "do not
// modify" (the Patch zero value); construct one via the With* builder
// methods or by setting fields directly. The same type is sent over a
// LiveSettings channel for atomic runtime reconfiguration.
type Settings struct {
	// LatencyDistribution samples per-item delay. Defaults to nil (no delay).
	LatencyDistribution Patch[LatencyFunc]
	// DropProbability is the independent-loss Bernoulli parameter, in
	// [0,1]. Defaults to 0.
	DropProbability Patch[float64]
	// CorruptProbability is the in-place-mutation Bernoulli parameter, in
	// [0,1]. Defaults to 0.
	CorruptProbability Patch[float64]
	// DuplicateProbability is the best-effort duplication Bernoulli
	// parameter, in [0,1]. Defaults to 0.
	DuplicateProbability Patch[float64]
	// BandwidthLimit configures the throttle, or disables it when the
	// patched value is nil. Defaults to disabled.
	BandwidthLimit Patch[*BandwidthLimitConfig]
	// Ordering selects the output ordering policy. Defaults to Ordered.
	Ordering Patch[Ordering]
	// SinkQueueCapacity bounds the SinkAdapter's internal intake queue;
	// zero or unset means unbounded, matching the reference's
	// mpsc::unbounded_channel (see SPEC_FULL.md supplemented feature 4).
	SinkQueueCapacity Patch[int]
}

// NewSettings returns a Settings value with every field unset ("use
// current/default values").
func NewSettings() Settings {
	return Settings{}
}

// WithLatencyDistribution sets the latency sampler. Pass nil to explicitly
// clear it (equivalent to Some(None) in the reference).
func (s Settings) WithLatencyDistribution(f LatencyFunc) Settings {
	s.LatencyDistribution = Set(f)
	return s
}

// WithDropProbability sets the independent-loss probability.
func (s Settings) WithDropProbability(p float64) Settings {
	s.DropProbability = Set(p)
	return s
}

// WithCorruptProbability sets the corruption probability.
func (s Settings) WithCorruptProbability(p float64) Settings {
	s.CorruptProbability = Set(p)
	return s
}

// WithDuplicateProbability sets the duplication probability.
func (s Settings) WithDuplicateProbability(p float64) Settings {
	s.DuplicateProbability = Set(p)
	return s
}

// WithBandwidthLimit enables throttling at bytesPerSecond with the given
// drop ratio and gating flag. bytesPerSecond <= 0 is equivalent to calling
// WithoutBandwidthLimit.
func (s Settings) WithBandwidthLimit(bytesPerSecond int, dropRatio float64, onlyWhenReached bool) Settings {
	if bytesPerSecond <= 0 {
		return s.WithoutBandwidthLimit()
	}
	s.BandwidthLimit = Set(&BandwidthLimitConfig{
		BytesPerSecond:           bytesPerSecond,
		DropRatio:                dropRatio,
		OnlyDropWhenLimitReached: onlyWhenReached,
	})
	return s
}

// WithoutBandwidthLimit disables throttling.
func (s Settings) WithoutBandwidthLimit() Settings {
	s.BandwidthLimit = Set[*BandwidthLimitConfig](nil)
	return s
}

// WithOrdering sets the output ordering policy.
func (s Settings) WithOrdering(o Ordering) Settings {
	s.Ordering = Set(o)
	return s
}

// WithSinkQueueCapacity bounds a SinkAdapter's internal intake queue. n <= 0
// means unbounded.
func (s Settings) WithSinkQueueCapacity(n int) Settings {
	s.SinkQueueCapacity = Set(n)
	return s
}

// Configuration fault sentinels (§7). Wrap with fmt.Errorf("...: %w", ...)
// at call sites that need more context; these are suitable for errors.Is.
var (
	ErrInvalidProbability    = errors.New(`trafficshaper: probability must be within [0,1]`)
	ErrInvalidOrdering       = errors.New(`trafficshaper: unrecognized ordering value`)
	ErrInvalidBandwidthLimit = errors.New(`trafficshaper: invalid bandwidth limit configuration`)
)

// Validate reports a configuration fault in any field this patch sets,
// without reference to currently-resolved values. Called by NewEngine and
// by Engine.ApplySettings before any field is merged in, so a rejected
// patch leaves prior settings untouched.
func (s Settings) Validate() error {
	for _, p := range []Patch[float64]{s.DropProbability, s.CorruptProbability, s.DuplicateProbability} {
		if v, ok := p.Get(); ok && !validProbability(v) {
			return ErrInvalidProbability
		}
	}
	if o, ok := s.Ordering.Get(); ok && !o.valid() {
		return ErrInvalidOrdering
	}
	if bw, ok := s.BandwidthLimit.Get(); ok && bw != nil {
		if bw.BytesPerSecond <= 0 {
			return ErrInvalidBandwidthLimit
		}
		if !validProbability(bw.DropRatio) {
			return ErrInvalidBandwidthLimit
		}
	}
	return nil
}

func validProbability(p float64) bool {
	return p >= 0 && p <= 1
}

// resolvedSettings is the engine's current, fully-merged configuration —
// the "live" counterpart to the patch-shaped public Settings. Zero value is
// not meaningful on its own; use defaultResolvedSettings.
type resolvedSettings struct {
	latency              LatencyFunc
	dropProbability      float64
	corruptProbability   float64
	duplicateProbability float64
	bandwidthLimit       *BandwidthLimitConfig
	ordering             Ordering
	sinkQueueCapacity    int
}

// defaultResolvedSettings matches §6's Settings schema defaults: every
// probability 0, no latency sampler, no bandwidth limit, Ordered ordering,
// unbounded sink queue.
func defaultResolvedSettings() resolvedSettings {
	return resolvedSettings{ordering: Ordered}
}

// merge applies every set field of s onto r, leaving unset fields
// untouched. Callers must Validate(s) first; merge does not re-validate.
func (r *resolvedSettings) merge(s Settings) {
	s.LatencyDistribution.apply(&r.latency)
	s.DropProbability.apply(&r.dropProbability)
	s.CorruptProbability.apply(&r.corruptProbability)
	s.DuplicateProbability.apply(&r.duplicateProbability)
	s.BandwidthLimit.apply(&r.bandwidthLimit)
	s.Ordering.apply(&r.ordering)
	s.SinkQueueCapacity.apply(&r.sinkQueueCapacity)
}
