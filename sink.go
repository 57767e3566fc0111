package trafficshaper

import (
	"errors"
	"time"
)

// Sink is the downstream push-consumer a SinkAdapter wraps (§4.4), a
// synchronous analogue of futures::Sink<T>: callers poll Ready before
// Send, and drive Flush/Close to completion by calling them repeatedly
// until they report done, the same discipline as Engine.Poll.
type Sink[T Item] interface {
	// Ready reports whether the sink can currently accept an item via Send.
	Ready() bool
	// Send hands item to the sink. Only called when Ready last reported
	// true.
	Send(item T) error
	// Flush pushes any buffered state downstream. Returns true once fully
	// flushed, false if more work remains (call again later).
	Flush() (done bool, err error)
	// Close shuts the sink down. Called at most once, after Flush last
	// reported done.
	Close() error
}

// ErrSinkQueueFull is returned by StartSend when the adapter's bounded
// intake queue (see Settings.SinkQueueCapacity) is at capacity.
var ErrSinkQueueFull = errors.New(`trafficshaper: sink queue at capacity`)

// sinkQueueSource is the Source the adapter's embedded Engine pulls from:
// a plain in-process FIFO fed by StartSend, not a channel — the whole
// adapter/engine pair is driven from one caller, so no goroutine hop is
// needed here (contrast ChanSource, for embedders who do want one).
type sinkQueueSource[T Item] struct {
	q      *fifo[T]
	closed bool
}

func (s *sinkQueueSource[T]) Poll() (item T, state PollState) {
	if v, ok := s.q.PopFront(); ok {
		return v, ReadyItem
	}
	if s.closed {
		return item, ReadyEnd
	}
	return item, NotReady
}

// SinkAdapter converts a push-style downstream Sink into a push-style
// frontend gated by an embedded Engine (§2 "SinkAdapter (push side)", §4.4).
// The cycle between adapter and engine is resolved by composition per §9:
// the adapter owns the engine; the engine never refers back to the
// adapter.
type SinkAdapter[T Item] struct {
	downstream Sink[T]
	engine     *Engine[T]
	queue      *fifo[T]
	source     *sinkQueueSource[T]
	capacity   int
	closing    bool
	pending    T
	hasPending bool
}

// NewSinkAdapter constructs a SinkAdapter wrapping downstream, with an
// embedded Engine built from settings.
func NewSinkAdapter[T Item](downstream Sink[T], settings Settings) (*SinkAdapter[T], error) {
	q := &fifo[T]{}
	src := &sinkQueueSource[T]{q: q}
	engine, err := NewEngine[T](src, settings)
	if err != nil {
		return nil, err
	}
	capacity := 0
	if n, ok := settings.SinkQueueCapacity.Get(); ok && n > 0 {
		capacity = n
	}
	return &SinkAdapter[T]{
		downstream: downstream,
		engine:     engine,
		queue:      q,
		source:     src,
		capacity:   capacity,
	}, nil
}

// Engine returns the embedded Engine, for Stats/SettingsChannel access.
func (a *SinkAdapter[T]) Engine() *Engine[T] {
	return a.engine
}

// AcceptReady reports whether StartSend would currently be accepted (§4.4
// "accept-ready"): refused under Backpressure ordering while anything is
// still pending, otherwise deferred to the downstream's own readiness.
func (a *SinkAdapter[T]) AcceptReady() bool {
	if a.engine.Ordering() == Backpressure && a.engine.Pending() {
		return false
	}
	return a.downstream.Ready()
}

// StartSend hands item to the adapter's internal intake queue (§4.4
// "start-send"). Returns ErrSinkQueueFull if a capacity was configured via
// Settings.SinkQueueCapacity and is currently exhausted; the reference
// implementation's unbounded channel never rejects (see SPEC_FULL.md
// supplemented feature 4 for why this adapter can).
func (a *SinkAdapter[T]) StartSend(item T) error {
	if a.capacity > 0 && a.queue.Len() >= a.capacity {
		return ErrSinkQueueFull
	}
	a.queue.PushBack(item)
	return nil
}

// Flush drives one step of moving items from the engine to the downstream
// sink (§4.4 "flush"). Call repeatedly until it reports (true, nil).
func (a *SinkAdapter[T]) Flush(now time.Time) (done bool, err error) {
	if a.hasPending {
		if !a.downstream.Ready() {
			return false, nil
		}
		if err := a.downstream.Send(a.pending); err != nil {
			var zero T
			a.pending, a.hasPending = zero, false
			return false, err
		}
		var zero T
		a.pending, a.hasPending = zero, false
	}

	item, state := a.engine.Poll(now)
	switch state {
	case ReadyItem:
		if !a.downstream.Ready() {
			a.pending, a.hasPending = item, true
			return false, nil
		}
		if err := a.downstream.Send(item); err != nil {
			return false, err
		}
		if a.closing && a.engine.Pending() {
			return false, nil
		}
		return a.downstream.Flush()

	case ReadyEnd:
		return a.downstream.Flush()

	default: // NotReady
		if a.engine.HasDroppedItem() {
			a.engine.ResetDroppedItem()
			return true, nil
		}
		if (a.closing && a.engine.Pending()) || a.engine.PendingImmediate(now) {
			return false, nil
		}
		return a.downstream.Flush()
	}
}

// Close marks the adapter as closing and drives one step of draining
// remaining work (§4.4 "close"). Call repeatedly until it reports (true,
// nil); only then has the downstream sink actually been closed.
func (a *SinkAdapter[T]) Close(now time.Time) (done bool, err error) {
	a.closing = true
	if _, err := a.Flush(now); err != nil {
		return false, err
	}
	if a.hasPending || a.engine.Pending() {
		return false, nil
	}
	if err := a.downstream.Close(); err != nil {
		return false, err
	}
	return true, nil
}

// IntoInner returns the wrapped downstream sink (§6 "into_inner").
func (a *SinkAdapter[T]) IntoInner() Sink[T] {
	return a.downstream
}
