// Package trafficshaper shapes a sequence of items the way adverse network
// conditions would: added latency, random loss, random duplication,
// byte-level corruption, bandwidth throttling and reordering control.
//
// It is built from five cooperating pieces, leaves-first:
//
//   - [BandwidthLimiter]: time-windowed byte accounting.
//   - [Queue]: ordering-policy-specific storage for pending items.
//   - [Engine]: the pull-side scheduling heart, driven by repeated calls to
//     Poll.
//   - [SinkAdapter]: a push-side wrapper around a downstream [Sink], gated by
//     an embedded Engine.
//   - [Settings] / live updates via [Engine.SettingsChannel]: atomic, partial
//     reconfiguration applied at a poll boundary.
//
// None of this does real network I/O, provides delivery guarantees, or
// persists anything; it is a single-stream, in-process simulator, intended
// for embedding in tests and tooling that need tunable interference between
// a producer and a consumer.
package trafficshaper
