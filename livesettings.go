package trafficshaper

// LiveSettings is the one-slot update channel from §4.5: any producer can
// Send a partial Settings patch, and the engine absorbs at most one pending
// update per poll via a non-blocking receive. Grounded on
// settings.rs's settings_updater, which hands back an mpsc::Sender backed
// by a channel of capacity 1.
type LiveSettings struct {
	ch chan Settings
}

// NewLiveSettings constructs a LiveSettings with its one-slot channel.
func NewLiveSettings() *LiveSettings {
	return &LiveSettings{ch: make(chan Settings, 1)}
}

// Send installs s as the pending update, blocking while the slot is already
// occupied. Settings updates are expected to be rare, so blocking here is
// an acceptable simplification over a priority/coalescing scheme.
func (l *LiveSettings) Send(s Settings) {
	l.ch <- s
}

// TrySend attempts a non-blocking send, reporting whether the slot accepted
// it (false if an update is already pending).
func (l *LiveSettings) TrySend(s Settings) bool {
	select {
	case l.ch <- s:
		return true
	default:
		return false
	}
}

// tryRecv performs the engine's one-update-per-poll non-blocking receive. A
// nil receiver (no live-settings channel configured) always reports
// nothing pending, per §7 "Live-settings disconnected... engine continues
// with last applied settings".
func (l *LiveSettings) tryRecv() (Settings, bool) {
	if l == nil {
		return Settings{}, false
	}
	select {
	case s := <-l.ch:
		return s, true
	default:
		return Settings{}, false
	}
}
