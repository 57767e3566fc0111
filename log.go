package trafficshaper

import (
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// logger is the package-wide structured logger, stderr stumpy by default.
// Embedders wanting a different logiface backend (zerolog, logrus, slog)
// call SetLogger once at startup.
var logger = stumpy.L.New(stumpy.L.WithStumpy())

// SetLogger overrides the package-wide logger. Not safe to call concurrently
// with an in-flight Poll.
func SetLogger(l *logiface.Logger[*stumpy.Event]) {
	if l == nil {
		return
	}
	logger = l
}

func logDropped(reason string) {
	logger.Trace().Str(`reason`, reason).Log(`dropped`)
}

func logDelayed(delay time.Duration) {
	logger.Debug().Dur(`delay`, delay).Log(`queued with delay`)
}

func logDuplicateUnsupported() {
	logger.Warning().Log(`duplicate requested but item does not support it`)
}

func logSettingsChanged() {
	logger.Debug().Log(`settings changed`)
}

func logBandwidthLimitExceeded() {
	logger.Trace().Log(`bandwidth limit exceeded, item returned to queue`)
}
