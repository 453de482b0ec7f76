// Package ulogger provides the structured logging interface used across
// chaincore, grounded on the teacher's ulogger package but narrowed to a
// single zerolog-backed implementation (no Sentry, no gocore logger).
package ulogger

// Logger is implemented by every chaincore component's logging dependency.
// New derives a child logger scoped to a sub-component name, the pattern
// every component (chain index, selector, validator stage, chain state
// manager, UTXO store, mempool) uses to tag its log lines.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	New(service string) Logger
}

// New constructs the default zerolog-backed Logger.
func New(service string, opts ...Option) Logger {
	options := defaultOptions()
	for _, o := range opts {
		o(options)
	}

	return newZeroLogger(service, options)
}
