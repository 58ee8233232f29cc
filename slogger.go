// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

// SLogger abstracts the [*slog.Logger] behavior.
//
// This package uses three log levels:
//   - Info for request lifecycle events (request, connect, lookup, DNS exchange)
//   - Debug for per-I/O events (send, recv)
//   - Warn for reactor dispatches slower than [Config.SlowDispatchThreshold]
//
// The [*slog.Logger] type satisfies this interface.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// DefaultSLogger returns the default [SLogger] to use.
//
// The default discards all output; use a custom [*slog.Logger] to emit logs.
func DefaultSLogger() SLogger {
	return discardSLogger{}
}

type discardSLogger struct{}

var _ SLogger = discardSLogger{}

// Debug implements [SLogger].
func (discardSLogger) Debug(msg string, args ...any) {}

// Info implements [SLogger].
func (discardSLogger) Info(msg string, args ...any) {}

// Warn implements [SLogger].
func (discardSLogger) Warn(msg string, args ...any) {}
