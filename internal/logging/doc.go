// Package logging assembles structured slog loggers used across seedctl.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes component loggers so the supervisor, detector, and
// publisher tag their records consistently. Relayed runtime output is not
// routed through these loggers; it is written verbatim to the operator.
//
// The package also provides a no-op logger for tests and wiring code that
// cannot fail.
package logging
