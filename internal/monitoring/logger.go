// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import "log"

// Logf is the package-level diagnostic logger, defaulting to log.Printf.
// Per-datagram decode failures are never logged through it: malformed
// telemetry is dropped silently and only operational events (startup, bind,
// archive errors) go through Logf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger,
// which tests use to keep output quiet.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
