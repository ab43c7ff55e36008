// Package dlog is the driver's diagnostic stream. Output goes to stderr:
// errors are always emitted, everything else only when WINEASIO_DEBUG asks
// for it.
//
// Nothing on the realtime path may log. The hot-path operations
// (get_sample_position, get_channel_info, get_callback and the backend
// process callback) do not call into this package at all.
package dlog

import (
	"os"

	"github.com/charmbracelet/log"
)

var logger = newLogger()

func newLogger() *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "wineasio",
		ReportTimestamp: false,
	})
	switch os.Getenv("WINEASIO_DEBUG") {
	case "", "0":
		l.SetLevel(log.ErrorLevel)
	case "1":
		l.SetLevel(log.InfoLevel)
	default:
		l.SetLevel(log.DebugLevel)
	}
	return l
}

// Tracef logs detail that is only interesting while debugging the shim.
func Tracef(format string, args ...any) {
	logger.Debugf(format, args...)
}

// Infof logs the few messages worth seeing in a normal run, such as the
// one-line session summary after init.
func Infof(format string, args ...any) {
	logger.Infof(format, args...)
}

// Warnf logs recoverable trouble.
func Warnf(format string, args ...any) {
	logger.Warnf(format, args...)
}

// Errorf logs failures. These are emitted even without WINEASIO_DEBUG.
func Errorf(format string, args ...any) {
	logger.Errorf(format, args...)
}
