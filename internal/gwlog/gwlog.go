// Package gwlog is the ambient logging surface every package in Gateway
// logs through, mirroring the leveled Debugf/Infof/Errorf split the
// teacher lineage exposes from its own fs package, but backed by
// logrus and always writing to stderr so the TUI's alt-screen on stdout
// is never disturbed.
package gwlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetOutput redirects the ambient logger, mainly for tests.
func SetOutput(w io.Writer) { std.SetOutput(w) }

// SetDebug toggles debug-level logging on or off.
func SetDebug(on bool) {
	if on {
		std.SetLevel(logrus.DebugLevel)
	} else {
		std.SetLevel(logrus.InfoLevel)
	}
}

// Debugf logs a low-level diagnostic message.
func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }

// Logf logs a routine informational message.
func Logf(format string, args ...interface{}) { std.Infof(format, args...) }

// Errorf logs a recoverable error the activity continues past.
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }

// Fatalf logs a fatal startup error and terminates the process.
func Fatalf(format string, args ...interface{}) { std.Fatalf(format, args...) }
