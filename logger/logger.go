// file: logger/logger.go

package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger used during bootstrap and by the HTTP layer.
// Core services receive their logger explicitly instead of reading this variable.
var Log = logrus.New()

// Init configures Log with the given level and output format ("json" or "text").
func Init(level, format string) {
	Log = New(level, format)
}

// New builds a logrus logger writing to stdout.
// Unknown levels fall back to info.
func New(level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return l
}
