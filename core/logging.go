package core

import (
	"github.com/sirupsen/logrus"
)

// log is the package-wide structured logger. The teacher logs through a
// single global Trace(level, format, ...) sink (common.go); this package
// keeps the same "one shared sink, call it from anywhere" shape but swaps
// printf-style levels for logrus fields, which the rest of the example pack
// (natesales-gpsd-exporter) also reaches for when instrumenting a GNSS
// processing loop.
var log = logrus.New()

func init() {
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLogger replaces the package logger, e.g. to redirect output or change
// verbosity from a hosting CLI.
func SetLogger(l *logrus.Logger) { log = l }

func logEpoch(epoch *EpochRecord) *logrus.Entry {
	return log.WithField("epoch", epoch.Time.Format("2006-01-02T15:04:05")).
		WithField("nsat", len(epoch.Satellites))
}
