package repositories

import (
	"fmt"
	"log/slog"
	"strings"
)

// BadgerLogger redirects badger's printf-style output to the relay's slog.Logger.
// Badger ends most lines with a newline, which is trimmed.
type BadgerLogger struct {
	log *slog.Logger
}

func NewBadgerLogger(log *slog.Logger) *BadgerLogger {
	return &BadgerLogger{log: log.With("component", "badger")}
}

func (l *BadgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(line(format, args))
}

func (l *BadgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(line(format, args))
}

func (l *BadgerLogger) Infof(format string, args ...interface{}) {
	l.log.Info(line(format, args))
}

func (l *BadgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(line(format, args))
}

func line(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
