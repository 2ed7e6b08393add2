package core

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewJSONLogrus builds a logrus logger emitting JSON with the
// timestamp/severity/message field names log collectors expect.
func NewJSONLogrus(w io.Writer, level string) *logrus.Logger {
	log := logrus.New()
	log.Out = w
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
	}
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.Level = lvl
	return log
}

// LogrusLogger adapts a logrus.FieldLogger to Logger.
type LogrusLogger struct {
	log logrus.FieldLogger
}

// NewLogrusLogger wraps log.
func NewLogrusLogger(log logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{log: log}
}

// FieldLogger exposes the wrapped logger for request-scoped fields.
func (l *LogrusLogger) FieldLogger() logrus.FieldLogger { return l.log }

func (l *LogrusLogger) Debug(msg string, args ...any) { l.entry(args).Debug(msg) }
func (l *LogrusLogger) Info(msg string, args ...any)  { l.entry(args).Info(msg) }
func (l *LogrusLogger) Warn(msg string, args ...any)  { l.entry(args).Warn(msg) }
func (l *LogrusLogger) Error(msg string, args ...any) { l.entry(args).Error(msg) }

func (l *LogrusLogger) entry(args []any) logrus.FieldLogger {
	if len(args) == 0 {
		return l.log
	}
	return l.log.WithFields(fieldsFromArgs(args))
}

// fieldsFromArgs pairs args into fields. A dangling value is kept under
// "arg", non-string keys are formatted.
func fieldsFromArgs(args []any) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["arg"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if err, isErr := args[i+1].(error); isErr {
			fields[key] = err.Error()
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}
