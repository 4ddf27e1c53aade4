package nvelope

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// BasicLogger is just the start of what a logger might
// support.  It exists mostly as a placeholder.  Future
// versions of nvelope will prefer more capabile loggers
// but will use type assertions so that the BasicLogger
// will remain acceptable to the APIs.
type BasicLogger interface {
	Debug(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
}

// StdLogger is implmented by the base library log.Logger
type StdLogger interface {
	Print(v ...interface{})
}

type wrappedStdLogger struct {
	log StdLogger
}

// LoggerFromStd adapts a log.Logger into a BasicLogger factory
func LoggerFromStd(log StdLogger) func() BasicLogger {
	return func() BasicLogger {
		return wrappedStdLogger{log: log}
	}
}

func (std wrappedStdLogger) Error(msg string, fields ...map[string]interface{}) {
	if len(fields) == 0 {
		std.log.Print(msg)
		return
	}
	vals := make([]interface{}, 1, len(fields)*4+1)
	vals[0] = msg
	for _, m := range fields {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			vals = append(vals, " "+k+"="+fmt.Sprint(m[k]))
		}
	}
	std.log.Print(vals...)
}

func (std wrappedStdLogger) Warn(msg string, fields ...map[string]interface{}) {
	std.Error(msg, fields...)
}
func (std wrappedStdLogger) Debug(msg string, fields ...map[string]interface{}) {
	std.Error(msg, fields...)
}

// NoLogger returns a BasicLogger that discards all inputs
func NoLogger() BasicLogger {
	return nilLogger{}
}

type nilLogger struct{}

var _ BasicLogger = nilLogger{}

func (nilLogger) Error(msg string, fields ...map[string]interface{}) {}
func (nilLogger) Warn(msg string, fields ...map[string]interface{})  {}
func (nilLogger) Debug(msg string, fields ...map[string]interface{}) {}

// ZapLogger is the BasicLogger built on zap.  Its Flush makes it a
// LogFlusher.
type ZapLogger struct {
	log *zap.Logger
}

var (
	_ BasicLogger = ZapLogger{}
	_ LogFlusher  = ZapLogger{}
)

// LoggerFromZap adapts a zap.Logger.  A nil logger discards.
func LoggerFromZap(log *zap.Logger) ZapLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return ZapLogger{log: log.WithOptions(zap.AddCallerSkip(1))}
}

// Zap returns the underlying logger
func (z ZapLogger) Zap() *zap.Logger { return z.log }

func (z ZapLogger) Error(msg string, fields ...map[string]interface{}) {
	z.log.Error(msg, zapFields(fields)...)
}

func (z ZapLogger) Warn(msg string, fields ...map[string]interface{}) {
	z.log.Warn(msg, zapFields(fields)...)
}

func (z ZapLogger) Debug(msg string, fields ...map[string]interface{}) {
	z.log.Debug(msg, zapFields(fields)...)
}

// Flush syncs buffered log entries
func (z ZapLogger) Flush() {
	_ = z.log.Sync()
}

func zapFields(fields []map[string]interface{}) []zap.Field {
	var zf []zap.Field
	for _, m := range fields {
		for k, v := range m {
			zf = append(zf, zap.Any(k, v))
		}
	}
	return zf
}
