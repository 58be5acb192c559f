package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with variadic key-value convenience methods.
type Logger struct {
	zl     zerolog.Logger
	fields []interface{} // bound key-value pairs applied to every event
}

var global *Logger

func init() {
	global = NewDevelopment()
}

// NewProduction creates a production logger with JSON output.
func NewProduction() *Logger {
	zl := zerolog.New(os.Stdout).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()

	return &Logger{zl: zl}
}

// NewDevelopment creates a development logger with pretty console output.
func NewDevelopment() *Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	zl := zerolog.New(output).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Logger()

	return &Logger{zl: zl}
}

// NewWithWriter creates a logger with a custom writer.
func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	zl := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{zl: zl}
}

// SetGlobal sets the global logger instance.
func SetGlobal(logger *Logger) {
	global = logger
}

// Global returns the global logger instance.
func Global() *Logger {
	return global
}

// applyFields applies key-value pairs to an event. Error values are
// rendered as their message string.
func applyFields(e *zerolog.Event, fields []interface{}) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if err, isErr := fields[i+1].(error); isErr {
			e.Str(key, err.Error())
			continue
		}
		e.Interface(key, fields[i+1])
	}
}

func (l *Logger) log(e *zerolog.Event, msg string, fields []interface{}) {
	applyFields(e, l.fields)
	applyFields(e, fields)
	e.Msg(msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.log(l.zl.Debug(), msg, fields)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.log(l.zl.Info(), msg, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.log(l.zl.Warn(), msg, fields)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...interface{}) {
	l.log(l.zl.Error(), msg, fields)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(msg string, fields ...interface{}) {
	l.log(l.zl.Fatal(), msg, fields)
}

// With creates a child logger with additional bound fields.
func (l *Logger) With(fields ...interface{}) *Logger {
	bound := make([]interface{}, 0, len(l.fields)+len(fields))
	bound = append(bound, l.fields...)
	bound = append(bound, fields...)

	return &Logger{
		zl:     l.zl,
		fields: bound,
	}
}

// Global convenience functions.

// Debug logs a debug message using the global logger.
func Debug(msg string, fields ...interface{}) {
	global.Debug(msg, fields...)
}

// Info logs an info message using the global logger.
func Info(msg string, fields ...interface{}) {
	global.Info(msg, fields...)
}

// Warn logs a warning message using the global logger.
func Warn(msg string, fields ...interface{}) {
	global.Warn(msg, fields...)
}

// Error logs an error message using the global logger.
func Error(msg string, fields ...interface{}) {
	global.Error(msg, fields...)
}

// With creates a child logger with additional fields using the global logger.
func With(fields ...interface{}) *Logger {
	return global.With(fields...)
}
