package utils

import (
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/logfmt"
)

// LogFormat defines the output format for logs
type LogFormat int

const (
	FormatText LogFormat = iota
	FormatJSON
)

// ParseLogFormat maps "json" to FormatJSON and anything else to FormatText
func ParseLogFormat(format string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return FormatJSON
	}
	return FormatText
}

// loggerCore is shared by a logger and every child derived from it
type loggerCore struct {
	level           LogLevel
	componentLevels map[string]LogLevel
	apex            *log.Logger
}

// StructuredLogger provides leveled logging with context fields on top of apex/log
type StructuredLogger struct {
	core   *loggerCore
	fields log.Fields
}

// StructuredLoggerConfig holds configuration for the logger
type StructuredLoggerConfig struct {
	Level  LogLevel
	Output io.Writer
	Format LogFormat
	// ComponentLevels overrides Level for loggers tagged with WithComponent
	ComponentLevels map[string]LogLevel
}

// DefaultStructuredLoggerConfig returns default configuration
func DefaultStructuredLoggerConfig() *StructuredLoggerConfig {
	return &StructuredLoggerConfig{
		Level:  INFO,
		Output: os.Stderr,
		Format: FormatText,
	}
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(config *StructuredLoggerConfig) (*StructuredLogger, error) {
	if config == nil {
		config = DefaultStructuredLoggerConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	var handler log.Handler
	switch config.Format {
	case FormatJSON:
		handler = jsonhandler.New(output)
	default:
		handler = logfmt.New(output)
	}

	logger := newStructuredLogger(handler, config.Level)
	for component, level := range config.ComponentLevels {
		logger.core.componentLevels[component] = level
	}
	return logger, nil
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *StructuredLogger {
	return newStructuredLogger(discard.New(), ERROR)
}

func newStructuredLogger(handler log.Handler, level LogLevel) *StructuredLogger {
	return &StructuredLogger{
		core: &loggerCore{
			level:           level,
			componentLevels: make(map[string]LogLevel),
			// level filtering happens in isEnabled so component overrides can lower it
			apex: &log.Logger{Handler: handler, Level: log.DebugLevel},
		},
		fields: log.Fields{},
	}
}

// WithField returns a new logger with an additional context field
func (sl *StructuredLogger) WithField(key string, value interface{}) *StructuredLogger {
	return sl.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with multiple context fields
func (sl *StructuredLogger) WithFields(fields map[string]interface{}) *StructuredLogger {
	merged := make(log.Fields, len(sl.fields)+len(fields))
	for k, v := range sl.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &StructuredLogger{core: sl.core, fields: merged}
}

// WithComponent returns a logger with a component field
func (sl *StructuredLogger) WithComponent(component string) *StructuredLogger {
	return sl.WithField("component", component)
}

// level and componentLevels are read-only after construction
func (sl *StructuredLogger) isEnabled(level LogLevel) bool {
	if component, ok := sl.fields["component"].(string); ok {
		if compLevel, exists := sl.core.componentLevels[component]; exists {
			return level >= compLevel
		}
	}
	return level >= sl.core.level
}

func (sl *StructuredLogger) log(level LogLevel, message string, fieldMaps ...map[string]interface{}) {
	if !sl.isEnabled(level) {
		return
	}

	entry := sl.core.apex.WithFields(sl.fields)
	for _, fields := range fieldMaps {
		if len(fields) > 0 {
			entry = entry.WithFields(log.Fields(fields))
		}
	}

	switch level.apex() {
	case log.DebugLevel:
		entry.Debug(message)
	case log.WarnLevel:
		entry.Warn(message)
	case log.ErrorLevel:
		entry.Error(message)
	default:
		entry.Info(message)
	}
}

// Debug logs a debug message
func (sl *StructuredLogger) Debug(message string, fields ...map[string]interface{}) {
	sl.log(DEBUG, message, fields...)
}

// Info logs an info message
func (sl *StructuredLogger) Info(message string, fields ...map[string]interface{}) {
	sl.log(INFO, message, fields...)
}

// Warn logs a warning message
func (sl *StructuredLogger) Warn(message string, fields ...map[string]interface{}) {
	sl.log(WARN, message, fields...)
}

// Error logs an error message
func (sl *StructuredLogger) Error(message string, fields ...map[string]interface{}) {
	sl.log(ERROR, message, fields...)
}
