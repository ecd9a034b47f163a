package nptrie

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/CVDpl/go-nptrie/internal/common"
)

// DefaultLogger implements the Logger interface with structured JSON logging.
type DefaultLogger struct {
	mu     sync.Mutex
	level  common.LogLevel
	logger *log.Logger
	fields map[string]interface{}
}

// NewDefaultLogger creates a new default logger.
func NewDefaultLogger() common.Logger {
	return &DefaultLogger{
		level:  common.LogLevelInfo,
		logger: log.New(os.Stderr, "", 0),
		fields: make(map[string]interface{}),
	}
}

// NewDefaultLoggerWithLevel creates a logger with a specific log level.
func NewDefaultLoggerWithLevel(level common.LogLevel) common.Logger {
	return &DefaultLogger{
		level:  level,
		logger: log.New(os.Stderr, "", 0),
		fields: make(map[string]interface{}),
	}
}

// Debug logs a debug message.
func (l *DefaultLogger) Debug(msg string, fields ...interface{}) {
	if l.level <= common.LogLevelDebug {
		l.log("DEBUG", msg, fields...)
	}
}

// Info logs an info message.
func (l *DefaultLogger) Info(msg string, fields ...interface{}) {
	if l.level <= common.LogLevelInfo {
		l.log("INFO", msg, fields...)
	}
}

// Warn logs a warning message.
func (l *DefaultLogger) Warn(msg string, fields ...interface{}) {
	if l.level <= common.LogLevelWarn {
		l.log("WARN", msg, fields...)
	}
}

// Error logs an error message.
func (l *DefaultLogger) Error(msg string, fields ...interface{}) {
	if l.level <= common.LogLevelError {
		l.log("ERROR", msg, fields...)
	}
}

// log formats and outputs a log message.
func (l *DefaultLogger) log(level, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level,
		"message":   msg,
	}

	// Process fields as key-value pairs
	for i := 0; i < len(fields)-1; i += 2 {
		if key, ok := fields[i].(string); ok {
			entry[key] = fields[i+1]
		}
	}

	// Add persistent fields
	for k, v := range l.fields {
		if _, exists := entry[k]; !exists {
			entry[k] = v
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf(`{"level":"ERROR","message":"failed to marshal log entry","error":"%s"}`, err)
		return
	}

	l.logger.Println(string(data))
}

// WithFields returns a logger with additional persistent fields.
func (l *DefaultLogger) WithFields(fields map[string]interface{}) common.Logger {
	newLogger := &DefaultLogger{
		level:  l.level,
		logger: l.logger,
		fields: make(map[string]interface{}),
	}

	for k, v := range l.fields {
		newLogger.fields[k] = v
	}
	for k, v := range fields {
		newLogger.fields[k] = v
	}

	return newLogger
}

// NullLogger is a logger that discards all log messages.
type NullLogger = common.NullLogger

// NewNullLogger creates a logger that discards all messages.
func NewNullLogger() common.Logger {
	return common.NewNullLogger()
}
