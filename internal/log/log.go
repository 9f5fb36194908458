// Package log provides the process-wide logger.
package log

import (
	"sync"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	once   sync.Once
	mu     sync.RWMutex
	logger Logger
)

// GetLogger returns the process logger. Before Init it returns a stdout
// logger with the default pattern.
func GetLogger() Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger, _ = New(&LoggerConfig{Level: "info", Stdout: true})
	}
	return logger
}

// Init sets the process logger once.
func Init(cfg *LoggerConfig) {
	once.Do(func() {
		l, err := New(cfg)
		if err != nil {
			panic(err)
		}
		mu.Lock()
		logger = l
		mu.Unlock()
	})
}

// New builds a logger from cfg without touching the process logger.
func New(cfg *LoggerConfig) (Logger, error) {
	return newLogrusAdapter(cfg)
}
