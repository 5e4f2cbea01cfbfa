// Package log provides the process-wide structured logger. One sink is
// installed at startup; every component emits through it.
package log

import (
	"sync"
)

// Logger is the sink interface used across the scheduler.
type Logger interface {
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

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

// LoggerConfig configures the global sink.
type LoggerConfig struct {
	Level     string           `json:"level,omitempty" mapstructure:"level"`
	Pattern   string           `json:"pattern,omitempty" mapstructure:"pattern"`
	Time      string           `json:"time,omitempty" mapstructure:"time"`
	Appenders []AppenderConfig `json:"appenders,omitempty" mapstructure:"appenders"`
}

// AppenderConfig selects one output target. Type is "console" or "file";
// file options are decoded into FileAppenderOpt.
type AppenderConfig struct {
	Type    string                 `json:"type" mapstructure:"type"`
	Options map[string]interface{} `json:"options,omitempty" mapstructure:"options"`
}

var (
	once   sync.Once
	logger Logger
)

// Init installs the global sink. The first call wins; later calls are
// no-ops so tests and subcommands can initialize defensively.
func Init(cfg *LoggerConfig) {
	once.Do(func() {
		l, err := newLogrusLogger(cfg)
		if err != nil {
			panic(err)
		}
		logger = l
	})
}

// GetLogger returns the global sink, installing a default console sink
// when Init was never called.
func GetLogger() Logger {
	if logger == nil {
		Init(nil)
	}
	return logger
}
