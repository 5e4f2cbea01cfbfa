package log

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

const (
	defaultPattern = "%time [%level] %msg%field\n"
	defaultTime    = "2006-01-02 15:04:05.000"
)

type logrusAdapter struct {
	entry *logrus.Entry
}

func newLogrusLogger(cfg *LoggerConfig) (Logger, error) {
	if cfg == nil {
		cfg = &LoggerConfig{}
	}

	l := logrus.New()

	pattern, timeFmt := cfg.Pattern, cfg.Time
	if pattern == "" {
		pattern = defaultPattern
	}
	if timeFmt == "" {
		timeFmt = defaultTime
	}
	l.SetFormatter(&formatter{pattern: pattern, time: timeFmt})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	out := NewMultiWriter()
	for i, app := range cfg.Appenders {
		switch app.Type {
		case "console", "stdout", "":
			out.Add(os.Stdout)
		case "file":
			var opt FileAppenderOpt
			if err := mapstructure.Decode(app.Options, &opt); err != nil {
				return nil, fmt.Errorf("appender[%d]: invalid file options: %w", i, err)
			}
			if opt.Filename == "" {
				return nil, fmt.Errorf("appender[%d]: file appender requires filename", i)
			}
			out.AddFileAppender(opt)
		default:
			return nil, fmt.Errorf("appender[%d]: unsupported type %q", i, app.Type)
		}
	}
	if len(cfg.Appenders) == 0 {
		out.Add(os.Stdout)
	}
	l.SetOutput(out)

	return &logrusAdapter{entry: logrus.NewEntry(l)}, nil
}

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusAdapter) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusAdapter) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *logrusAdapter) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}

func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}

func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}

func (l *logrusAdapter) IsDebugEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
