package log

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// MultiWriter fans one log stream out to several appenders. A failing
// appender does not stop the others.
type MultiWriter struct {
	writers []io.Writer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		if _, e := w.Write(p); e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

// FileAppenderOpt configures a rotating file appender.
type FileAppenderOpt struct {
	Filename   string `json:"filename" mapstructure:"filename"`
	MaxSize    int    `json:"max_size,omitempty" mapstructure:"max_size"`
	MaxBackups int    `json:"max_backups,omitempty" mapstructure:"max_backups"`
	MaxAge     int    `json:"max_age,omitempty" mapstructure:"max_age"`
	Compress   bool   `json:"compress,omitempty" mapstructure:"compress"`
}

// AddFileAppender attaches a size-rotated log file.
func (m *MultiWriter) AddFileAppender(opt FileAppenderOpt) *MultiWriter {
	m.writers = append(m.writers, &lumberjack.Logger{
		Filename:   opt.Filename,
		MaxSize:    opt.MaxSize,    // megabytes
		MaxBackups: opt.MaxBackups, // number of backups
		MaxAge:     opt.MaxAge,     // days
		Compress:   opt.Compress,   // compress the backups
	})
	return m
}
