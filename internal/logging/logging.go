// Package logging builds the process logger: logrus to stdout, plus a
// size-rotated file when a directory is configured.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/metricboard/notifier/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const fileName = "notifier.log"

// Logger is a logrus logger that owns its rotating file, if any.
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

// New configures level, format and outputs from cfg.
func New(cfg config.LogConfig) (*Logger, error) {
	l := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	l.SetLevel(level)
	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}

	out := &Logger{Logger: l}
	if cfg.Dir == "" {
		l.SetOutput(os.Stdout)
		return out, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	out.file = &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, fileName),
		MaxSize:    50,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	}
	l.SetOutput(io.MultiWriter(os.Stdout, out.file))
	return out, nil
}

// Component returns an entry tagged with the component name.
func (l *Logger) Component(name string) *logrus.Entry {
	return l.WithField("component", name)
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l}
}
