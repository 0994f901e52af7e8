// Package logging provides structured, component-tagged logging for nvrd.
package logging

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is a convenience alias so callers don't need to import logrus directly.
type Fields = logrus.Fields

// Logger wraps logrus with a fixed component tag.
type Logger struct {
	*logrus.Logger
	component string
}

// Config controls level, format and file rotation.
type Config struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // "text" or "json"
	FileEnabled bool   `mapstructure:"file_enabled"`
	FilePath    string `mapstructure:"file_path"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
}

// New creates a logger for the given component using cfg.
func New(component string, cfg Config) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if cfg.Format == "json" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.FileEnabled && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err == nil {
			base.SetOutput(&lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    maxOr(cfg.MaxSizeMB, 50),
				MaxBackups: maxOr(cfg.MaxBackups, 5),
				Compress:   true,
			})
		}
	}

	return &Logger{Logger: base, component: component}
}

func maxOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// With returns an entry pre-populated with the component field.
func (l *Logger) With() *logrus.Entry {
	return l.WithField("component", l.component)
}
