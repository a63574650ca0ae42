// Package logger configures logrus for the gateway, optionally teeing to a
// size-rotated file.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls level, format and file rotation.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	OutputFile string // empty logs to stdout only
	MaxSize    int    // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// New builds a logger from cfg. An unknown level falls back to info.
func New(cfg Config, stdout io.Writer) (*logrus.Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "06-01-02 15:04:05",
		})
	}

	writers := []io.Writer{stdout}
	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	log.SetOutput(io.MultiWriter(writers...))
	return log, nil
}

// Init builds a logger from cfg writing to stdout and installs its settings
// on the logrus standard logger too, so package-level logrus calls land in
// the same place.
func Init(cfg Config) (*logrus.Logger, error) {
	log, err := New(cfg, os.Stdout)
	if err != nil {
		return nil, err
	}
	logrus.SetOutput(log.Out)
	logrus.SetLevel(log.GetLevel())
	logrus.SetFormatter(log.Formatter)
	return log, nil
}
