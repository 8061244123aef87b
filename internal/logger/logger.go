// Package logger builds the logrus logger shared by the host and the engine.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls level and optional rotating file output.
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // empty logs to the console only
	MaxSize    int    // megabytes before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// Defaults for file rotation when Config leaves them unset.
const (
	DefaultMaxSize    = 100
	DefaultMaxBackups = 5
	DefaultMaxAge     = 30
)

// New creates a logger writing to console and, when configured, a rotating
// file. The returned closer releases the file and is never nil.
func New(cfg Config, console io.Writer) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if console == nil {
		console = os.Stdout
	}
	if cfg.OutputFile == "" {
		logger.SetOutput(console)
		return logger, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
		return nil, nil, errors.Wrapf(err, "create log directory for %s", cfg.OutputFile)
	}
	file := &lumberjack.Logger{
		Filename:   cfg.OutputFile,
		MaxSize:    orDefault(cfg.MaxSize, DefaultMaxSize),
		MaxBackups: orDefault(cfg.MaxBackups, DefaultMaxBackups),
		MaxAge:     orDefault(cfg.MaxAge, DefaultMaxAge),
		Compress:   cfg.Compress,
	}
	logger.SetOutput(io.MultiWriter(console, file))
	return logger, file, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
