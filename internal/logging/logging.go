// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config represents logger configuration
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // file path, empty or "stderr" for standard error
}

// DefaultConfig returns info level text logging to standard error
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

// New creates a logger; the returned closer releases the output file, if any
func New(config Config) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	level := config.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	logger.SetLevel(parsed)
	switch strings.ToLower(config.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, fmt.Errorf("unsupported log format: %v", config.Format)
	}
	var closer io.Closer = io.NopCloser(nil)
	switch config.Output {
	case "", "stderr":
		logger.SetOutput(os.Stderr)
	case "stdout":
		logger.SetOutput(os.Stdout)
	default:
		if err = os.MkdirAll(filepath.Dir(config.Output), 0o755); err != nil {
			return nil, nil, err
		}
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		logger.SetOutput(file)
		closer = file
	}
	return logger, closer, nil
}
