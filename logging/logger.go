package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
//
// Level comes from RAKT_LOG_LEVEL (default "info"). RAKT_LOG_FORMAT=json
// switches to JSON output. RAKT_LOG_FILE appends to the given file in
// addition to stderr.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logger := logrus.New()

	levelStr := os.Getenv("RAKT_LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("RAKT_LOG_FORMAT") == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	var writers []io.Writer

	if path := os.Getenv("RAKT_LOG_FILE"); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err == nil {
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				writers = append(writers, file)
			} else {
				logger.Warnf("Failed to open log file %s: %v", path, err)
			}
		}
	}

	// Dashboards run inside interactive UIs; structured logs go to stderr
	// only in debug mode or when stderr is not a terminal (piped, CI).
	isDebug := os.Getenv("RAKT_DEBUG") == "1" || logger.GetLevel() == logrus.DebugLevel
	isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if isDebug || !isInteractive {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}
