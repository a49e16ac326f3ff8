package main

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// setupLog points the default logger at XTTS_LOG_FILE when set, otherwise
// at stderr. The returned func closes the log file.
func setupLog() (func() error, error) {
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(true)

	logFile := os.Getenv("XTTS_LOG_FILE")
	if logFile == "" {
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, err
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	log.SetFormatter(log.LogfmtFormatter)
	return f.Close, nil
}
