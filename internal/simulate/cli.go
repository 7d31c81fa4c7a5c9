package simulate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/volleycoach/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging initializes the logger. Logs go to stderr, or to logFile when
// one is given, so they do not interleave with the run output.
func SetupLogging(logFile string, verbose bool) error {
	var w io.Writer = os.Stderr
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		w = file
	}

	if err := logger.Init(logger.WithWriter(w)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	if err := logger.SetLevelString(level); err != nil {
		return err
	}
	if logFile != "" {
		logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	}
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Volleycoach Simulator
=====================

Plays the whole tutorial against a running service: every pose is learned
and practiced, then a match is played following a plan.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -plan string
        Match plan, one letter per point: w holds the called pose,
        l shows a wrong one (default "wlww")
  -interval duration
        Gap between two classifications (default 100ms)
  -confidence float
        Confidence sent with every classification (default 0.9)
  -retries int
        Practice retries per pose after an expiry (default 2)
  -transport string
        Send classifications over "http" or "ws" (default "http")
  -timeout duration
        HTTP request timeout (default 10s)
  -step-timeout duration
        Longest wait for one expected event (default 30s)
  -log string
        Log file (default: stderr)
  -verbose
        Print every event and debug logs
  -help
        Show this help message

Examples:
  # Win 3 : 1 against a local service
  go run ./cmd/simulate

  # Lose the match, streaming over the websocket
  go run ./cmd/simulate -plan lll -transport ws -verbose
`)
}
