package simulate

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/volleycoach/internal/domain/model"
)

// Transports a simulated player can send classifications over.
const (
	TransportHTTP = "http"
	TransportWS   = "ws"
)

// Config holds configuration for a simulated tutorial run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Timeout     time.Duration // HTTP request timeout
	StepTimeout time.Duration // Longest wait for one expected event
	Interval    time.Duration // Gap between two classifications
	Confidence  float64       // Confidence reported with every classification
	Plan        string        // Match plan: 'w' holds the called pose, 'l' shows a wrong one
	MaxRetries  int           // Practice retries per pose after an expiry
	Transport   string        // "http" or "ws"
	Verbose     bool          // Print every event
}

// DefaultConfig returns the configuration used by cmd/simulate.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "http://localhost:8080",
		Timeout:     10 * time.Second,
		StepTimeout: 30 * time.Second,
		Interval:    100 * time.Millisecond,
		Confidence:  0.9,
		Plan:        "wlww",
		MaxRetries:  2,
		Transport:   TransportHTTP,
	}
}

// Validate checks the ranges Run relies on.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: url must not be empty", ErrInvalidConfig)
	case c.Timeout <= 0 || c.StepTimeout <= 0 || c.Interval <= 0:
		return fmt.Errorf("%w: timeouts and interval must be positive", ErrInvalidConfig)
	case c.Confidence < 0 || c.Confidence > 1:
		return fmt.Errorf("%w: confidence must be in [0,1]", ErrInvalidConfig)
	case c.Plan == "" || strings.Trim(c.Plan, "wl") != "":
		return fmt.Errorf("%w: plan must be a non-empty string of 'w' and 'l'", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: retries must not be negative", ErrInvalidConfig)
	case c.Transport != TransportHTTP && c.Transport != TransportWS:
		return fmt.Errorf("%w: transport must be %q or %q", ErrInvalidConfig, TransportHTTP, TransportWS)
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	SessionID       string
	Classifications int
	Rejected        int
	Retries         int
	Events          map[model.EventType]int
	Winner          string
	PlayerScore     int
	OpponentScore   int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
