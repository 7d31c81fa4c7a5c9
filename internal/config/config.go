// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New returns a Config populated with defaults.
//   - Load layers a dotenv file, an optional YAML file and env vars on top.
//   - Policy durations are stored in milliseconds and exposed as time.Duration
//     through accessor methods.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ConfidenceThreshold is the exclusive lower bound a classification
	// confidence must exceed to count toward a hold.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`

	// HoldDurationMS is how long the target pose must be held continuously.
	HoldDurationMS int `koanf:"hold_duration_ms"`

	// TimeLimitMS is the deadline of one challenge, counted in ticks.
	TimeLimitMS int `koanf:"time_limit_ms"`

	// TickIntervalMS is the countdown tick period.
	TickIntervalMS int `koanf:"tick_interval_ms"`

	// ReadyDelayMS separates entering a practice scene from its first challenge.
	ReadyDelayMS int `koanf:"ready_delay_ms"`

	// PointPauseMS is the pause between match points.
	PointPauseMS int `koanf:"point_pause_ms"`

	// PointsToWin ends a match when either side reaches it.
	PointsToWin int `koanf:"points_to_win"`

	// WorkerCount sets the number of frame classification lanes.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds each lane's frame queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize bounds the frame-ID deduplication window.
	DedupeSize int `koanf:"dedupe_size"`

	// ShardCount configures the number of shards in the session store.
	ShardCount int `koanf:"shard_count"`

	// MaxSessions caps concurrently held sessions; 0 means unbounded.
	MaxSessions int `koanf:"max_sessions"`

	// SessionIdleTimeoutMS evicts sessions without activity.
	SessionIdleTimeoutMS int `koanf:"session_idle_timeout_ms"`

	// ClassifierModelPath points at a YAML pose template model. Empty
	// leaves keypoint classification unavailable; pre-classified results
	// are still accepted.
	ClassifierModelPath string `koanf:"classifier_model_path"`

	// AllowedOrigins lists extra origins, comma separated, allowed to open
	// session websockets. Empty allows same-origin only; "*" allows any.
	AllowedOrigins string `koanf:"allowed_origins"`
}

// Origins splits AllowedOrigins.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":8080",
		ConfidenceThreshold:  0.7,
		HoldDurationMS:       2000,
		TimeLimitMS:          5000,
		TickIntervalMS:       1000,
		ReadyDelayMS:         1000,
		PointPauseMS:         1500,
		PointsToWin:          3,
		WorkerCount:          runtime.NumCPU(),
		QueueSize:            1024,
		DedupeSize:           100_000,
		ShardCount:           8,
		MaxSessions:          10_000,
		SessionIdleTimeoutMS: 30 * 60 * 1000,
	}
}

// Validate checks ranges and returns an error wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold >= 1:
		return fmt.Errorf("%w: confidence_threshold must be in [0,1)", ErrInvalidConfig)
	case c.HoldDurationMS <= 0:
		return fmt.Errorf("%w: hold_duration_ms must be positive", ErrInvalidConfig)
	case c.TickIntervalMS <= 0:
		return fmt.Errorf("%w: tick_interval_ms must be positive", ErrInvalidConfig)
	case c.TimeLimitMS < c.TickIntervalMS:
		return fmt.Errorf("%w: time_limit_ms must be at least one tick", ErrInvalidConfig)
	case c.ReadyDelayMS < 0 || c.PointPauseMS < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	case c.PointsToWin <= 0:
		return fmt.Errorf("%w: points_to_win must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0 || c.QueueSize <= 0 || c.ShardCount <= 0:
		return fmt.Errorf("%w: worker_count, queue_size and shard_count must be positive", ErrInvalidConfig)
	case c.MaxSessions < 0:
		return fmt.Errorf("%w: max_sessions must not be negative", ErrInvalidConfig)
	}
	return nil
}

// HoldDuration returns HoldDurationMS as a duration.
func (c *Config) HoldDuration() time.Duration { return ms(c.HoldDurationMS) }

// TimeLimit returns TimeLimitMS as a duration.
func (c *Config) TimeLimit() time.Duration { return ms(c.TimeLimitMS) }

// TickInterval returns TickIntervalMS as a duration.
func (c *Config) TickInterval() time.Duration { return ms(c.TickIntervalMS) }

// ReadyDelay returns ReadyDelayMS as a duration.
func (c *Config) ReadyDelay() time.Duration { return ms(c.ReadyDelayMS) }

// PointPause returns PointPauseMS as a duration.
func (c *Config) PointPause() time.Duration { return ms(c.PointPauseMS) }

// SessionIdleTimeout returns SessionIdleTimeoutMS as a duration.
func (c *Config) SessionIdleTimeout() time.Duration { return ms(c.SessionIdleTimeoutMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
