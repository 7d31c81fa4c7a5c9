// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/volleycoach/internal/domain/pose"
)

// EventType names a renderer signal.
type EventType string

const (
	EventChallengeStarted EventType = "challenge-started"
	EventHoldStarted      EventType = "hold-started"
	EventProgress         EventType = "progress"
	EventHoldBroken       EventType = "hold-broken"
	EventSuccess          EventType = "success"
	EventExpired          EventType = "expired"
	EventCountdown        EventType = "countdown"
	EventCoaching         EventType = "coaching"
	EventSceneChanged     EventType = "scene-changed"
	EventProgressUpdated  EventType = "progress-updated"
	EventStatus           EventType = "status"
	EventMatchStarted     EventType = "match-started"
	EventMatchPoint       EventType = "match-point-scored"
	EventMatchOver        EventType = "match-over"
)

// Mode tells which controller produced a challenge event.
type Mode string

const (
	ModePractice Mode = "practice"
	ModeMatch    Mode = "match"
)

// Event is one renderer signal. Fields not relevant to Type are left empty.
// Fields mirror the OpenAPI schema for websocket messages.
type Event struct {
	Type    EventType  `json:"type"`
	Session string     `json:"session,omitempty"`
	Mode    Mode       `json:"mode,omitempty"`
	Scene   pose.Scene `json:"scene,omitempty"`
	Pose    pose.Pose  `json:"pose,omitempty"`

	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	ElapsedMS  int64   `json:"elapsed_ms,omitempty"`
	Remaining  *int    `json:"remaining,omitempty"`

	PlayerScore     *int   `json:"player_score,omitempty"`
	OpponentScore   *int   `json:"opponent_score,omitempty"`
	RemainingPoints *int   `json:"remaining_points,omitempty"`
	PointNumber     int    `json:"point_number,omitempty"`
	Winner          string `json:"winner,omitempty"`

	Message   string          `json:"message,omitempty"`
	Tip       string          `json:"tip,omitempty"`
	Hint      string          `json:"hint,omitempty"`
	NextScene pose.Scene      `json:"next_scene,omitempty"`
	Completed map[string]bool `json:"completed,omitempty"`

	At time.Time `json:"at"`
}

// Int returns a pointer to v for the optional numeric fields, which must
// serialize even when zero.
func Int(v int) *int { return &v }
