package session

import (
	"time"

	"github.com/okian/volleycoach/internal/domain/match"
	"github.com/okian/volleycoach/internal/domain/pose"
)

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID         string          `json:"id"`
	Scene      pose.Scene      `json:"scene"`
	Completed  map[string]bool `json:"completed"`
	ActivePose pose.Pose       `json:"active_pose"`
	Checking   bool            `json:"checking"`
	Practice   PracticeView    `json:"practice"`
	Match      MatchView       `json:"match"`
	CreatedAt  time.Time       `json:"created_at"`
	LastSeenAt time.Time       `json:"last_activity_at"`
}

// PracticeView summarizes the practice controller.
type PracticeView struct {
	Pose      pose.Pose `json:"pose,omitempty"`
	State     string    `json:"state"`
	Challenge string    `json:"challenge"`
	Remaining int       `json:"remaining"`
}

// MatchView summarizes the match controller.
type MatchView struct {
	Status        string        `json:"status"`
	PlayerScore   int           `json:"player_score"`
	OpponentScore int           `json:"opponent_score"`
	Remaining     int           `json:"remaining_points"`
	PointNumber   int           `json:"point_number"`
	Current       pose.Pose     `json:"current,omitempty"`
	History       []pose.Pose   `json:"history"`
	Points        []match.Point `json:"points"`
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc := s.practice.Challenge()
	ms := s.match.State()
	return Snapshot{
		ID:         s.id,
		Scene:      s.scene,
		Completed:  s.progress.Snapshot(),
		ActivePose: s.progress.Active(),
		Checking:   s.active != nil && s.active.Active(),
		Practice: PracticeView{
			Pose:      s.practice.Current(),
			State:     s.practice.State().String(),
			Challenge: pc.Status.String(),
			Remaining: pc.Remaining,
		},
		Match: MatchView{
			Status:        ms.Status.String(),
			PlayerScore:   ms.PlayerScore,
			OpponentScore: ms.OpponentScore,
			Remaining:     ms.Remaining(),
			PointNumber:   ms.Index,
			Current:       ms.Current,
			History:       append([]pose.Pose{}, ms.History...),
			Points:        append([]match.Point{}, ms.Points...),
		},
		CreatedAt:  s.createdAt,
		LastSeenAt: s.lastActivity,
	}
}
