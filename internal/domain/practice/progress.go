package practice

import "github.com/okian/volleycoach/internal/domain/pose"

// Progress records which poses were completed in a session. Completion is
// only ever set, never cleared.
type Progress struct {
	completed map[pose.Pose]bool
}

// NewProgress returns progress with nothing completed.
func NewProgress() *Progress {
	return &Progress{completed: make(map[pose.Pose]bool, len(pose.All))}
}

// Complete marks p completed.
func (p *Progress) Complete(x pose.Pose) { p.completed[x] = true }

// Completed reports whether x was completed.
func (p *Progress) Completed(x pose.Pose) bool { return p.completed[x] }

// Unlocked reports whether x may be practiced: pass always, spike after
// pass, block after spike.
func (p *Progress) Unlocked(x pose.Pose) bool {
	if !x.Valid() {
		return false
	}
	req := x.Entry().Requires
	return req == "" || p.completed[req]
}

// AllCompleted reports whether every pose was completed.
func (p *Progress) AllCompleted() bool {
	for _, x := range pose.All {
		if !p.completed[x] {
			return false
		}
	}
	return true
}

// Active is the pose the training hub highlights: the furthest unlocked one.
func (p *Progress) Active() pose.Pose {
	switch {
	case p.completed[pose.Spike]:
		return pose.Block
	case p.completed[pose.Pass]:
		return pose.Spike
	default:
		return pose.Pass
	}
}

// Snapshot returns completion for every pose.
func (p *Progress) Snapshot() map[string]bool {
	out := make(map[string]bool, len(pose.All))
	for _, x := range pose.All {
		out[string(x)] = p.completed[x]
	}
	return out
}
