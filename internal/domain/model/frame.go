package model

import (
	"time"

	"github.com/okian/volleycoach/internal/domain/pose"
)

// Frame is one video frame's detection output submitted by a client.
// Either Bodies or Result is set: clients running their own classifier send
// the top result directly.
type Frame struct {
	SessionID  string       // owning session
	FrameID    string       // unique id for idempotency, may be empty
	Bodies     []pose.Body  // detected people, first one is classified
	Result     *pose.Result // pre-classified top result
	ReceivedAt time.Time
}

// Classified reports whether the frame already carries a result.
func (f Frame) Classified() bool { return f.Result != nil }
