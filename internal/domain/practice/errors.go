package practice

import "errors"

var (
	// ErrLocked is returned when a pose's prerequisite is not completed.
	ErrLocked = errors.New("pose locked")
	// ErrNoPose is returned by Retry without a pose.
	ErrNoPose = errors.New("no pose to retry")
	// ErrCompleted is returned by Retry for the pose that just succeeded.
	ErrCompleted = errors.New("pose already completed")
	// ErrRunning is returned by Retry while a challenge is still running.
	ErrRunning = errors.New("challenge already running")
)
