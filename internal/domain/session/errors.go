package session

import (
	"errors"

	"github.com/okian/volleycoach/internal/domain/practice"
)

var (
	// ErrLocked is returned when navigating to a scene whose pose is locked.
	ErrLocked = practice.ErrLocked
	// ErrWrongScene is returned when a command does not apply to the current scene.
	ErrWrongScene = errors.New("command not available in current scene")
	// ErrClosed is returned once the session was closed.
	ErrClosed = errors.New("session closed")
)
