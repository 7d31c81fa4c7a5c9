package service

import "errors"

var (
	// ErrSessionNotFound is returned for unknown or evicted session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when the session store is full.
	ErrTooManySessions = errors.New("too many sessions")
	// ErrQueueFull is returned when a session's frame lane is saturated.
	ErrQueueFull = errors.New("frame queue full")
	// ErrQueueClosed is returned once the service is stopping.
	ErrQueueClosed = errors.New("frame queue closed")
	// ErrNotStarted is returned before Start or after Stop.
	ErrNotStarted = errors.New("service not started")
)
