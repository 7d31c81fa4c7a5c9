// Package repository holds live sessions in a sharded in-memory store.
package repository

import (
	"context"
	"time"

	"github.com/okian/volleycoach/internal/domain/session"
)

// Store provides access to live sessions.
type Store interface {
	// Put adds s. Returns ErrExists for a duplicate ID and ErrCapacity
	// when the store is full.
	Put(ctx context.Context, s *session.Session) error

	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, id string) (*session.Session, error)

	// Delete removes and returns the session or ErrNotFound.
	Delete(ctx context.Context, id string) (*session.Session, error)

	// IdleSince returns IDs of sessions with no activity since cutoff.
	IdleSince(ctx context.Context, cutoff time.Time) []string

	// Count returns the number of sessions.
	Count(ctx context.Context) int
}
