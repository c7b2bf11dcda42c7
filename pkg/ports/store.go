package ports

import (
	"context"
	"time"

	"github.com/aretw0/talebot/pkg/domain"
)

// DefaultIdleTimeout is the idle window after which a session is treated as absent.
const DefaultIdleTimeout = 30 * time.Minute

// SessionStore defines the interface for persisting in-progress sessions.
//
// Writes are optimistic: every Put carries the version the caller last read,
// and the store rejects the write with domain.ErrConflict when the stored
// version differs. An absent or expired record has version 0.
type SessionStore interface {
	// Get retrieves the live session for key.
	// Returns domain.ErrSessionNotFound if no record exists or it has expired.
	Get(ctx context.Context, key string) (*domain.Session, error)

	// Put stores session under key if the current version equals expected.
	// On success it returns the stored copy, whose Version is expected+1 and
	// whose LastTouchedAt is the store's current time.
	Put(ctx context.Context, key string, session *domain.Session, expected int64) (*domain.Session, error)

	// Delete removes the session. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys of all live sessions.
	List(ctx context.Context) ([]string, error)
}

// Clock returns the current time. Stores accept one so expiry can be tested.
type Clock func() time.Time
