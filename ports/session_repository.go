package ports

import (
	"context"
	"time"

	"biomark/domain/core"
	"biomark/models"
)

// SessionRepository owns the lifecycle of per-user session state
type SessionRepository interface {
	// CreateSession creates an empty session
	CreateSession(ctx context.Context) (*models.Session, error)

	// GetSession retrieves a live session and records activity on it
	GetSession(ctx context.Context, id core.SessionID) (*models.Session, error)

	// EndSession discards a session and everything it holds
	EndSession(ctx context.Context, id core.SessionID) error

	// ExpireIdle discards sessions idle longer than ttl and returns their IDs
	ExpireIdle(ctx context.Context, ttl time.Duration) ([]core.SessionID, error)

	// Count returns the number of live sessions
	Count(ctx context.Context) int
}
