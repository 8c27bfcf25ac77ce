package session

import (
	"context"
	"log"
	"sync"
	"time"

	"biomark/domain/core"
	"biomark/models"
	"biomark/ports"
)

// MemoryStore keeps sessions in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[core.SessionID]*models.Session
	maxEvents int
	now       func() time.Time
}

var _ ports.SessionRepository = (*MemoryStore)(nil)

// NewMemoryStore creates a store whose sessions retain at most maxEvents
// predictions each (0 = unbounded)
func NewMemoryStore(maxEvents int) *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[core.SessionID]*models.Session),
		maxEvents: maxEvents,
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests
func (ms *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	ms.now = now
	return ms
}

// CreateSession creates an empty session
func (ms *MemoryStore) CreateSession(ctx context.Context) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := models.NewSession(core.NewSessionID(), ms.maxEvents, ms.now())

	ms.mu.Lock()
	ms.sessions[s.ID] = s
	ms.mu.Unlock()

	return s, nil
}

// GetSession retrieves a live session and records activity on it
func (ms *MemoryStore) GetSession(ctx context.Context, id core.SessionID) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.RLock()
	s, ok := ms.sessions[id]
	ms.mu.RUnlock()
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	s.Touch(ms.now())
	return s, nil
}

// EndSession discards a session
func (ms *MemoryStore) EndSession(ctx context.Context, id core.SessionID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.sessions[id]; !ok {
		return core.ErrSessionNotFound
	}
	delete(ms.sessions, id)
	return nil
}

// ExpireIdle discards sessions idle longer than ttl and returns their IDs
func (ms *MemoryStore) ExpireIdle(ctx context.Context, ttl time.Duration) ([]core.SessionID, error) {
	if ttl <= 0 {
		return nil, nil
	}
	cutoff := ms.now().Add(-ttl)

	ms.mu.Lock()
	defer ms.mu.Unlock()

	var expired []core.SessionID
	for id, s := range ms.sessions {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		if s.LastSeen().Before(cutoff) {
			delete(ms.sessions, id)
			expired = append(expired, id)
		}
	}
	return expired, nil
}

// Count returns the number of live sessions
func (ms *MemoryStore) Count(ctx context.Context) int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.sessions)
}

// RunJanitor expires idle sessions every interval until ctx is done.
// onExpire, when set, is called once per discarded session after each pass.
func RunJanitor(ctx context.Context, repo ports.SessionRepository, ttl, interval time.Duration, onExpire func(core.SessionID)) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expireOnce(ctx, repo, ttl, onExpire)
		}
	}
}

func expireOnce(ctx context.Context, repo ports.SessionRepository, ttl time.Duration, onExpire func(core.SessionID)) {
	expired, err := repo.ExpireIdle(ctx, ttl)
	if onExpire != nil {
		for _, id := range expired {
			onExpire(id)
		}
	}
	if err != nil {
		log.Printf("[SessionJanitor] expiry pass failed: %v", err)
		return
	}
	if len(expired) > 0 {
		log.Printf("[SessionJanitor] expired %d idle sessions, %d live", len(expired), repo.Count(ctx))
	}
}
