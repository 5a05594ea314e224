package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/dialer/internal/transcript"
)

// MemoryStore is an in-process Store. Sessions do not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, callID string, t transcript.Transcript) (*Session, error) {
	sess, err := newSession(callID, t, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[callID]; ok {
		return nil, ErrDuplicateSession
	}
	s.sessions[callID] = sess
	return sess.clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, callID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.clone(), nil
}

func (s *MemoryStore) Has(_ context.Context, callID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[callID]
	return ok, nil
}

func (s *MemoryStore) Update(_ context.Context, callID string, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[callID]
	if !ok {
		return nil, ErrNotFound
	}
	next := current.clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := checkUpdate(current, next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	s.sessions[callID] = next
	return next.clone(), nil
}

// Delete is a no-op for unknown ids.
func (s *MemoryStore) Delete(_ context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, callID)
	return nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions that have not been updated within maxIdle and
// returns their call ids. Calls that hang up without a final webhook would
// otherwise stay in memory forever.
func (s *MemoryStore) Sweep(maxIdle time.Duration) []string {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval, maxIdle time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(maxIdle); len(removed) > 0 {
				logger.Info("swept idle sessions", "count", len(removed), "call_sids", removed)
			}
		}
	}
}
