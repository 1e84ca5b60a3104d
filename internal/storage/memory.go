package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dgellow/mailrelay/internal/session"
)

// Ensure MemoryStore implements required interfaces
var _ session.Store = (*MemoryStore)(nil)
var _ Sweeper = (*MemoryStore)(nil)

// MemoryStore keeps sessions in process memory. Sessions are lost on restart
// and not shared between instances.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]session.Session),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || sess.IsExpired(s.now()) {
		return nil, session.ErrSessionNotFound
	}
	return &sess, nil
}

func (s *MemoryStore) Set(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// CleanupExpired drops expired sessions and returns how many were removed
func (s *MemoryStore) CleanupExpired(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, sess := range s.sessions {
		if sess.IsExpired(now) {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

// count returns the number of stored sessions, expired ones included
func (s *MemoryStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
