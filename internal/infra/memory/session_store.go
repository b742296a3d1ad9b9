package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// It enforces one live session per (user, quiz) within this process.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionKey]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.SessionKey]*app.Session),
	}
}

func (s *SessionStore) Acquire(_ context.Context, session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.Key()]; ok {
		return domain.ErrSessionActive
	}
	s.sessions[session.Key()] = session
	return nil
}

func (s *SessionStore) Get(key domain.SessionKey) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

func (s *SessionStore) Release(_ context.Context, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[session.Key()]; ok && current == session {
		delete(s.sessions, session.Key())
	}
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
