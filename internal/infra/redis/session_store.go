package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// releaseLease deletes the lease only while it still names the caller's session.
var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionStore is a Redis-backed implementation of app.SessionRepository.
// Notes:
//   - Live sessions stay in a local map; their timers and subscribers are
//     process-local.
//   - A lease key per (user, quiz) makes the single-live-session rule hold
//     across instances. The lease outlives the quiz time limit by a grace
//     period so a crashed instance cannot block the user forever.
type SessionStore struct {
	client *redis.Client
	grace  time.Duration
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[domain.SessionKey]*app.Session
}

func NewSessionStore(client *redis.Client, grace time.Duration, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		client:   client,
		grace:    grace,
		logger:   logger,
		sessions: make(map[domain.SessionKey]*app.Session),
	}
}

func (s *SessionStore) Acquire(ctx context.Context, session *app.Session) error {
	key := session.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; ok {
		return domain.ErrSessionActive
	}

	ttl := session.Quiz().TimeLimit() + s.grace
	ok, err := s.client.SetNX(ctx, leaseKey(key), session.ID(), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrSessionActive
	}
	s.sessions[key] = session
	return nil
}

func (s *SessionStore) Get(key domain.SessionKey) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

func (s *SessionStore) Release(ctx context.Context, session *app.Session) {
	key := session.Key()
	s.mu.Lock()
	if current, ok := s.sessions[key]; ok && current == session {
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	if err := releaseLease.Run(ctx, s.client, []string{leaseKey(key)}, session.ID()).Err(); err != nil {
		// the lease expires on its own
		s.logger.Warn("release session lease failed",
			zap.String("session_id", session.ID()),
			zap.String("session_key", key.String()),
			zap.Error(err))
	}
}

func leaseKey(key domain.SessionKey) string {
	return "quiz:session:" + key.UserID + ":" + key.QuizID
}
