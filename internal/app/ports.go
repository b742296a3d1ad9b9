package app

import (
	"context"

	"quiz-session-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AttemptLedger persists submitted attempts and serves attempt history.
// Record assigns id and sequence; the attempt it returns is the record of truth.
type AttemptLedger interface {
	Record(ctx context.Context, sub domain.AttemptSubmission) (domain.Attempt, error)
	History(ctx context.Context, userID, quizID string) ([]domain.AttemptSummary, error)
	Attempt(ctx context.Context, attemptID string) (domain.Attempt, error)
}

// SessionRepository tracks live sessions, one per (user, quiz).
type SessionRepository interface {
	// Acquire registers the session, failing with domain.ErrSessionActive when
	// the key is already held.
	Acquire(ctx context.Context, session *Session) error
	Get(key domain.SessionKey) (*Session, bool)
	// Release drops the session if it still holds its key.
	Release(ctx context.Context, session *Session)
}

// EventPublisher fans out pass events to downstream consumers such as certificate issuance.
type EventPublisher interface {
	PublishPass(ctx context.Context, event domain.PassEvent) error
}
