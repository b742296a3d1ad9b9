package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"quiz-session-service/internal/domain"
)

// AttemptLedger keeps attempts in process memory. Suitable for tests and demos.
type AttemptLedger struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt
	byKey    map[domain.SessionKey][]string
}

func NewAttemptLedger() *AttemptLedger {
	return &AttemptLedger{
		attempts: make(map[string]domain.Attempt),
		byKey:    make(map[domain.SessionKey][]string),
	}
}

func (l *AttemptLedger) Record(_ context.Context, sub domain.AttemptSubmission) (domain.Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := domain.SessionKey{UserID: sub.UserID, QuizID: sub.QuizID}
	answers := make(map[string]int, len(sub.Answers))
	for k, v := range sub.Answers {
		answers[k] = v
	}
	attempt := domain.Attempt{
		ID:               uuid.NewString(),
		QuizID:           sub.QuizID,
		UserID:           sub.UserID,
		Sequence:         len(l.byKey[key]) + 1,
		Answers:          answers,
		Score:            sub.Score,
		CorrectCount:     sub.CorrectCount,
		TotalQuestions:   sub.TotalQuestions,
		Passed:           sub.Passed,
		TimeTakenSeconds: sub.TimeTakenSeconds,
		SubmittedAt:      sub.SubmittedAt,
	}
	l.attempts[attempt.ID] = attempt
	l.byKey[key] = append(l.byKey[key], attempt.ID)
	return attempt, nil
}

func (l *AttemptLedger) History(_ context.Context, userID, quizID string) ([]domain.AttemptSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := l.byKey[domain.SessionKey{UserID: userID, QuizID: quizID}]
	out := make([]domain.AttemptSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.attempts[id].Summary())
	}
	return out, nil
}

func (l *AttemptLedger) Attempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	attempt, ok := l.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

// Count returns the total number of recorded attempts.
func (l *AttemptLedger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.attempts)
}
