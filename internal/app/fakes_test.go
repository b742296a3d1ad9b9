package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"quiz-session-service/internal/domain"
)

var errLedgerDown = errors.New("ledger unavailable")

type fakeLedger struct {
	mu       sync.Mutex
	attempts []domain.Attempt
	failures int
	calls    int
	gate     chan struct{} // when set, writes wait for it to close
}

func (l *fakeLedger) Record(_ context.Context, sub domain.AttemptSubmission) (domain.Attempt, error) {
	l.mu.Lock()
	gate := l.gate
	l.mu.Unlock()
	if gate != nil {
		<-gate
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.failures > 0 {
		l.failures--
		return domain.Attempt{}, errLedgerDown
	}
	seq := 1
	for _, a := range l.attempts {
		if a.UserID == sub.UserID && a.QuizID == sub.QuizID {
			seq++
		}
	}
	a := domain.Attempt{
		ID:               fmt.Sprintf("attempt-%d", len(l.attempts)+1),
		QuizID:           sub.QuizID,
		UserID:           sub.UserID,
		Sequence:         seq,
		Answers:          sub.Answers,
		Score:            sub.Score,
		CorrectCount:     sub.CorrectCount,
		TotalQuestions:   sub.TotalQuestions,
		Passed:           sub.Passed,
		TimeTakenSeconds: sub.TimeTakenSeconds,
		SubmittedAt:      sub.SubmittedAt,
	}
	l.attempts = append(l.attempts, a)
	return a, nil
}

func (l *fakeLedger) History(_ context.Context, userID, quizID string) ([]domain.AttemptSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.AttemptSummary
	for _, a := range l.attempts {
		if a.UserID == userID && a.QuizID == quizID {
			out = append(out, a.Summary())
		}
	}
	return out, nil
}

func (l *fakeLedger) Attempt(_ context.Context, id string) (domain.Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.attempts {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Attempt{}, domain.ErrAttemptNotFound
}

func (l *fakeLedger) failNext(n int) {
	l.mu.Lock()
	l.failures = n
	l.mu.Unlock()
}

// hold makes subsequent writes wait until the returned release func is called.
func (l *fakeLedger) hold() (release func()) {
	gate := make(chan struct{})
	l.mu.Lock()
	l.gate = gate
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.gate = nil
		l.mu.Unlock()
		close(gate)
	}
}

func (l *fakeLedger) stats() (calls, recorded int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls, len(l.attempts)
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[domain.SessionKey]*Session
}

func (f *fakeSessions) Acquire(_ context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.Key()]; ok {
		return domain.ErrSessionActive
	}
	f.sessions[s.Key()] = s
	return nil
}

func (f *fakeSessions) Get(key domain.SessionKey) (*Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[key]
	return s, ok
}

func (f *fakeSessions) Release(_ context.Context, s *Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.sessions[s.Key()]; ok && cur == s {
		delete(f.sessions, s.Key())
	}
}

type fakeQuizzes map[string]domain.Quiz

func (f fakeQuizzes) GetQuiz(_ context.Context, id string) (domain.Quiz, error) {
	q, ok := f[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return q, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []domain.PassEvent
}

func (f *fakeEvents) PublishPass(_ context.Context, e domain.PassEvent) error {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
	return nil
}

func (f *fakeEvents) published() []domain.PassEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PassEvent(nil), f.events...)
}

type harness struct {
	clock    *clock.Mock
	ledger   *fakeLedger
	sessions *fakeSessions
	events   *fakeEvents
	service  *SessionService
}

// newHarness wires a service around quiz "5": Q1 correct 0, Q2 correct 2,
// ten minutes, pass at 50%, one attempt.
func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:    clock.NewMock(),
		ledger:   &fakeLedger{},
		sessions: &fakeSessions{sessions: make(map[domain.SessionKey]*Session)},
		events:   &fakeEvents{},
	}
	base := []Option{
		WithClock(h.clock),
		WithLogger(zaptest.NewLogger(t)),
		WithTickInterval(10 * time.Second),
		WithRetryPolicy(RetryPolicy{AutoSubmitRetries: 2, Interval: time.Millisecond, Timeout: 5 * time.Second}),
	}
	h.service = NewSessionService(h.sessions, fakeQuizzes{"5": scenarioQuiz(1)}, h.ledger, h.events, append(base, opts...)...)
	return h
}

func scenarioQuiz(maxAttempts int) domain.Quiz {
	return domain.Quiz{
		ID:               "5",
		Title:            "Safety basics",
		TimeLimitMinutes: 10,
		PassingScore:     50,
		MaxAttempts:      maxAttempts,
		Questions: []domain.Question{
			{ID: "Q1", Prompt: "First?", Options: []string{"a", "b", "c"}, CorrectIndex: 0},
			{ID: "Q2", Prompt: "Second?", Options: []string{"a", "b", "c"}, CorrectIndex: 2, Explanation: "c is right"},
		},
	}
}

func (h *harness) session(t *testing.T, userID string) *Session {
	t.Helper()
	s, ok := h.sessions.Get(domain.SessionKey{UserID: userID, QuizID: "5"})
	if !ok {
		t.Fatalf("no live session for %s", userID)
	}
	return s
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s did not settle, state %s", s.ID(), s.State())
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
