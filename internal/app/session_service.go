package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/eligibility"
	"quiz-session-service/internal/metrics"
	"quiz-session-service/internal/scoring"
)

// SessionService is the entry point the transport layer calls. It gates new
// sessions on eligibility, owns the live session registry and forwards pass
// events once attempts are recorded.
type SessionService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	ledger   AttemptLedger
	events   EventPublisher

	policy  eligibility.Policy
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Recorder
	retry   RetryPolicy
	tick    time.Duration
	newID   func() string

	// completed keeps each key's last completed session until the next Start,
	// so a submit that lost the race to the timer still resolves to its result.
	mu        sync.Mutex
	completed map[domain.SessionKey]*Session
}

// Option configures a SessionService.
type Option func(*SessionService)

func WithPolicy(p eligibility.Policy) Option { return func(s *SessionService) { s.policy = p } }

// WithClock is mainly for tests driving the countdown deterministically.
func WithClock(c clock.Clock) Option { return func(s *SessionService) { s.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(s *SessionService) { s.logger = l } }

func WithMetrics(m *metrics.Recorder) Option { return func(s *SessionService) { s.metrics = m } }

func WithRetryPolicy(p RetryPolicy) Option { return func(s *SessionService) { s.retry = p } }

// WithTickInterval sets how often live sessions push snapshots to subscribers.
func WithTickInterval(d time.Duration) Option { return func(s *SessionService) { s.tick = d } }

func NewSessionService(sessions SessionRepository, quizzes QuizRepository, ledger AttemptLedger, events EventPublisher, opts ...Option) *SessionService {
	s := &SessionService{
		sessions: sessions,
		quizzes:  quizzes,
		ledger:   ledger,
		events:   events,
		clock:    clock.New(),
		logger:   zap.NewNop(),
		retry:    DefaultRetryPolicy(),
		tick:     time.Second,
		newID:    uuid.NewString,

		completed: make(map[domain.SessionKey]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartedSession is returned by Start.
type StartedSession struct {
	Snapshot    domain.SessionSnapshot `json:"session"`
	Quiz        domain.PublicQuiz      `json:"quiz"`
	Eligibility eligibility.Decision   `json:"eligibility"`
}

// Eligibility evaluates whether userID may start quizID, reading history fresh from the ledger.
func (s *SessionService) Eligibility(ctx context.Context, userID, quizID string) (eligibility.Decision, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return eligibility.Decision{}, err
	}
	return s.evaluate(ctx, userID, quiz)
}

func (s *SessionService) evaluate(ctx context.Context, userID string, quiz domain.Quiz) (eligibility.Decision, error) {
	history, err := s.ledger.History(ctx, userID, quiz.ID)
	if err != nil {
		return eligibility.Decision{}, err
	}
	decision := s.policy.Evaluate(quiz, history)
	s.metrics.Eligibility(string(decision.Status))
	return decision, nil
}

// Start opens a new session. The policy is always checked against the ledger,
// never against a cached attempt count.
func (s *SessionService) Start(ctx context.Context, userID, quizID string) (StartedSession, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return StartedSession{}, err
	}
	decision, err := s.evaluate(ctx, userID, quiz)
	if err != nil {
		return StartedSession{}, err
	}
	if !decision.CanStart {
		return StartedSession{Eligibility: decision}, &domain.IneligibleError{QuizID: quiz.ID, Status: string(decision.Status)}
	}

	session := newSession(s.newID(), userID, quiz, sessionDeps{
		clock:     s.clock,
		ledger:    s.ledger,
		logger:    s.logger,
		metrics:   s.metrics,
		retry:     s.retry,
		tick:      s.tick,
		onSettled: s.settled,
	})
	if err := s.sessions.Acquire(ctx, session); err != nil {
		return StartedSession{Eligibility: decision}, err
	}
	s.mu.Lock()
	delete(s.completed, session.Key())
	s.mu.Unlock()
	if err := session.start(); err != nil {
		s.sessions.Release(ctx, session)
		return StartedSession{Eligibility: decision}, err
	}
	s.metrics.SessionStarted()
	s.logger.Info("session started",
		zap.String("session_id", session.ID()),
		zap.String("user_id", userID),
		zap.String("quiz_id", quizID),
		zap.String("eligibility", string(decision.Status)),
		zap.Int("attempt_count", decision.AttemptCount),
	)
	return StartedSession{Snapshot: session.Snapshot(), Quiz: quiz.Public(), Eligibility: decision}, nil
}

// settled runs once per session when it completes or is abandoned.
func (s *SessionService) settled(session *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	completed := session.State() == domain.StateCompleted
	if completed {
		s.mu.Lock()
		s.completed[session.Key()] = session
		s.mu.Unlock()
	}
	s.sessions.Release(ctx, session)
	s.metrics.SessionClosed()

	if !completed {
		return
	}
	result := session.Result()
	if !result.Passed {
		return
	}
	event := domain.PassEvent{
		AttemptID: result.AttemptID,
		UserID:    result.UserID,
		QuizID:    result.QuizID,
		Score:     result.ScorePercent,
		Sequence:  result.Sequence,
		PassedAt:  result.SubmittedAt,
	}
	if err := s.events.PublishPass(ctx, event); err != nil {
		s.logger.Error("publish pass event failed", zap.String("attempt_id", event.AttemptID), zap.Error(err))
		return
	}
	s.logger.Info("pass event published",
		zap.String("attempt_id", event.AttemptID),
		zap.String("user_id", event.UserID),
		zap.String("quiz_id", event.QuizID),
		zap.Int("score", event.Score),
	)
}

func (s *SessionService) lookup(userID, quizID string) (*Session, error) {
	session, ok := s.sessions.Get(domain.SessionKey{UserID: userID, QuizID: quizID})
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// SelectAnswer records an answer in the user's live session.
func (s *SessionService) SelectAnswer(_ context.Context, userID, quizID, questionID string, optionIndex int) (domain.SessionSnapshot, error) {
	session, err := s.lookup(userID, quizID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	snap, err := session.SelectAnswer(questionID, optionIndex)
	if err != nil {
		s.logRejected(session, "select_answer", err)
	}
	return snap, err
}

// Navigate moves the user's live session to another question.
func (s *SessionService) Navigate(_ context.Context, userID, quizID string, index int) (domain.QuestionView, error) {
	session, err := s.lookup(userID, quizID)
	if err != nil {
		return domain.QuestionView{}, err
	}
	view, err := session.Navigate(index)
	if err != nil {
		s.logRejected(session, "navigate", err)
	}
	return view, err
}

func (s *SessionService) logRejected(session *Session, op string, err error) {
	var invalid *domain.InvalidQuestionError
	if errors.As(err, &invalid) {
		s.logger.Warn("invalid question reference",
			zap.String("op", op),
			zap.String("session_id", session.ID()),
			zap.String("question_id", invalid.QuestionID),
			zap.Int("index", invalid.Index),
			zap.String("reason", invalid.Reason),
		)
		return
	}
	s.logger.Debug("operation rejected", zap.String("op", op), zap.String("session_id", session.ID()), zap.Error(err))
}

// Submit grades and records the user's live session. If the session was
// already completed, by the timer or an earlier submit, its result is returned.
func (s *SessionService) Submit(ctx context.Context, userID, quizID string) (domain.Result, error) {
	session, err := s.lookup(userID, quizID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		s.mu.Lock()
		last, ok := s.completed[domain.SessionKey{UserID: userID, QuizID: quizID}]
		s.mu.Unlock()
		if ok {
			return last.Result(), nil
		}
	}
	if err != nil {
		return domain.Result{}, err
	}
	return session.Submit(ctx)
}

// Abandon discards the user's live session without recording an attempt.
func (s *SessionService) Abandon(_ context.Context, userID, quizID string) error {
	session, err := s.lookup(userID, quizID)
	if err != nil {
		return err
	}
	return session.Abandon()
}

// Snapshot returns the current state of the user's live session.
func (s *SessionService) Snapshot(_ context.Context, userID, quizID string) (domain.SessionSnapshot, error) {
	session, err := s.lookup(userID, quizID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	return session.Snapshot(), nil
}

// Subscribe returns a channel that receives snapshots of the user's live session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *SessionService) Subscribe(_ context.Context, userID, quizID string) (<-chan domain.SessionSnapshot, func(), error) {
	session, err := s.lookup(userID, quizID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

// History lists the user's recorded attempts for a quiz in sequence order.
func (s *SessionService) History(ctx context.Context, userID, quizID string) ([]domain.AttemptSummary, error) {
	return s.ledger.History(ctx, userID, quizID)
}

// Review rebuilds the result of one of the user's recorded attempts.
func (s *SessionService) Review(ctx context.Context, userID, attemptID string) (domain.Result, error) {
	attempt, err := s.ledger.Attempt(ctx, attemptID)
	if err != nil {
		return domain.Result{}, err
	}
	if attempt.UserID != userID {
		return domain.Result{}, domain.ErrAttemptNotFound
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Result{}, err
	}
	return scoring.NewResult(quiz, attempt), nil
}

// BestResult reviews the user's highest-scoring attempt, e.g. after AlreadyPassed.
func (s *SessionService) BestResult(ctx context.Context, userID, quizID string) (domain.Result, error) {
	decision, err := s.Eligibility(ctx, userID, quizID)
	if err != nil {
		return domain.Result{}, err
	}
	if decision.BestAttemptID == "" {
		return domain.Result{}, domain.ErrAttemptNotFound
	}
	return s.Review(ctx, userID, decision.BestAttemptID)
}

// Quiz returns the answer-free view of a quiz.
func (s *SessionService) Quiz(ctx context.Context, quizID string) (domain.PublicQuiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.PublicQuiz{}, err
	}
	return quiz.Public(), nil
}
